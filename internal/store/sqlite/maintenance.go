package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
)

// Cleanup removes rows whose work no longer exists. Cascades keep this at
// zero for databases created with foreign keys on; older files may not be.
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	statements := []string{
		`DELETE FROM downloads WHERE work_id NOT IN (SELECT id FROM works)`,
		`DELETE FROM reading_progress WHERE work_id NOT IN (SELECT id FROM works)`,
		`DELETE FROM work_categories WHERE work_id NOT IN (SELECT id FROM works)`,
		`DELETE FROM work_categories WHERE category_id NOT IN (SELECT id FROM categories)`,
		`DELETE FROM reading_sessions WHERE work_id NOT IN (SELECT id FROM works)`,
	}

	var removed int64
	err := s.write(ctx, "cleanup", func(tx *sql.Tx) error {
		removed = 0
		for _, stmt := range statements {
			res, err := tx.ExecContext(ctx, stmt)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			removed += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		s.logger.Info("removed orphaned rows", "count", removed)
	}
	return removed, nil
}

// BackupTo writes a consistent copy of the database to path.
// The target must not exist yet.
func (s *Store) BackupTo(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("backup target %s already exists", path)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("vacuum into %s: %w", path, err)
	}
	return nil
}
