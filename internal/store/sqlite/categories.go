package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/listenupapp/novelvault/internal/domain"
	"github.com/listenupapp/novelvault/internal/store"
)

// workColumnsW is workColumns qualified with the "w" alias for joins.
const workColumnsW = `w.id, w.title, w.author, w.status, w.chapter_label, w.total_chapters, w.metadata,
		       w.use_count, w.last_seen_at, w.last_read_at, w.created_at`

// CategoryIndexer maintains work-to-category membership.
//
// EnsureMembership and RemoveMembership are idempotent. Duplicate inserts are
// absorbed by the primary key and a membership for a work that does not
// exist is a no-op, so neither surfaces integrity errors to callers.
type CategoryIndexer struct {
	s *Store
}

// EnsureMembership creates the category if needed and adds the work to it.
func (c *CategoryIndexer) EnsureMembership(ctx context.Context, workID domain.WorkID, name string) error {
	return c.s.write(ctx, "ensure category membership", func(tx *sql.Tx) error {
		return c.ensureTx(ctx, tx, workID, name)
	})
}

// RemoveMembership removes the work from the category if it is a member.
func (c *CategoryIndexer) RemoveMembership(ctx context.Context, workID domain.WorkID, name string) error {
	return c.s.write(ctx, "remove category membership", func(tx *sql.Tx) error {
		return c.removeTx(ctx, tx, workID, name)
	})
}

// ensureTx is EnsureMembership inside a caller's transaction.
func (c *CategoryIndexer) ensureTx(ctx context.Context, tx *sql.Tx, workID domain.WorkID, name string) error {
	now := formatTime(c.s.now())

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO categories (name, color, created_at) VALUES (?, '', ?)`,
		name, now); err != nil {
		return err
	}

	// Selecting through works turns an unknown work into zero rows instead of
	// a foreign key failure.
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO work_categories (work_id, category_id, added_at)
		SELECT w.id, c.id, ?
		FROM works w, categories c
		WHERE w.id = ? AND c.name = ?`,
		now, string(workID), name)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		c.s.logger.Debug("category membership unchanged", "work_id", workID, "category", name)
	}
	return nil
}

// removeTx is RemoveMembership inside a caller's transaction.
func (c *CategoryIndexer) removeTx(ctx context.Context, tx *sql.Tx, workID domain.WorkID, name string) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM work_categories
		WHERE work_id = ?
		  AND category_id = (SELECT id FROM categories WHERE name = ?)`,
		string(workID), name)
	return err
}

// scanCategory scans a category row with its member count.
func scanCategory(scanner interface{ Scan(dest ...any) error }) (*domain.Category, error) {
	var (
		c         domain.Category
		createdAt string
	)
	if err := scanner.Scan(&c.ID, &c.Name, &c.Color, &c.WorkCount, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCategory adds a user-defined category.
// Returns store.ErrAlreadyExists if the name is taken.
func (s *Store) CreateCategory(ctx context.Context, name, color string) (*domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, store.ErrInvalidInput.WithMessage("category name is required")
	}

	cat := &domain.Category{Name: name, Color: color, CreatedAt: s.now()}
	err := s.write(ctx, "create category", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO categories (name, color, created_at) VALUES (?, ?, ?)`,
			name, color, formatTime(cat.CreatedAt))
		if err != nil {
			return err
		}
		cat.ID, err = res.LastInsertId()
		return err
	})
	if isUniqueViolation(err) {
		return nil, store.ErrAlreadyExists.WithMessage("category already exists")
	}
	if err != nil {
		return nil, err
	}
	return cat, nil
}

// GetCategory retrieves a category by name.
func (s *Store) GetCategory(ctx context.Context, name string) (*domain.Category, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.name, c.color, COUNT(wc.work_id), c.created_at
		FROM categories c
		LEFT JOIN work_categories wc ON wc.category_id = c.id
		WHERE c.name = ?
		GROUP BY c.id`, name)

	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrCategoryNotFound
	}
	return c, err
}

// ListCategories returns every category with its member count, by name.
func (s *Store) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	return s.queryCategories(ctx, `
		SELECT c.id, c.name, c.color, COUNT(wc.work_id), c.created_at
		FROM categories c
		LEFT JOIN work_categories wc ON wc.category_id = c.id
		GROUP BY c.id
		ORDER BY c.name`)
}

// CategoriesForWork returns the categories a work belongs to.
func (s *Store) CategoriesForWork(ctx context.Context, workID domain.WorkID) ([]*domain.Category, error) {
	return s.queryCategories(ctx, `
		SELECT c.id, c.name, c.color,
		       (SELECT COUNT(*) FROM work_categories x WHERE x.category_id = c.id),
		       c.created_at
		FROM categories c
		JOIN work_categories wc ON wc.category_id = c.id
		WHERE wc.work_id = ?
		ORDER BY c.name`, string(workID))
}

// WorksInCategory returns member works, most recently added first.
func (s *Store) WorksInCategory(ctx context.Context, name string) ([]*domain.Work, error) {
	return s.queryWorks(ctx, `
		SELECT `+workColumnsW+`
		FROM works w
		JOIN work_categories wc ON wc.work_id = w.id
		JOIN categories c ON c.id = wc.category_id
		WHERE c.name = ?
		ORDER BY wc.added_at DESC`, name)
}

// IsMember reports whether a work belongs to the named category.
func (s *Store) IsMember(ctx context.Context, workID domain.WorkID, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM work_categories wc
		JOIN categories c ON c.id = wc.category_id
		WHERE wc.work_id = ? AND c.name = ?`,
		string(workID), name).Scan(&n)
	return n > 0, err
}

func (s *Store) queryCategories(ctx context.Context, query string, args ...any) ([]*domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []*domain.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cats, nil
}
