package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/listenupapp/novelvault/internal/domain"
	"github.com/listenupapp/novelvault/internal/store"
)

const workColumns = `id, title, author, status, chapter_label, total_chapters, metadata,
		       use_count, last_seen_at, last_read_at, created_at`

// scanWork scans a sql.Row (or sql.Rows via its Scan method) into a domain.Work.
func scanWork(scanner interface{ Scan(dest ...any) error }) (*domain.Work, error) {
	var w domain.Work

	var (
		id         string
		metadata   string
		lastSeenAt string
		lastReadAt sql.NullString
		createdAt  string
	)

	err := scanner.Scan(
		&id,
		&w.Title,
		&w.Author,
		&w.Status,
		&w.ChapterLabel,
		&w.TotalChapters,
		&metadata,
		&w.UseCount,
		&lastSeenAt,
		&lastReadAt,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	w.ID = domain.WorkID(id)

	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &w.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", id, err)
		}
	}

	if w.LastSeenAt, err = parseTime(lastSeenAt); err != nil {
		return nil, err
	}
	if w.LastReadAt, err = parseNullableTime(lastReadAt); err != nil {
		return nil, err
	}
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	return &w, nil
}

// UpsertWork inserts a work or refreshes its mutable fields.
// The use counter is incremented by SQLite itself so concurrent upserts of
// the same work never lose a count. On return w carries the stored
// UseCount, LastSeenAt and CreatedAt.
func (s *Store) UpsertWork(ctx context.Context, w *domain.Work) error {
	if _, err := domain.ParseWorkID(string(w.ID)); err != nil {
		return store.ErrInvalidInput.WithCause(err)
	}

	metadata := []byte("{}")
	if len(w.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(w.Metadata); err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
	}

	return s.write(ctx, "upsert work", func(tx *sql.Tx) error {
		now := s.now()

		var createdAt string
		err := tx.QueryRowContext(ctx, `
			INSERT INTO works (
				id, source, local_id, title, author, status, chapter_label,
				total_chapters, metadata, use_count, last_seen_at, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title          = excluded.title,
				author         = excluded.author,
				status         = excluded.status,
				chapter_label  = excluded.chapter_label,
				total_chapters = CASE WHEN excluded.total_chapters > 0
				                      THEN excluded.total_chapters
				                      ELSE works.total_chapters END,
				metadata       = excluded.metadata,
				use_count      = works.use_count + 1,
				last_seen_at   = excluded.last_seen_at
			RETURNING use_count, created_at`,
			string(w.ID),
			w.ID.Source(),
			w.ID.LocalID(),
			w.Title,
			w.Author,
			w.Status,
			w.ChapterLabel,
			w.TotalChapters,
			string(metadata),
			formatTime(now),
			formatTime(now),
		).Scan(&w.UseCount, &createdAt)
		if err != nil {
			return err
		}

		w.LastSeenAt = now
		w.CreatedAt, err = parseTime(createdAt)
		return err
	})
}

// GetWork retrieves a work by ID.
// Returns store.ErrWorkNotFound if it does not exist.
func (s *Store) GetWork(ctx context.Context, id domain.WorkID) (*domain.Work, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workColumns+` FROM works WHERE id = ?`, string(id))

	w, err := scanWork(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrWorkNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// ListWorks returns every work, most recently seen first.
func (s *Store) ListWorks(ctx context.Context) ([]*domain.Work, error) {
	return s.queryWorks(ctx, `SELECT `+workColumns+` FROM works ORDER BY last_seen_at DESC`)
}

// RecentSearches returns the works most recently selected from a search.
func (s *Store) RecentSearches(ctx context.Context, limit int) ([]*domain.Work, error) {
	return s.queryWorks(ctx,
		`SELECT `+workColumns+` FROM works ORDER BY last_seen_at DESC LIMIT ?`, limit)
}

// MostSearched returns the works with the highest use counters.
func (s *Store) MostSearched(ctx context.Context, limit int) ([]*domain.Work, error) {
	return s.queryWorks(ctx,
		`SELECT `+workColumns+` FROM works ORDER BY use_count DESC, last_seen_at DESC LIMIT ?`, limit)
}

// DeleteWork removes a work together with its downloads, progress,
// category memberships and history.
func (s *Store) DeleteWork(ctx context.Context, id domain.WorkID) error {
	return s.write(ctx, "delete work", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM works WHERE id = ?`, string(id))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrWorkNotFound
		}
		return nil
	})
}

func (s *Store) queryWorks(ctx context.Context, query string, args ...any) ([]*domain.Work, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var works []*domain.Work
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			return nil, err
		}
		works = append(works, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return works, nil
}
