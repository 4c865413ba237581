package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/listenupapp/novelvault/internal/domain"
	"github.com/listenupapp/novelvault/internal/store"
)

// scanProgress scans a reading_progress row.
func scanProgress(scanner interface{ Scan(dest ...any) error }) (*domain.ReadingProgress, error) {
	var (
		p          domain.ReadingProgress
		workID     string
		bookmarked int
		lastReadAt string
	)

	err := scanner.Scan(
		&workID,
		&p.CurrentChapter,
		&p.ScrollFraction,
		&bookmarked,
		&p.Notes,
		&lastReadAt,
	)
	if err != nil {
		return nil, err
	}

	p.WorkID = domain.WorkID(workID)
	p.Bookmarked = bookmarked != 0
	if p.LastReadAt, err = parseTime(lastReadAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveReadingProgress replaces the work's resume point and adds it to
// Recently Read. Favorites membership follows bookmarked. The row is written by a single statement, so concurrent
// saves never mix fields from different calls.
func (s *Store) SaveReadingProgress(ctx context.Context, workID domain.WorkID, chapter int, fraction float64, bookmarked bool) error {
	return s.write(ctx, "save reading progress", func(tx *sql.Tx) error {
		ok, err := workExists(ctx, tx, workID)
		if err != nil {
			return err
		}
		if !ok {
			return store.ErrWorkNotFound
		}

		now := formatTime(s.now())
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reading_progress (
				work_id, current_chapter, scroll_fraction, bookmarked, last_read_at
			) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(work_id) DO UPDATE SET
				current_chapter = excluded.current_chapter,
				scroll_fraction = excluded.scroll_fraction,
				bookmarked      = excluded.bookmarked,
				last_read_at    = excluded.last_read_at`,
			string(workID), chapter, fraction, boolToInt(bookmarked), now,
		); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE works SET last_read_at = ? WHERE id = ?`, now, string(workID)); err != nil {
			return err
		}

		if err := s.Categories.ensureTx(ctx, tx, workID, domain.CategoryRecentlyRead); err != nil {
			return err
		}
		if bookmarked {
			return s.Categories.ensureTx(ctx, tx, workID, domain.CategoryFavorites)
		}
		return s.Categories.removeTx(ctx, tx, workID, domain.CategoryFavorites)
	})
}

// ToggleBookmark flips the bookmark flag and returns the new state.
// A work without progress gets a row at chapter 1, bookmarked. Favorites
// membership is updated in the same transaction to match.
func (s *Store) ToggleBookmark(ctx context.Context, workID domain.WorkID) (bool, error) {
	var bookmarked bool
	err := s.write(ctx, "toggle bookmark", func(tx *sql.Tx) error {
		ok, err := workExists(ctx, tx, workID)
		if err != nil {
			return err
		}
		if !ok {
			return store.ErrWorkNotFound
		}

		var state int
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO reading_progress (
				work_id, current_chapter, scroll_fraction, bookmarked, last_read_at
			) VALUES (?, 1, 0, 1, ?)
			ON CONFLICT(work_id) DO UPDATE SET
				bookmarked = 1 - reading_progress.bookmarked
			RETURNING bookmarked`,
			string(workID), formatTime(s.now()),
		).Scan(&state); err != nil {
			return err
		}
		bookmarked = state != 0

		if bookmarked {
			return s.Categories.ensureTx(ctx, tx, workID, domain.CategoryFavorites)
		}
		return s.Categories.removeTx(ctx, tx, workID, domain.CategoryFavorites)
	})
	if err != nil {
		return false, err
	}
	return bookmarked, nil
}

// SaveNotes stores free-form notes on the work's progress row.
func (s *Store) SaveNotes(ctx context.Context, workID domain.WorkID, notes string) error {
	return s.write(ctx, "save notes", func(tx *sql.Tx) error {
		ok, err := workExists(ctx, tx, workID)
		if err != nil {
			return err
		}
		if !ok {
			return store.ErrWorkNotFound
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reading_progress (work_id, notes, last_read_at)
			VALUES (?, ?, ?)
			ON CONFLICT(work_id) DO UPDATE SET notes = excluded.notes`,
			string(workID), notes, formatTime(s.now()))
		return err
	})
}

// GetReadingProgress retrieves a work's resume point.
// Returns store.ErrProgressNotFound if the work has never been opened.
func (s *Store) GetReadingProgress(ctx context.Context, workID domain.WorkID) (*domain.ReadingProgress, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT work_id, current_chapter, scroll_fraction, bookmarked, notes, last_read_at
		FROM reading_progress
		WHERE work_id = ?`, string(workID))

	p, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrProgressNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// RecentlyRead returns works with reading progress, most recently read first.
func (s *Store) RecentlyRead(ctx context.Context, limit int) ([]*domain.Work, error) {
	return s.queryWorks(ctx, `
		SELECT `+workColumnsW+`
		FROM works w
		JOIN reading_progress rp ON rp.work_id = w.id
		ORDER BY rp.last_read_at DESC
		LIMIT ?`, limit)
}

// BookmarkedWorks returns bookmarked works, most recently read first.
func (s *Store) BookmarkedWorks(ctx context.Context) ([]*domain.Work, error) {
	return s.queryWorks(ctx, `
		SELECT `+workColumnsW+`
		FROM works w
		JOIN reading_progress rp ON rp.work_id = w.id
		WHERE rp.bookmarked = 1
		ORDER BY rp.last_read_at DESC`)
}
