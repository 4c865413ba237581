package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/listenupapp/novelvault/internal/domain"
	"github.com/listenupapp/novelvault/internal/id"
	"github.com/listenupapp/novelvault/internal/store"
)

// AddReadingSession appends a reading history entry.
// History rows are never updated; they only feed ReadingStats.
func (s *Store) AddReadingSession(ctx context.Context, session *domain.ReadingSession) error {
	if session.ID == "" {
		var err error
		if session.ID, err = id.Generate(id.PrefixSession); err != nil {
			return err
		}
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = s.now().Add(-session.Duration)
	}

	return s.write(ctx, "add reading session", func(tx *sql.Tx) error {
		ok, err := workExists(ctx, tx, session.WorkID)
		if err != nil {
			return err
		}
		if !ok {
			return store.ErrWorkNotFound
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO reading_sessions (id, work_id, duration_ms, chapters_advanced, started_at)
			VALUES (?, ?, ?, ?, ?)`,
			session.ID,
			string(session.WorkID),
			session.Duration.Milliseconds(),
			session.ChaptersAdvanced,
			formatTime(session.StartedAt),
		)
		return err
	})
}

// ReadingHistory returns a work's sessions, newest first. A negative limit
// returns all of them.
func (s *Store) ReadingHistory(ctx context.Context, workID domain.WorkID, limit int) ([]*domain.ReadingSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, work_id, duration_ms, chapters_advanced, started_at
		FROM reading_sessions
		WHERE work_id = ?
		ORDER BY started_at DESC
		LIMIT ?`, string(workID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.ReadingSession
	for rows.Next() {
		var (
			rs         domain.ReadingSession
			wid        string
			durationMs int64
			startedAt  string
		)
		if err := rows.Scan(&rs.ID, &wid, &durationMs, &rs.ChaptersAdvanced, &startedAt); err != nil {
			return nil, err
		}
		rs.WorkID = domain.WorkID(wid)
		rs.Duration = time.Duration(durationMs) * time.Millisecond
		if rs.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, &rs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ReadingStats aggregates a work's reading history.
func (s *Store) ReadingStats(ctx context.Context, workID domain.WorkID) (*domain.ReadingStats, error) {
	var (
		stats      = domain.ReadingStats{WorkID: workID}
		durationMs int64
		last       sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(duration_ms), 0),
		       COALESCE(SUM(chapters_advanced), 0),
		       MAX(started_at)
		FROM reading_sessions
		WHERE work_id = ?`, string(workID),
	).Scan(&stats.Sessions, &durationMs, &stats.TotalChapters, &last)
	if err != nil {
		return nil, err
	}

	stats.TotalDuration = time.Duration(durationMs) * time.Millisecond
	if stats.LastSession, err = parseNullableTime(last); err != nil {
		return nil, err
	}
	return &stats, nil
}
