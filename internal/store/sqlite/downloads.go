package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"

	"github.com/listenupapp/novelvault/internal/domain"
	"github.com/listenupapp/novelvault/internal/id"
	"github.com/listenupapp/novelvault/internal/store"
)

const downloadColumns = `id, work_id, path, size_bytes, status, chapter_count, missing_count, downloaded_at`

// scanDownload scans a sql.Row (or sql.Rows via its Scan method) into a domain.DownloadRecord.
func scanDownload(scanner interface{ Scan(dest ...any) error }) (*domain.DownloadRecord, error) {
	var (
		d            domain.DownloadRecord
		workID       string
		status       string
		downloadedAt string
	)

	err := scanner.Scan(
		&d.ID,
		&workID,
		&d.Path,
		&d.SizeBytes,
		&status,
		&d.ChapterCount,
		&d.MissingCount,
		&downloadedAt,
	)
	if err != nil {
		return nil, err
	}

	d.WorkID = domain.WorkID(workID)
	d.Status = domain.DownloadStatus(status)
	if d.DownloadedAt, err = parseTime(downloadedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// RecordDownload appends a download record. When the status is a success the
// work joins the Downloaded category in the same transaction, so the record
// and its membership commit together or not at all.
//
// rec needs WorkID, Path and Status; ID, DownloadedAt and (when zero)
// SizeBytes are filled in. Returns store.ErrWorkNotFound for unknown works.
func (s *Store) RecordDownload(ctx context.Context, rec *domain.DownloadRecord) error {
	if !rec.Status.Valid() {
		return store.ErrInvalidInput.WithMessage("unknown download status " + string(rec.Status))
	}
	if rec.SizeBytes == 0 {
		if info, err := os.Stat(rec.Path); err == nil {
			rec.SizeBytes = info.Size()
		} else {
			s.logger.Warn("download artifact not found when recording", "path", rec.Path, "error", err)
		}
	}
	if rec.ID == "" {
		var err error
		if rec.ID, err = id.Generate(id.PrefixDownload); err != nil {
			return err
		}
	}

	return s.write(ctx, "record download", func(tx *sql.Tx) error {
		ok, err := workExists(ctx, tx, rec.WorkID)
		if err != nil {
			return err
		}
		if !ok {
			return store.ErrWorkNotFound
		}

		rec.DownloadedAt = s.now()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO downloads (`+downloadColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID,
			string(rec.WorkID),
			rec.Path,
			rec.SizeBytes,
			string(rec.Status),
			rec.ChapterCount,
			rec.MissingCount,
			formatTime(rec.DownloadedAt),
		); err != nil {
			return err
		}

		if rec.Status.Succeeded() {
			return s.Categories.ensureTx(ctx, tx, rec.WorkID, domain.CategoryDownloaded)
		}
		return nil
	})
}

// ListDownloads returns a work's download records, most recent first.
func (s *Store) ListDownloads(ctx context.Context, workID domain.WorkID) ([]*domain.DownloadRecord, error) {
	return s.queryDownloads(ctx, `
		SELECT `+downloadColumns+` FROM downloads
		WHERE work_id = ?
		ORDER BY downloaded_at DESC, rowid DESC`, string(workID))
}

// ListAllDownloads returns every download record, most recent first.
func (s *Store) ListAllDownloads(ctx context.Context) ([]*domain.DownloadRecord, error) {
	return s.queryDownloads(ctx, `
		SELECT `+downloadColumns+` FROM downloads
		ORDER BY downloaded_at DESC, rowid DESC`)
}

// SetDownloadStatusByPath updates every record pointing at path.
// A non-negative size replaces the stored size. Returns the number of rows changed.
func (s *Store) SetDownloadStatusByPath(ctx context.Context, path string, status domain.DownloadStatus, size int64) (int64, error) {
	if !status.Valid() {
		return 0, store.ErrInvalidInput.WithMessage("unknown download status " + string(status))
	}
	var n int64
	err := s.write(ctx, "set download status", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE downloads
			SET status = ?,
			    size_bytes = CASE WHEN ? >= 0 THEN ? ELSE size_bytes END
			WHERE path = ?`,
			string(status), size, size, path)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// VerifyDownloads checks every recorded artifact on disk and marks it
// verified or missing.
func (s *Store) VerifyDownloads(ctx context.Context) (*domain.VerifyResult, error) {
	records, err := s.ListAllDownloads(ctx)
	if err != nil {
		return nil, err
	}

	type check struct {
		path   string
		status domain.DownloadStatus
		size   int64
	}
	seen := make(map[string]bool, len(records))
	var checks []check
	result := &domain.VerifyResult{}

	for _, rec := range records {
		if seen[rec.Path] {
			continue
		}
		seen[rec.Path] = true

		info, err := os.Stat(rec.Path)
		switch {
		case err == nil:
			checks = append(checks, check{rec.Path, domain.DownloadVerified, info.Size()})
			result.Verified = append(result.Verified, rec.Path)
		case errors.Is(err, fs.ErrNotExist):
			checks = append(checks, check{rec.Path, domain.DownloadMissing, -1})
			result.Missing = append(result.Missing, rec.Path)
		default:
			s.logger.Warn("cannot stat download", "path", rec.Path, "error", err)
		}
	}

	err = s.write(ctx, "verify downloads", func(tx *sql.Tx) error {
		for _, c := range checks {
			if _, err := tx.ExecContext(ctx, `
				UPDATE downloads
				SET status = ?,
				    size_bytes = CASE WHEN ? >= 0 THEN ? ELSE size_bytes END
				WHERE path = ?`,
				string(c.status), c.size, c.size, c.path); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("downloads verified",
		"verified", len(result.Verified),
		"missing", len(result.Missing),
	)
	return result, nil
}

func (s *Store) queryDownloads(ctx context.Context, query string, args ...any) ([]*domain.DownloadRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.DownloadRecord
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
