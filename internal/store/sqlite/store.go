// Package sqlite is the embedded library store: works, downloads, reading
// progress, categories and reading history in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/listenupapp/novelvault/internal/domain"
	"github.com/listenupapp/novelvault/internal/store"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schemaSQL string

// DefaultBusyTimeout is how long SQLite itself waits on a locked database
// before reporting SQLITE_BUSY to the retry layer.
const DefaultBusyTimeout = 2 * time.Second

// Options tune an opened store.
type Options struct {
	Retry       store.RetryPolicy
	BusyTimeout time.Duration
}

// Store provides SQLite-backed persistence for the library.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	retrier *store.Retrier

	// Categories maintains derived category membership.
	Categories *CategoryIndexer

	// writeMu serializes writers inside this process; SQLite's own writer
	// lock (BEGIN IMMEDIATE) covers other processes.
	writeMu sync.Mutex

	now func() time.Time
}

// Open creates or opens the store at path with default options.
func Open(path string, logger *slog.Logger) (*Store, error) {
	return OpenWithOptions(path, logger, Options{})
}

// OpenWithOptions creates or opens the store at path.
// It configures WAL mode, runs the schema and provisions built-in categories.
func OpenWithOptions(path string, logger *slog.Logger, opts Options) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultBusyTimeout
	}

	db, err := sql.Open("sqlite", dsn(path, opts.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	s := &Store{
		db:      db,
		logger:  logger,
		retrier: store.NewRetrier(opts.Retry, logger),
		now:     func() time.Time { return time.Now().UTC() },
	}
	s.Categories = &CategoryIndexer{s: s}

	if err := s.provisionCategories(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("provision categories: %w", err)
	}

	return s, nil
}

// dsn builds a connection string whose pragmas apply to every pooled
// connection, not just the first.
func dsn(path string, busyTimeout time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(ON)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Retrier returns the retry wrapper every write goes through.
func (s *Store) Retrier() *store.Retrier {
	return s.retrier
}

// provisionCategories creates the built-in categories if absent.
// Concurrent opens of the same file may race here; INSERT OR IGNORE absorbs it.
func (s *Store) provisionCategories(ctx context.Context) error {
	return s.write(ctx, "provision categories", func(tx *sql.Tx) error {
		now := formatTime(s.now())
		for _, c := range domain.BuiltinCategories {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO categories (name, color, created_at) VALUES (?, ?, ?)`,
				c.Name, c.Color, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// write runs fn in one immediate transaction, retried on contention.
// It is the only path by which the store mutates the database.
func (s *Store) write(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	return s.retrier.Do(ctx, op, func(ctx context.Context) error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return classify(err)
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			return classify(err)
		}
		return classify(tx.Commit())
	})
}

// classify turns SQLite contention into store.ErrBusy and leaves other errors alone.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isBusy(err) {
		return store.ErrBusy.WithCause(err)
	}
	return err
}

// isBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED, including extended codes.
func isBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// workExists checks for a work inside a transaction.
func workExists(ctx context.Context, tx *sql.Tx, id domain.WorkID) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM works WHERE id = ?`, string(id)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// formatTime formats a time.Time to RFC3339Nano for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a RFC3339Nano string back to time.Time.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// parseNullableTime parses an optional time string.
func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
