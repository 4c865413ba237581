package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/listenupapp/novelvault/internal/domain"
	"github.com/listenupapp/novelvault/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := Open(dbPath, testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// insertTestWork upserts a minimal work and fails the test on error.
func insertTestWork(t *testing.T, s *Store, id domain.WorkID, title string) *domain.Work {
	t.Helper()
	w := &domain.Work{ID: id, Title: title, Author: "Test Author"}
	if err := s.UpsertWork(context.Background(), w); err != nil {
		t.Fatalf("insert test work %s: %v", id, err)
	}
	return w
}

// fakeClock returns increasing timestamps one second apart.
func fakeClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func TestOpen(t *testing.T) {
	s := newTestStore(t)

	var journalMode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("expected wal, got %s", journalMode)
	}

	// Every pooled connection must enforce foreign keys, not just the first.
	ctx := context.Background()
	for i := range 3 {
		conn, err := s.db.Conn(ctx)
		if err != nil {
			t.Fatalf("conn %d: %v", i, err)
		}
		defer conn.Close()
		var fk int
		if err := conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
			t.Fatalf("query foreign_keys: %v", err)
		}
		if fk != 1 {
			t.Errorf("conn %d: expected foreign_keys=1, got %d", i, fk)
		}
	}

	tables := []string{
		"works", "downloads", "reading_progress", "categories",
		"work_categories", "reading_sessions",
	}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestOpen_ProvisionsBuiltinCategories(t *testing.T) {
	s := newTestStore(t)

	for _, want := range domain.BuiltinCategories {
		got, err := s.GetCategory(context.Background(), want.Name)
		if err != nil {
			t.Fatalf("GetCategory(%q): %v", want.Name, err)
		}
		if got.Color != want.Color {
			t.Errorf("%s color: got %q, want %q", want.Name, got.Color, want.Color)
		}
	}
}

func TestOpen_ConcurrentProvisioning(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "shared.db")

	// Create the file first so the schema itself does not race.
	first, err := Open(dbPath, testLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer first.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := Open(dbPath, testLogger())
			if err != nil {
				errs <- err
				return
			}
			s.Close()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent open: %v", err)
	}

	cats, err := first.ListCategories(context.Background())
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(cats) != len(domain.BuiltinCategories) {
		t.Errorf("expected %d categories, got %d", len(domain.BuiltinCategories), len(cats))
	}
}

func TestOpenClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(dbPath, testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	insertTestWork(t, s, "qidian_1", "Persisted")
	if err := s.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	// Re-open should work (schema is idempotent) and keep the data.
	s2, err := Open(dbPath, testLogger())
	if err != nil {
		t.Fatalf("re-open store: %v", err)
	}
	defer s2.Close()

	if _, err := s2.GetWork(context.Background(), "qidian_1"); err != nil {
		t.Errorf("work lost across reopen: %v", err)
	}
}

func TestWrite_RetriesBusyFromCallback(t *testing.T) {
	s := newTestStore(t)

	attempts := 0
	err := s.write(context.Background(), "test", func(*sql.Tx) error {
		attempts++
		if attempts < 3 {
			return store.ErrBusy
		}
		return nil
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestWrite_NonBusyErrorNotRetried(t *testing.T) {
	s := newTestStore(t)

	attempts := 0
	boom := errors.New("boom")
	err := s.write(context.Background(), "test", func(*sql.Tx) error {
		attempts++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestWrite_RetriesWhenAnotherConnectionHoldsTheLock(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "locked.db")
	s, err := OpenWithOptions(dbPath, testLogger(), Options{
		BusyTimeout: 20 * time.Millisecond,
		Retry:       store.RetryPolicy{Attempts: 10, BaseDelay: 20 * time.Millisecond, MaxDelay: 200 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	var retries atomic.Int32
	s.Retrier().OnRetry = func(string, int, time.Duration, error) { retries.Add(1) }

	// A second handle plays the part of another process holding the writer lock.
	other, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open second handle: %v", err)
	}
	defer other.Close()

	ctx := context.Background()
	conn, err := other.Conn(ctx)
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		t.Fatalf("begin immediate: %v", err)
	}

	released := make(chan struct{})
	go func() {
		time.Sleep(150 * time.Millisecond)
		conn.ExecContext(ctx, "COMMIT")
		close(released)
	}()

	w := &domain.Work{ID: "qidian_42", Title: "Contended"}
	if err := s.UpsertWork(ctx, w); err != nil {
		t.Fatalf("UpsertWork under contention: %v", err)
	}
	<-released

	if retries.Load() == 0 {
		t.Error("expected at least one busy retry")
	}
}

func TestIsBusy(t *testing.T) {
	if !isBusy(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Error("expected locked message to be busy")
	}
	if isBusy(errors.New("UNIQUE constraint failed: categories.name")) {
		t.Error("constraint failure is not busy")
	}
	if !errors.Is(classify(errors.New("database is locked")), store.ErrBusy) {
		t.Error("classify should map locked to ErrBusy")
	}
}
