package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/listenupapp/novelvault/internal/domain"
	"github.com/listenupapp/novelvault/internal/download"
	"github.com/listenupapp/novelvault/internal/ratelimit"
	"github.com/listenupapp/novelvault/internal/source"
	"github.com/listenupapp/novelvault/internal/store/sqlite"
	"github.com/listenupapp/novelvault/internal/validation"
)

// fakeSource serves a fixed catalog from memory.
type fakeSource struct {
	tag      string
	work     domain.Work
	chapters []domain.ChapterRef
	content  map[string]string

	mu      sync.Mutex
	fail    map[string]bool
	release chan struct{} // when set, FetchContent waits on it
}

func newFakeSource(tag string, n int) *fakeSource {
	f := &fakeSource{
		tag:     tag,
		work:    domain.Work{Title: "Sword of Dawn", Author: "Lin Feng", Status: "Ongoing", TotalChapters: n},
		content: make(map[string]string),
		fail:    make(map[string]bool),
	}
	for i := 1; i <= n; i++ {
		loc := fmt.Sprintf("/c/%d", i)
		f.chapters = append(f.chapters, domain.ChapterRef{Title: fmt.Sprintf("Chapter %d", i), Locator: loc})
		f.content[loc] = fmt.Sprintf("text of chapter %d", i)
	}
	return f
}

func (f *fakeSource) failLocator(loc string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[loc] = true
}

func (f *fakeSource) Tag() string { return f.tag }

func (f *fakeSource) Describe(_ context.Context, _ string) (*domain.Work, error) {
	w := f.work
	return &w, nil
}

func (f *fakeSource) ListChapters(_ context.Context, _ string) ([]domain.ChapterRef, error) {
	return f.chapters, nil
}

func (f *fakeSource) FetchContent(ctx context.Context, locator string) (string, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[locator] {
		return "", errors.New("connection reset")
	}
	return f.content[locator], nil
}

type testEnv struct {
	store     *sqlite.Store
	downloads *DownloadService
	library   *LibraryService
	reading   *ReadingService
	dir       string
}

func setupEnv(t *testing.T, sources ...source.Source) *testEnv {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	dir := t.TempDir()

	st, err := sqlite.Open(filepath.Join(dir, "novel_database.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg, err := source.NewRegistry(sources...)
	require.NoError(t, err)

	cache := download.NewChapterCache()
	coord := download.NewCoordinator(cache, ratelimit.New(0, 0), logger, download.Options{MaxConcurrency: 3})
	asm := download.NewAssembler(cache, logger, download.GapSkip)
	v := validation.New()

	env := &testEnv{
		store:     st,
		downloads: NewDownloadService(st, reg, cache, coord, asm, DownloadOptions{Dir: filepath.Join(dir, "downloads")}, logger),
		library:   NewLibraryService(st, v, logger),
		reading:   NewReadingService(st, v, logger),
		dir:       dir,
	}
	t.Cleanup(func() { _ = env.downloads.Shutdown(context.Background()) })
	return env
}

// seedWork stores a work directly, bypassing any source.
func seedWork(t *testing.T, env *testEnv, id domain.WorkID, title, author string) {
	t.Helper()
	require.NoError(t, env.store.UpsertWork(context.Background(), &domain.Work{
		ID:            id,
		Title:         title,
		Author:        author,
		TotalChapters: 10,
	}))
}
