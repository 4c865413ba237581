package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/novelvault/internal/domain"
	"github.com/listenupapp/novelvault/internal/download"
	"github.com/listenupapp/novelvault/internal/ratelimit"
	"github.com/listenupapp/novelvault/internal/service"
	"github.com/listenupapp/novelvault/internal/source"
	"github.com/listenupapp/novelvault/internal/store/sqlite"
	"github.com/listenupapp/novelvault/internal/validation"
)

// memorySource serves a small fixed catalog.
type memorySource struct {
	tag      string
	chapters int
}

func (m *memorySource) Tag() string { return m.tag }

func (m *memorySource) Describe(_ context.Context, localID string) (*domain.Work, error) {
	return &domain.Work{Title: "Coiling Dragon " + localID, Author: "I Eat Tomatoes", TotalChapters: m.chapters}, nil
}

func (m *memorySource) ListChapters(_ context.Context, _ string) ([]domain.ChapterRef, error) {
	refs := make([]domain.ChapterRef, m.chapters)
	for i := range refs {
		refs[i] = domain.ChapterRef{Title: fmt.Sprintf("Chapter %d", i+1), Locator: fmt.Sprintf("/c/%d", i+1)}
	}
	return refs, nil
}

func (m *memorySource) FetchContent(_ context.Context, locator string) (string, error) {
	return "content of " + locator, nil
}

// testServer wraps the API server for testing.
type testServer struct {
	*Server
	api   humatest.TestAPI
	store *sqlite.Store
	dir   string
}

// setupTestServer creates a test server over a temporary library with one
// source tagged "mem".
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	dir := t.TempDir()

	st, err := sqlite.Open(filepath.Join(dir, "novel_database.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reg, err := source.NewRegistry(&memorySource{tag: "mem", chapters: 4})
	require.NoError(t, err)

	cache := download.NewChapterCache()
	coord := download.NewCoordinator(cache, ratelimit.New(0, 0), logger, download.Options{MaxConcurrency: 2})
	asm := download.NewAssembler(cache, logger, download.GapSkip)
	v := validation.New()

	downloads := service.NewDownloadService(st, reg, cache, coord, asm,
		service.DownloadOptions{Dir: filepath.Join(dir, "downloads")}, logger)
	t.Cleanup(func() { _ = downloads.Shutdown(context.Background()) })

	s := NewServer(&Services{
		Library:  service.NewLibraryService(st, v, logger),
		Download: downloads,
		Reading:  service.NewReadingService(st, v, logger),
		Sources:  reg,
	}, logger)

	return &testServer{
		Server: s,
		api:    humatest.Wrap(t, s.api),
		store:  st,
		dir:    dir,
	}
}

func (ts *testServer) seedWork(t *testing.T, id domain.WorkID, title string) {
	t.Helper()
	require.NoError(t, ts.store.UpsertWork(context.Background(), &domain.Work{
		ID:            id,
		Title:         title,
		Author:        "Er Gen",
		TotalChapters: 10,
	}))
}

// envelope mirrors Envelope with a typed payload.
type envelope[T any] struct {
	V       int             `json:"v"`
	Success bool            `json:"success"`
	Data    T               `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Details json.RawMessage `json:"details"`
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env), resp.Body.String())
	assert.Equal(t, envelopeVersion, env.V)
	return env
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	env := decode[HealthResponse](t, resp)
	assert.True(t, env.Success)
	assert.Equal(t, "healthy", env.Data.Status)
	assert.Equal(t, "1 source", env.Data.Components["sources"].Message)
}

func TestWorks_GetListDelete(t *testing.T) {
	ts := setupTestServer(t)
	ts.seedWork(t, "mem_1", "Renegade Immortal")
	ts.seedWork(t, "mem_2", "A Will Eternal")

	resp := ts.api.Get("/api/v1/works")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decode[ListWorksResponse](t, resp).Data.Works, 2)

	resp = ts.api.Get("/api/v1/works/mem_1")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Renegade Immortal", decode[domain.Work](t, resp).Data.Title)

	resp = ts.api.Delete("/api/v1/works/mem_1")
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = ts.api.Get("/api/v1/works/mem_1")
	require.Equal(t, http.StatusNotFound, resp.Code)
	env := decode[any](t, resp)
	assert.False(t, env.Success)
	assert.Equal(t, "NOT_FOUND", env.Code)
}

func TestWorks_MalformedID(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/works/noseparator")
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "VALIDATION", decode[any](t, resp).Code)
}

func TestWorks_Views(t *testing.T) {
	ts := setupTestServer(t)
	ts.seedWork(t, "mem_1", "Renegade Immortal")
	ts.seedWork(t, "mem_2", "A Will Eternal")

	resp := ts.api.Post("/api/v1/works/mem_2/bookmark")
	require.Equal(t, http.StatusOK, resp.Code)

	resp = ts.api.Get("/api/v1/works?view=bookmarked")
	require.Equal(t, http.StatusOK, resp.Code)
	works := decode[ListWorksResponse](t, resp).Data.Works
	require.Len(t, works, 1)
	assert.Equal(t, domain.WorkID("mem_2"), works[0].ID)

	resp = ts.api.Get("/api/v1/works?view=sideways")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestDownloads_JobLifecycle(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/downloads", map[string]any{"source": "mem", "local_id": "7"})
	require.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())
	job := decode[service.Job](t, resp).Data
	require.NotEmpty(t, job.ID)
	assert.Equal(t, domain.WorkID("mem_7"), job.WorkID)

	require.Eventually(t, func() bool {
		resp := ts.api.Get("/api/v1/downloads/" + job.ID)
		job = decode[service.Job](t, resp).Data
		return job.State != service.JobRunning
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, service.JobCompleted, job.State)
	assert.Equal(t, 100, job.Percent)
	assert.FileExists(t, job.Path)

	resp = ts.api.Get("/api/v1/works/mem_7/downloads")
	require.Equal(t, http.StatusOK, resp.Code)
	records := decode[ListDownloadsResponse](t, resp).Data.Downloads
	require.Len(t, records, 1)
	assert.Equal(t, domain.DownloadCompleted, records[0].Status)
	assert.Equal(t, 4, records[0].ChapterCount)

	resp = ts.api.Get("/api/v1/works/mem_7/categories")
	require.Equal(t, http.StatusOK, resp.Code)
	var names []string
	for _, c := range decode[ListCategoriesResponse](t, resp).Data.Categories {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, domain.CategoryDownloaded)
}

func TestDownloads_ByWorkID(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/works/mem_9/downloads")
	require.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())
	job := decode[service.Job](t, resp).Data
	assert.Equal(t, domain.WorkID("mem_9"), job.WorkID)

	require.Eventually(t, func() bool {
		return !ts.services.Download.Running("mem_9")
	}, 5*time.Second, 20*time.Millisecond)

	resp = ts.api.Get("/api/v1/works/mem_9")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Coiling Dragon 9", decode[domain.Work](t, resp).Data.Title)
}

func TestDownloads_Errors(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/downloads", map[string]any{"source": "nowhere", "local_id": "7"})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "VALIDATION", decode[any](t, resp).Code)

	resp = ts.api.Post("/api/v1/downloads", map[string]any{"source": "mem"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = ts.api.Get("/api/v1/downloads/job_missing")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestDownloads_RateLimited(t *testing.T) {
	ts := setupTestServer(t)
	ts.downloadLimiter = NewRateLimiter(1, time.Hour, 1)

	resp := ts.api.Post("/api/v1/downloads", map[string]any{"source": "nowhere", "local_id": "1"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = ts.api.Post("/api/v1/downloads", map[string]any{"source": "nowhere", "local_id": "1"})
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "RATE_LIMITED", decode[any](t, resp).Code)
}

func TestDownloads_Verify(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/downloads/verify")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, decode[domain.VerifyResult](t, resp).Success)
}

func TestProgress_SaveAndGet(t *testing.T) {
	ts := setupTestServer(t)
	ts.seedWork(t, "mem_1", "Renegade Immortal")

	resp := ts.api.Put("/api/v1/works/mem_1/progress", map[string]any{"chapter": 4, "fraction": 0.5})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, 4, decode[domain.ReadingProgress](t, resp).Data.CurrentChapter)

	resp = ts.api.Get("/api/v1/works/mem_1/progress")
	require.Equal(t, http.StatusOK, resp.Code)
	p := decode[domain.ReadingProgress](t, resp).Data
	assert.Equal(t, 4, p.CurrentChapter)
	assert.InDelta(t, 0.5, p.ScrollFraction, 1e-9)

	resp = ts.api.Put("/api/v1/works/mem_1/progress", map[string]any{"chapter": 0, "fraction": 0.5})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = ts.api.Put("/api/v1/works/mem_404/progress", map[string]any{"chapter": 1, "fraction": 0})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = ts.api.Put("/api/v1/works/mem_1/notes", map[string]any{"notes": "reread the tribulation arc"})
	assert.Equal(t, http.StatusNoContent, resp.Code)
}

func TestSessions_RecordHistoryStats(t *testing.T) {
	ts := setupTestServer(t)
	ts.seedWork(t, "mem_1", "Renegade Immortal")

	resp := ts.api.Post("/api/v1/works/mem_1/sessions", map[string]any{"duration_seconds": 30, "chapters_advanced": 1})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.False(t, decode[RecordSessionResponse](t, resp).Data.Recorded)

	resp = ts.api.Post("/api/v1/works/mem_1/sessions", map[string]any{"duration_seconds": 600, "chapters_advanced": 3})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, decode[RecordSessionResponse](t, resp).Data.Recorded)

	resp = ts.api.Get("/api/v1/works/mem_1/sessions")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decode[ListSessionsResponse](t, resp).Data.Sessions, 1)

	resp = ts.api.Get("/api/v1/works/mem_1/stats")
	require.Equal(t, http.StatusOK, resp.Code)
	stats := decode[domain.ReadingStats](t, resp).Data
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, 3, stats.TotalChapters)
	assert.Equal(t, 10*time.Minute, stats.TotalDuration)
}

func TestCategories(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/categories", map[string]any{"name": "Cultivation", "color": "#112233"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Equal(t, "Cultivation", decode[domain.Category](t, resp).Data.Name)

	resp = ts.api.Post("/api/v1/categories", map[string]any{"name": "Cultivation"})
	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "ALREADY_EXISTS", decode[any](t, resp).Code)

	resp = ts.api.Get("/api/v1/categories")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decode[ListCategoriesResponse](t, resp).Data.Categories, len(domain.BuiltinCategories)+1)

	resp = ts.api.Get("/api/v1/categories/Favorites/works")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decode[ListWorksResponse](t, resp).Data.Works)

	resp = ts.api.Get("/api/v1/categories/favs/works")
	require.Equal(t, http.StatusNotFound, resp.Code)
	var details struct {
		Suggestions []string `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal(decode[any](t, resp).Details, &details))
	assert.Contains(t, details.Suggestions, domain.CategoryFavorites)
}

func TestSearch(t *testing.T) {
	ts := setupTestServer(t)
	ts.seedWork(t, "mem_1", "Renegade Immortal")
	ts.seedWork(t, "mem_2", "A Will Eternal")

	resp := ts.api.Get("/api/v1/search?q=renimm")
	require.Equal(t, http.StatusOK, resp.Code)
	works := decode[SearchResponse](t, resp).Data.Works
	require.Len(t, works, 1)
	assert.Equal(t, domain.WorkID("mem_1"), works[0].ID)

	resp = ts.api.Get("/api/v1/search")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decode[SearchResponse](t, resp).Data.Works)
}

func TestLibrary_ExportAndCleanup(t *testing.T) {
	ts := setupTestServer(t)
	ts.seedWork(t, "mem_1", "Renegade Immortal")

	resp := ts.api.Post("/api/v1/library/export", map[string]any{"dir": "relative/out"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	out := filepath.Join(ts.dir, "export")
	resp = ts.api.Post("/api/v1/library/export", map[string]any{"dir": out})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, 1, decode[service.ExportSummary](t, resp).Data.Works)
	assert.FileExists(t, filepath.Join(out, service.ExportDatabaseFile))

	resp = ts.api.Post("/api/v1/library/cleanup")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Zero(t, decode[CleanupResponse](t, resp).Data.Removed)
}

func TestSources(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/sources")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []string{"mem"}, decode[ListSourcesResponse](t, resp).Data.Sources)
}
