package htmlsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogPage = `<html><head><title>Fallback Title</title></head><body>
<h1 class="book">Lord of Mysteries</h1>
<span class="author"> Cuttlefish  That Loves Diving </span>
<span class="status">completed</span>
<ul class="toc">
  <li><a href="/chapter/1">Chapter 1  Crimson</a></li>
  <li><a href="chapter/2">Chapter 2 Situation</a></li>
  <li><a>Locked chapter</a></li>
  <li><a href="/chapter/1">Chapter 1 Crimson</a></li>
</ul>
</body></html>`

const chapterPage = `<html><body>
<div class="nav">Prev | Next</div>
<div id="content"><p>Pain.</p><p>Klein woke up.</p><script>track()</script></div>
</body></html>`

func newSiteServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/book/42/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, catalogPage)
	})
	mux.HandleFunc("/book/42/chapter/2", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, chapterPage)
	})
	mux.HandleFunc("/chapter/1", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla")
		io.WriteString(w, chapterPage)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testSite(baseURL string) Site {
	return Site{
		Tag:             "demo",
		CatalogURL:      baseURL + "/book/{id}/",
		TitleSelector:   "h1.book",
		AuthorSelector:  ".author",
		StatusSelector:  ".status",
		ChapterSelector: "ul.toc a",
		ContentSelector: "#content",
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastOptions() Options {
	return Options{RetryDelay: time.Millisecond, MaxRetryWait: 5 * time.Millisecond}
}

func TestDescribe(t *testing.T) {
	srv := newSiteServer(t)
	src, err := New(testSite(srv.URL), quietLogger(), fastOptions())
	require.NoError(t, err)

	work, err := src.Describe(context.Background(), "42")
	require.NoError(t, err)

	assert.Equal(t, "demo_42", work.ID.String())
	assert.Equal(t, "Lord of Mysteries", work.Title)
	assert.Equal(t, "Cuttlefish That Loves Diving", work.Author)
	assert.Equal(t, "completed", work.Status)
	assert.Equal(t, 2, work.TotalChapters)
	assert.Equal(t, srv.URL+"/book/42/", work.Metadata["catalog_url"])
}

func TestListChapters_ResolvesAndDeduplicates(t *testing.T) {
	srv := newSiteServer(t)
	src, err := New(testSite(srv.URL), quietLogger(), fastOptions())
	require.NoError(t, err)

	refs, err := src.ListChapters(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, refs, 2)

	assert.Equal(t, "Chapter 1 Crimson", refs[0].Title)
	assert.Equal(t, srv.URL+"/chapter/1", refs[0].Locator)
	assert.Equal(t, srv.URL+"/book/42/chapter/2", refs[1].Locator)
}

func TestFetchContent_ConvertsBody(t *testing.T) {
	srv := newSiteServer(t)
	src, err := New(testSite(srv.URL), quietLogger(), fastOptions())
	require.NoError(t, err)

	text, err := src.FetchContent(context.Background(), srv.URL+"/chapter/1")
	require.NoError(t, err)

	assert.Contains(t, text, "Pain.")
	assert.Contains(t, text, "Klein woke up.")
	assert.NotContains(t, text, "track()")
	assert.NotContains(t, text, "Prev")
}

func TestFetchContent_SelectorMiss(t *testing.T) {
	srv := newSiteServer(t)
	site := testSite(srv.URL)
	site.ContentSelector = ".missing"
	src, err := New(site, quietLogger(), fastOptions())
	require.NoError(t, err)

	_, err = src.FetchContent(context.Background(), srv.URL+"/chapter/1")
	assert.ErrorContains(t, err, "matched nothing")
}

func TestFetch_RetriesTemporaryStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, chapterPage)
	}))
	defer srv.Close()

	src, err := New(testSite(srv.URL), quietLogger(), fastOptions())
	require.NoError(t, err)

	text, err := src.FetchContent(context.Background(), srv.URL+"/any")
	require.NoError(t, err)
	assert.Contains(t, text, "Pain.")
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_DoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	src, err := New(testSite(srv.URL), quietLogger(), fastOptions())
	require.NoError(t, err)

	_, err = src.FetchContent(context.Background(), srv.URL+"/gone")
	var se *StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_CancelledContext(t *testing.T) {
	srv := newSiteServer(t)
	src, err := New(testSite(srv.URL), quietLogger(), fastOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = src.FetchContent(ctx, srv.URL+"/chapter/1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSiteValidate(t *testing.T) {
	site := testSite("http://example.com")
	require.NoError(t, site.Validate())

	site.CatalogURL = "http://example.com/book/"
	site.ChapterSelector = ""
	err := site.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{id}")
	assert.Contains(t, err.Error(), "chapter_selector")
}

func TestLoadSites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.json")
	body := `{"sources": [
	  {"tag": "qidian", "catalog_url": "https://book.example/{id}/catalog",
	   "chapter_selector": ".toc a", "content_selector": ".read-content",
	   "requests_per_second": 2, "burst": 4}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	sites, err := LoadSites(path)
	require.NoError(t, err)
	require.Len(t, sites, 1)

	assert.Equal(t, "qidian", sites[0].Tag)
	assert.Equal(t, "h1", sites[0].TitleSelector)
	assert.Equal(t, 2.0, sites[0].RequestsPerSecond)
	assert.Equal(t, 4, sites[0].Burst)
	assert.Equal(t, "https://book.example/77/catalog", sites[0].catalogURL("77"))
}

func TestLoadSites_RejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.json")
	entry := `{"tag": "a", "catalog_url": "http://x/{id}", "chapter_selector": "a", "content_selector": "p"}`
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(`{"sources": [%s, %s]}`, entry, entry)), 0o644))

	_, err := LoadSites(path)
	assert.ErrorContains(t, err, "duplicate")
}
