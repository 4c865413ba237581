package htmlsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/avast/retry-go/v4"

	"github.com/listenupapp/novelvault/internal/domain"
	"github.com/listenupapp/novelvault/internal/ratelimit"
)

const (
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	acceptLanguage = "zh-CN,zh;q=0.9,en;q=0.8"
	acceptHTML     = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// StatusError reports a non-200 response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Temporary reports whether retrying may help.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Options configure a Source.
type Options struct {
	Client       *http.Client  // Defaults to a client with a 30s timeout
	Attempts     uint          // Per page request (default: 3)
	RetryDelay   time.Duration // First backoff step (default: 500ms)
	MaxRetryWait time.Duration // Backoff cap (default: 5s)
}

// Source scrapes one site.
type Source struct {
	site    Site
	client  *http.Client
	limiter *ratelimit.KeyedRateLimiter // keyed by host
	logger  *slog.Logger
	opts    Options
}

// New creates a source for site.
func New(site Site, logger *slog.Logger, opts Options) (*Source, error) {
	if site.TitleSelector == "" {
		site.TitleSelector = "h1"
	}
	if err := site.Validate(); err != nil {
		return nil, err
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Attempts == 0 {
		opts.Attempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.MaxRetryWait <= 0 {
		opts.MaxRetryWait = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		site:    site,
		client:  opts.Client,
		limiter: ratelimit.New(site.RequestsPerSecond, site.Burst),
		logger:  logger.With("source", site.Tag),
		opts:    opts,
	}, nil
}

// Tag returns the site's tag.
func (s *Source) Tag() string { return s.site.Tag }

// Describe reads the work's metadata from its catalog page.
func (s *Source) Describe(ctx context.Context, localID string) (*domain.Work, error) {
	id, err := domain.NewWorkID(s.site.Tag, localID)
	if err != nil {
		return nil, err
	}
	catalog := s.site.catalogURL(localID)
	doc, base, err := s.getDocument(ctx, catalog)
	if err != nil {
		return nil, err
	}

	title := selectText(doc, s.site.TitleSelector)
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if title == "" {
		return nil, fmt.Errorf("%s: no title found on %s", id, catalog)
	}

	chapters := len(s.chapterRefs(doc, base))
	work := &domain.Work{
		ID:            id,
		Title:         title,
		Author:        selectText(doc, s.site.AuthorSelector),
		Status:        selectText(doc, s.site.StatusSelector),
		TotalChapters: chapters,
		ChapterLabel:  fmt.Sprintf("%d chapters", chapters),
		Metadata:      map[string]string{"catalog_url": catalog},
	}
	return work, nil
}

// ListChapters returns the chapter links on the catalog page in page order.
func (s *Source) ListChapters(ctx context.Context, localID string) ([]domain.ChapterRef, error) {
	doc, base, err := s.getDocument(ctx, s.site.catalogURL(localID))
	if err != nil {
		return nil, err
	}

	return s.chapterRefs(doc, base), nil
}

// chapterRefs extracts chapter links. Links without an href and repeated
// links are skipped.
func (s *Source) chapterRefs(doc *goquery.Document, base *url.URL) []domain.ChapterRef {
	var refs []domain.ChapterRef
	seen := make(map[string]bool)
	doc.Find(s.site.ChapterSelector).Each(func(i int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			s.logger.Debug("chapter link without href", "position", i)
			return
		}
		loc, err := base.Parse(strings.TrimSpace(href))
		if err != nil {
			s.logger.Debug("unparseable chapter link", "position", i, "href", href, "error", err)
			return
		}
		locator := loc.String()
		if seen[locator] {
			return
		}
		seen[locator] = true

		title := strings.Join(strings.Fields(sel.Text()), " ")
		if title == "" {
			title = fmt.Sprintf("Chapter %d", len(refs)+1)
		}
		refs = append(refs, domain.ChapterRef{Title: title, Locator: locator})
	})
	return refs
}

// FetchContent downloads a chapter page and returns its body as text.
func (s *Source) FetchContent(ctx context.Context, locator string) (string, error) {
	doc, _, err := s.getDocument(ctx, locator)
	if err != nil {
		return "", err
	}
	body := doc.Find(s.site.ContentSelector).First()
	if body.Length() == 0 {
		return "", fmt.Errorf("%s: content selector %q matched nothing", locator, s.site.ContentSelector)
	}
	body.Find("script, style").Remove()

	html, err := body.Html()
	if err != nil {
		return "", fmt.Errorf("%s: render content: %w", locator, err)
	}
	text, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("%s: convert content: %w", locator, err)
	}
	return strings.TrimSpace(text), nil
}

// getDocument fetches and parses a page, retrying network failures and
// temporary HTTP statuses with exponential backoff. It returns the final URL
// after redirects for resolving relative links.
func (s *Source) getDocument(ctx context.Context, pageURL string) (*goquery.Document, *url.URL, error) {
	type page struct {
		doc   *goquery.Document
		final *url.URL
	}

	p, err := retry.DoWithData(
		func() (page, error) {
			doc, final, err := s.fetchOnce(ctx, pageURL)
			return page{doc, final}, err
		},
		retry.Context(ctx),
		retry.Attempts(s.opts.Attempts),
		retry.Delay(s.opts.RetryDelay),
		retry.MaxDelay(s.opts.MaxRetryWait),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debug("retrying page", "url", pageURL, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, nil, err
	}
	return p.doc, p.final, nil
}

func (s *Source) fetchOnce(ctx context.Context, pageURL string) (*goquery.Document, *url.URL, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, retry.Unrecoverable(fmt.Errorf("parse url %q: %w", pageURL, err))
	}
	if err := s.limiter.Wait(ctx, u.Host); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, nil, retry.Unrecoverable(fmt.Errorf("create request for %s: %w", pageURL, err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHTML)
	req.Header.Set("Accept-Language", acceptLanguage)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("GET %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, nil, &StatusError{URL: pageURL, Code: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	return doc, resp.Request.URL, nil
}

// retryable reports whether err is worth another attempt.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

// selectText returns the whitespace-collapsed text of the first match, or ""
// when selector is empty or matches nothing.
func selectText(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(doc.Find(selector).First().Text()), " ")
}
