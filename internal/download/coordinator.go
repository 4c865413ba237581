// Package download fetches a work's chapters concurrently and assembles them
// in chapter order into a single text artifact.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/listenupapp/novelvault/internal/domain"
	"github.com/listenupapp/novelvault/internal/ratelimit"
)

// Errors returned by FetchAll.
var (
	ErrNoChapters     = errors.New("chapter list is empty")
	ErrNothingFetched = errors.New("no chapter could be fetched")
	ErrEmptyChapter   = errors.New("chapter content is empty")
	ErrFetchStalled   = errors.New("earlier fetches are still running past their timeout")
)

// Fetcher retrieves one chapter's text. Implementations may be slow or fail.
type Fetcher interface {
	FetchContent(ctx context.Context, locator string) (string, error)
}

// ProgressFunc receives download progress as a percentage of chapters fetched
// successfully. It is called from worker goroutines, one call at a time and
// with non-decreasing values. It must return quickly; UI callers should hand
// the value to their own goroutine instead of rendering inline.
type ProgressFunc func(workID domain.WorkID, percent int)

// Options tune the coordinator.
type Options struct {
	MaxConcurrency int           // Fetches in flight per download (default: 5)
	JitterMin      time.Duration // Lower bound of the pre-fetch delay
	JitterMax      time.Duration // Upper bound of the pre-fetch delay
	FetchTimeout   time.Duration // Hard limit per chapter (default: 30s)
}

// DefaultOptions returns the recommended options. NewCoordinator fills zero
// concurrency and timeout from it; zero jitter stays zero.
func DefaultOptions() Options {
	return Options{
		MaxConcurrency: 5,
		JitterMin:      200 * time.Millisecond,
		JitterMax:      800 * time.Millisecond,
		FetchTimeout:   30 * time.Second,
	}
}

// FetchReport describes a settled FetchAll.
type FetchReport struct {
	WorkID    domain.WorkID
	Total     int
	Succeeded int
	Missing   []int // Indices whose fetch failed, ascending
}

// Partial reports whether some chapters are missing.
func (r *FetchReport) Partial() bool { return len(r.Missing) > 0 }

// Coordinator runs bounded concurrent chapter fetches into a ChapterCache.
type Coordinator struct {
	cache   *ChapterCache
	limiter *ratelimit.KeyedRateLimiter
	logger  *slog.Logger
	opts    Options
}

// NewCoordinator creates a coordinator. limiter may be nil.
func NewCoordinator(cache *ChapterCache, limiter *ratelimit.KeyedRateLimiter, logger *slog.Logger, opts Options) *Coordinator {
	def := DefaultOptions()
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = def.MaxConcurrency
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = def.FetchTimeout
	}
	if opts.JitterMax < opts.JitterMin {
		opts.JitterMax = opts.JitterMin
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cache:   cache,
		limiter: limiter,
		logger:  logger,
		opts:    opts,
	}
}

// FetchAll fetches every chapter into the cache with at most maxConcurrency
// fetches in flight (the configured default when maxConcurrency <= 0). A
// fetch that outlives its timeout keeps its slot until the source returns.
//
// A failed chapter is logged and left out; it never stops its siblings.
// FetchAll fails only for an empty chapter list or when nothing could be
// fetched, and in the latter case the work's bucket is released. On success
// the bucket stays open for AssembleOrdered.
func (c *Coordinator) FetchAll(
	ctx context.Context,
	src Fetcher,
	workID domain.WorkID,
	chapters []domain.ChapterRef,
	maxConcurrency int,
	onProgress ProgressFunc,
) (*FetchReport, error) {
	n := len(chapters)
	if n == 0 {
		return nil, ErrNoChapters
	}

	limit := maxConcurrency
	if limit <= 0 {
		limit = c.opts.MaxConcurrency
	}
	limit = min(limit, n)

	c.cache.Open(workID)
	tracker := newProgressTracker(workID, n, onProgress)

	c.logger.Info("fetching chapters",
		"work_id", workID,
		"chapters", n,
		"concurrency", limit,
	)

	// Tasks never return errors; a plain Group keeps one failure from
	// cancelling the rest.
	var g errgroup.Group
	g.SetLimit(limit)
	slots := make(chan struct{}, limit)

	for i, ref := range chapters {
		g.Go(func() error {
			content, err := c.fetchOne(ctx, src, workID, ref, slots)
			if err == nil && !c.cache.Put(workID, Chapter{Index: i, Title: ref.Title, Content: content}) {
				err = errors.New("download was released before the chapter arrived")
			}
			if err != nil {
				c.logger.Warn("chapter fetch failed",
					"work_id", workID,
					"index", i,
					"title", ref.Title,
					"error", err,
				)
			}
			tracker.settle(i, err == nil)
			return nil
		})
	}
	_ = g.Wait()

	report := tracker.report()
	if report.Succeeded == 0 {
		c.cache.Release(workID)
		return report, fmt.Errorf("%s: %w", workID, ErrNothingFetched)
	}
	if report.Partial() {
		c.logger.Warn("download has missing chapters",
			"work_id", workID,
			"missing", report.Missing,
			"fetched", report.Succeeded,
			"total", n,
		)
	}
	return report, nil
}

// fetchOne waits out the jitter and the source's rate limit, then fetches
// under a hard timeout. The timeout holds even if the source ignores its
// context: the worker stops waiting and the late result is dropped, but the
// fetch holds its slot in slots until FetchContent returns.
func (c *Coordinator) fetchOne(ctx context.Context, src Fetcher, workID domain.WorkID, ref domain.ChapterRef, slots chan struct{}) (string, error) {
	if err := sleep(ctx, c.jitter()); err != nil {
		return "", err
	}
	if err := c.limiter.Wait(ctx, workID.Source()); err != nil {
		return "", err
	}
	if err := c.acquire(ctx, slots); err != nil {
		return "", fmt.Errorf("fetch %s: %w", ref.Locator, err)
	}

	fctx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()

	type result struct {
		content string
		err     error
	}
	done := make(chan result, 1)
	go func() {
		defer func() { <-slots }()
		content, err := src.FetchContent(fctx, ref.Locator)
		done <- result{content, err}
	}()

	select {
	case <-fctx.Done():
		return "", fmt.Errorf("fetch %s: %w", ref.Locator, fctx.Err())
	case r := <-done:
		if r.err != nil {
			return "", r.err
		}
		if strings.TrimSpace(r.content) == "" {
			return "", ErrEmptyChapter
		}
		return r.content, nil
	}
}

// acquire takes a fetch slot. Slots are only scarce while timed-out fetches
// are still running, so the wait is bounded by FetchTimeout.
func (c *Coordinator) acquire(ctx context.Context, slots chan struct{}) error {
	t := time.NewTimer(c.opts.FetchTimeout)
	defer t.Stop()
	select {
	case slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return ErrFetchStalled
	}
}

func (c *Coordinator) jitter() time.Duration {
	span := c.opts.JitterMax - c.opts.JitterMin
	if span <= 0 {
		return c.opts.JitterMin
	}
	return c.opts.JitterMin + rand.N(span)
}

// sleep pauses for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// progressTracker counts settled tasks and reports completion percentages.
type progressTracker struct {
	workID   domain.WorkID
	total    int
	callback ProgressFunc

	mu        sync.Mutex
	fetched   []bool
	succeeded int
	settled   int
}

func newProgressTracker(workID domain.WorkID, total int, callback ProgressFunc) *progressTracker {
	return &progressTracker{
		workID:   workID,
		total:    total,
		callback: callback,
		fetched:  make([]bool, total),
	}
}

// settle records a finished task and notifies the callback while still
// holding the lock, which keeps reported percentages in order.
func (p *progressTracker) settle(index int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.settled++
	if ok {
		p.fetched[index] = true
		p.succeeded++
	}
	if p.callback != nil {
		p.callback(p.workID, p.succeeded*100/p.total)
	}
}

func (p *progressTracker) report() *FetchReport {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := &FetchReport{WorkID: p.workID, Total: p.total, Succeeded: p.succeeded}
	for i, ok := range p.fetched {
		if !ok {
			r.Missing = append(r.Missing, i)
		}
	}
	return r
}
