package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/listenupapp/novelvault/internal/domain"
	"github.com/listenupapp/novelvault/internal/download"
	domainerrors "github.com/listenupapp/novelvault/internal/errors"
	"github.com/listenupapp/novelvault/internal/id"
	"github.com/listenupapp/novelvault/internal/source"
	"github.com/listenupapp/novelvault/internal/store"
	"github.com/listenupapp/novelvault/internal/syncmap"
	"github.com/listenupapp/novelvault/internal/util"
)

// JobState is the lifecycle of an asynchronous download.
type JobState string

// Job states.
const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobPartial   JobState = "partial"
	JobFailed    JobState = "failed"
)

// Job is a snapshot of an asynchronous download.
type Job struct {
	ID         string        `json:"id"`
	WorkID     domain.WorkID `json:"work_id"`
	State      JobState      `json:"state"`
	Percent    int           `json:"percent"`
	Path       string        `json:"path,omitempty"`
	Missing    []int         `json:"missing,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// DownloadResult describes a finished download.
type DownloadResult struct {
	Work   *domain.Work
	Record *domain.DownloadRecord
	Report *download.FetchReport
}

// DownloadOptions configure a DownloadService.
type DownloadOptions struct {
	Dir            string // Artifacts are written here
	MaxConcurrency int    // Passed to FetchAll; zero uses the coordinator default
}

// DownloadService runs the whole download pipeline: describe the work, list
// its chapters, fetch them concurrently, assemble the artifact and record it.
//
// At most one download per work runs at a time. A second request for the same
// work is rejected with a conflict instead of sharing the chapter cache.
type DownloadService struct {
	store     store.Store
	sources   *source.Registry
	cache     *download.ChapterCache
	coord     *download.Coordinator
	assembler *download.Assembler
	opts      DownloadOptions
	logger    *slog.Logger

	inflight *syncmap.Map[domain.WorkID, struct{}]
	jobs     *syncmap.Map[string, *jobEntry]

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type jobEntry struct {
	mu  sync.Mutex
	job Job
}

// NewDownloadService creates a download service.
func NewDownloadService(
	st store.Store,
	sources *source.Registry,
	cache *download.ChapterCache,
	coord *download.Coordinator,
	assembler *download.Assembler,
	opts DownloadOptions,
	logger *slog.Logger,
) *DownloadService {
	ctx, cancel := context.WithCancel(context.Background())
	return &DownloadService{
		store:     st,
		sources:   sources,
		cache:     cache,
		coord:     coord,
		assembler: assembler,
		opts:      opts,
		logger:    logger,
		inflight:  syncmap.New[domain.WorkID, struct{}](),
		jobs:      syncmap.New[string, *jobEntry](),
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// Download runs a download to completion on the caller's goroutine.
// onProgress may be nil.
func (s *DownloadService) Download(ctx context.Context, sourceTag, localID string, onProgress download.ProgressFunc) (*DownloadResult, error) {
	src, workID, err := s.resolve(sourceTag, localID)
	if err != nil {
		return nil, err
	}
	if err := s.acquire(workID); err != nil {
		return nil, err
	}
	defer s.inflight.Delete(workID)

	return s.run(ctx, src, workID, onProgress)
}

// Start launches a download in the background and returns its job.
func (s *DownloadService) Start(sourceTag, localID string) (Job, error) {
	src, workID, err := s.resolve(sourceTag, localID)
	if err != nil {
		return Job{}, err
	}
	if err := s.acquire(workID); err != nil {
		return Job{}, err
	}

	jobID, err := id.Generate(id.PrefixJob)
	if err != nil {
		s.inflight.Delete(workID)
		return Job{}, domainerrors.Wrap(err, domainerrors.CodeInternal, "create job")
	}
	entry := &jobEntry{job: Job{ID: jobID, WorkID: workID, State: JobRunning, StartedAt: time.Now()}}
	s.jobs.Store(jobID, entry)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inflight.Delete(workID)

		result, err := s.run(s.baseCtx, src, workID, func(_ domain.WorkID, percent int) {
			entry.mu.Lock()
			entry.job.Percent = percent
			entry.mu.Unlock()
		})

		entry.mu.Lock()
		defer entry.mu.Unlock()
		now := time.Now()
		entry.job.FinishedAt = &now
		if err != nil {
			entry.job.State = JobFailed
			entry.job.Error = err.Error()
			return
		}
		entry.job.Path = result.Record.Path
		entry.job.Missing = result.Report.Missing
		entry.job.State = JobCompleted
		if result.Report.Partial() {
			entry.job.State = JobPartial
		}
	}()

	return entry.snapshot(), nil
}

// Job returns a snapshot of a background download.
func (s *DownloadService) Job(jobID string) (Job, error) {
	if !id.Is(id.PrefixJob, jobID) {
		return Job{}, domainerrors.NotFoundf("job %s not found", jobID)
	}
	entry, ok := s.jobs.Load(jobID)
	if !ok {
		return Job{}, domainerrors.NotFoundf("job %s not found", jobID)
	}
	return entry.snapshot(), nil
}

// Running reports whether a download for the work is in progress.
func (s *DownloadService) Running(workID domain.WorkID) bool {
	_, ok := s.inflight.Load(workID)
	return ok
}

// Shutdown cancels background downloads and waits for them to settle or ctx
// to expire.
func (s *DownloadService) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *jobEntry) snapshot() Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	job := e.job
	job.Missing = append([]int(nil), e.job.Missing...)
	return job
}

func (s *DownloadService) resolve(sourceTag, localID string) (source.Source, domain.WorkID, error) {
	src, err := s.sources.Get(sourceTag)
	if err != nil {
		return nil, "", domainerrors.Validationf("unknown source %q", sourceTag)
	}
	workID, err := domain.NewWorkID(sourceTag, localID)
	if err != nil {
		return nil, "", domainerrors.Validation(err.Error())
	}
	return src, workID, nil
}

func (s *DownloadService) acquire(workID domain.WorkID) error {
	if _, loaded := s.inflight.LoadOrStore(workID, struct{}{}); loaded {
		return domainerrors.Conflict(fmt.Sprintf("a download of %s is already running", workID))
	}
	return nil
}

func (s *DownloadService) run(ctx context.Context, src source.Source, workID domain.WorkID, onProgress download.ProgressFunc) (*DownloadResult, error) {
	start := time.Now()
	localID := workID.LocalID()

	work, err := src.Describe(ctx, localID)
	if err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeSourceUnavailable, "describe %s", workID)
	}
	work.ID = workID
	if err := s.store.UpsertWork(ctx, work); err != nil {
		return nil, fmt.Errorf("save work: %w", err)
	}

	chapters, err := src.ListChapters(ctx, localID)
	if err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeSourceUnavailable, "list chapters of %s", workID)
	}

	report, err := s.coord.FetchAll(ctx, src, workID, chapters, s.opts.MaxConcurrency, onProgress)
	if err != nil {
		if errors.Is(err, download.ErrNoChapters) || errors.Is(err, download.ErrNothingFetched) {
			return nil, domainerrors.Wrapf(err, domainerrors.CodeSourceUnavailable, "download %s", workID)
		}
		return nil, err
	}
	// Covers failures before assembly starts; releasing twice is harmless.
	defer s.cache.Release(workID)

	path := filepath.Join(s.opts.Dir, util.ArtifactFilename(work.Title, workID.String()))
	var emitted int
	err = download.WriteFileAtomic(path, func(w io.Writer) error {
		if err := download.WriteHeader(w, work); err != nil {
			return err
		}
		n, err := s.assembler.AssembleOrdered(workID, len(chapters), w)
		emitted = n
		return err
	})
	if err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeInternal, "write artifact for %s", workID)
	}

	// A partial download still succeeds; the gap is kept in MissingCount.
	rec := &domain.DownloadRecord{
		WorkID:       workID,
		Path:         path,
		Status:       domain.DownloadCompleted,
		ChapterCount: emitted,
		MissingCount: len(report.Missing),
	}
	if err := s.store.RecordDownload(ctx, rec); err != nil {
		return nil, fmt.Errorf("record download: %w", err)
	}

	s.logger.Info("download finished",
		"work_id", workID,
		"title", work.Title,
		"path", path,
		"chapters", emitted,
		"missing", len(report.Missing),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return &DownloadResult{Work: work, Record: rec, Report: report}, nil
}
