package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// VerifyScheduler runs download verification on a cron schedule while the
// server is up.
type VerifyScheduler struct {
	cron    *cron.Cron
	library *LibraryService
	timeout time.Duration
	logger  *slog.Logger
}

// NewVerifyScheduler registers a verification job for schedule, which takes
// standard five-field cron expressions and descriptors like "@every 6h".
// An empty schedule disables the job.
func NewVerifyScheduler(library *LibraryService, schedule string, logger *slog.Logger) (*VerifyScheduler, error) {
	s := &VerifyScheduler{
		cron:    cron.New(),
		library: library,
		timeout: 5 * time.Minute,
		logger:  logger,
	}
	if schedule == "" {
		return s, nil
	}
	if _, err := s.cron.AddFunc(schedule, s.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid verify schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins running scheduled jobs in the background.
func (s *VerifyScheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running verification to finish
// or ctx to expire.
func (s *VerifyScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries reports how many jobs are scheduled.
func (s *VerifyScheduler) Entries() int {
	return len(s.cron.Entries())
}

// RunOnce verifies all downloads now.
func (s *VerifyScheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	s.logger.Info("start scheduled verification")
	if _, err := s.library.VerifyDownloads(ctx); err != nil {
		s.logger.Error("scheduled verification failed", "error", err)
		return
	}
	s.logger.Info("finish scheduled verification", "duration", time.Since(start).Round(time.Millisecond))
}
