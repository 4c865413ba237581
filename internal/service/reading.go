package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/listenupapp/novelvault/internal/domain"
	"github.com/listenupapp/novelvault/internal/store"
	"github.com/listenupapp/novelvault/internal/validation"
)

// ReadingService records reading history and reports on it.
type ReadingService struct {
	store     store.Store
	validator *validation.Validator
	logger    *slog.Logger

	now func() time.Time
}

// NewReadingService creates a reading service.
func NewReadingService(st store.Store, v *validation.Validator, logger *slog.Logger) *ReadingService {
	return &ReadingService{store: st, validator: v, logger: logger, now: time.Now}
}

// SessionInput is a finished reading stint reported by a client.
type SessionInput struct {
	Duration         time.Duration `json:"duration" validate:"gte=0"`
	ChaptersAdvanced int           `json:"chapters_advanced" validate:"gte=0"`
}

// Record stores a finished session. Sessions shorter than
// domain.MinSessionDuration are dropped and reported as not recorded.
func (s *ReadingService) Record(ctx context.Context, workID domain.WorkID, in SessionInput) (*domain.ReadingSession, bool, error) {
	if err := s.validator.Validate(in); err != nil {
		return nil, false, err
	}
	if in.Duration <= domain.MinSessionDuration {
		s.logger.Debug("reading session too short, skipped", "work_id", workID, "duration", in.Duration)
		return nil, false, nil
	}

	session := &domain.ReadingSession{
		WorkID:           workID,
		Duration:         in.Duration,
		ChaptersAdvanced: in.ChaptersAdvanced,
		StartedAt:        s.now().UTC().Add(-in.Duration),
	}
	if err := s.store.AddReadingSession(ctx, session); err != nil {
		return nil, false, mapNotFound(err, "work %s not found", workID)
	}
	s.logger.Info("reading session recorded",
		"work_id", workID,
		"duration", in.Duration.Round(time.Second),
		"chapters", in.ChaptersAdvanced,
	)
	return session, true, nil
}

// History returns the most recent sessions of a work.
func (s *ReadingService) History(ctx context.Context, workID domain.WorkID, limit int) ([]*domain.ReadingSession, error) {
	if _, err := s.store.GetWork(ctx, workID); err != nil {
		return nil, mapNotFound(err, "work %s not found", workID)
	}
	history, err := s.store.ReadingHistory(ctx, workID, limit)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return history, nil
}

// Stats aggregates the reading history of a work.
func (s *ReadingService) Stats(ctx context.Context, workID domain.WorkID) (*domain.ReadingStats, error) {
	if _, err := s.store.GetWork(ctx, workID); err != nil {
		return nil, mapNotFound(err, "work %s not found", workID)
	}
	return s.store.ReadingStats(ctx, workID)
}

// Begin opens an in-memory reader session at startChapter.
func (s *ReadingService) Begin(workID domain.WorkID, startChapter int) *ReaderSession {
	return &ReaderSession{svc: s, workID: workID, startChapter: startChapter, startedAt: s.now()}
}

// ReaderSession tracks one sitting in the reader. Nothing is stored until
// Finish.
type ReaderSession struct {
	svc          *ReadingService
	workID       domain.WorkID
	startChapter int
	startedAt    time.Time
}

// WorkID returns the work being read.
func (r *ReaderSession) WorkID() domain.WorkID { return r.workID }

// Finish closes the sitting at endChapter. Sittings of a minute or less are
// not recorded. Chapters advanced counts both ends, so staying on one
// chapter counts as one.
func (r *ReaderSession) Finish(ctx context.Context, endChapter int) (*domain.ReadingSession, bool, error) {
	chapters := endChapter - r.startChapter + 1
	if chapters < 0 {
		chapters = 0
	}
	return r.svc.Record(ctx, r.workID, SessionInput{
		Duration:         r.svc.now().Sub(r.startedAt),
		ChaptersAdvanced: chapters,
	})
}
