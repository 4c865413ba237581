package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/novelvault/internal/domain"
	"github.com/listenupapp/novelvault/internal/service"
)

func (s *Server) registerProgressRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getProgress",
		Method:      http.MethodGet,
		Path:        "/api/v1/works/{id}/progress",
		Summary:     "Get reading progress",
		Description: "Returns the resume point of a work, clamped to its chapter count",
		Tags:        []string{"Reading"},
	}, s.handleGetProgress)

	huma.Register(s.api, huma.Operation{
		OperationID: "saveProgress",
		Method:      http.MethodPut,
		Path:        "/api/v1/works/{id}/progress",
		Summary:     "Save reading progress",
		Description: "Replaces the resume point of a work",
		Tags:        []string{"Reading"},
	}, s.handleSaveProgress)

	huma.Register(s.api, huma.Operation{
		OperationID: "toggleBookmark",
		Method:      http.MethodPost,
		Path:        "/api/v1/works/{id}/bookmark",
		Summary:     "Toggle bookmark",
		Description: "Flips the bookmark flag. Bookmarked works are in the Favorites category.",
		Tags:        []string{"Reading"},
	}, s.handleToggleBookmark)

	huma.Register(s.api, huma.Operation{
		OperationID:   "saveNotes",
		Method:        http.MethodPut,
		Path:          "/api/v1/works/{id}/notes",
		Summary:       "Save notes",
		Description:   "Stores free-form notes for a work",
		Tags:          []string{"Reading"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleSaveNotes)

	huma.Register(s.api, huma.Operation{
		OperationID: "recordSession",
		Method:      http.MethodPost,
		Path:        "/api/v1/works/{id}/sessions",
		Summary:     "Record reading session",
		Description: "Appends a finished reading session. Sessions of a minute or less are accepted but not stored.",
		Tags:        []string{"Reading"},
	}, s.handleRecordSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "listSessions",
		Method:      http.MethodGet,
		Path:        "/api/v1/works/{id}/sessions",
		Summary:     "Reading history",
		Description: "Returns the most recent reading sessions of a work",
		Tags:        []string{"Reading"},
	}, s.handleListSessions)

	huma.Register(s.api, huma.Operation{
		OperationID: "getReadingStats",
		Method:      http.MethodGet,
		Path:        "/api/v1/works/{id}/stats",
		Summary:     "Reading stats",
		Description: "Aggregates the reading history of a work",
		Tags:        []string{"Reading"},
	}, s.handleReadingStats)
}

// === DTOs ===

// ProgressOutput wraps reading progress for Huma.
type ProgressOutput struct {
	Body *domain.ReadingProgress
}

// SaveProgressRequest is the request body for saving progress.
type SaveProgressRequest struct {
	Chapter    int     `json:"chapter" minimum:"1" doc:"Current chapter, 1-based"`
	Fraction   float64 `json:"fraction" minimum:"0" maximum:"1" doc:"Scroll position within the chapter"`
	Bookmarked bool    `json:"bookmarked,omitempty" doc:"Bookmark flag"`
}

// SaveProgressInput wraps the save progress request for Huma.
type SaveProgressInput struct {
	ID   string `path:"id" doc:"Work ID"`
	Body SaveProgressRequest
}

// BookmarkResponse reports the bookmark flag after a toggle.
type BookmarkResponse struct {
	Bookmarked bool `json:"bookmarked" doc:"New bookmark state"`
}

// BookmarkOutput wraps the bookmark response for Huma.
type BookmarkOutput struct {
	Body BookmarkResponse
}

// SaveNotesRequest is the request body for saving notes.
type SaveNotesRequest struct {
	Notes string `json:"notes" maxLength:"10000" doc:"Free-form notes"`
}

// SaveNotesInput wraps the save notes request for Huma.
type SaveNotesInput struct {
	ID   string `path:"id" doc:"Work ID"`
	Body SaveNotesRequest
}

// SaveNotesOutput is empty; the route answers 204.
type SaveNotesOutput struct{}

// RecordSessionRequest is the request body for recording a session.
type RecordSessionRequest struct {
	DurationSeconds  int `json:"duration_seconds" minimum:"0" doc:"Length of the session in seconds"`
	ChaptersAdvanced int `json:"chapters_advanced" minimum:"0" doc:"Chapters read during the session"`
}

// RecordSessionInput wraps the record session request for Huma.
type RecordSessionInput struct {
	ID   string `path:"id" doc:"Work ID"`
	Body RecordSessionRequest
}

// RecordSessionResponse reports whether the session was stored.
type RecordSessionResponse struct {
	Recorded bool                   `json:"recorded" doc:"False when the session was too short to keep"`
	Session  *domain.ReadingSession `json:"session,omitempty" doc:"Stored session"`
}

// RecordSessionOutput wraps the record session response for Huma.
type RecordSessionOutput struct {
	Body RecordSessionResponse
}

// ListSessionsInput contains parameters for reading history.
type ListSessionsInput struct {
	ID    string `path:"id" doc:"Work ID"`
	Limit int    `query:"limit" minimum:"0" doc:"Maximum sessions (default 20)"`
}

// ListSessionsResponse contains reading sessions.
type ListSessionsResponse struct {
	Sessions []*domain.ReadingSession `json:"sessions" doc:"Sessions, newest first"`
}

// ListSessionsOutput wraps the session list for Huma.
type ListSessionsOutput struct {
	Body ListSessionsResponse
}

// ReadingStatsOutput wraps reading stats for Huma.
type ReadingStatsOutput struct {
	Body *domain.ReadingStats
}

// === Handlers ===

func (s *Server) handleGetProgress(ctx context.Context, input *WorkIDInput) (*ProgressOutput, error) {
	id, err := parseWorkID(input.ID)
	if err != nil {
		return nil, err
	}

	p, err := s.services.Library.Progress(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ProgressOutput{Body: p}, nil
}

func (s *Server) handleSaveProgress(ctx context.Context, input *SaveProgressInput) (*ProgressOutput, error) {
	id, err := parseWorkID(input.ID)
	if err != nil {
		return nil, err
	}

	p, err := s.services.Library.SaveProgress(ctx, id, service.ProgressInput{
		Chapter:    input.Body.Chapter,
		Fraction:   input.Body.Fraction,
		Bookmarked: input.Body.Bookmarked,
	})
	if err != nil {
		return nil, err
	}
	return &ProgressOutput{Body: p}, nil
}

func (s *Server) handleToggleBookmark(ctx context.Context, input *WorkIDInput) (*BookmarkOutput, error) {
	id, err := parseWorkID(input.ID)
	if err != nil {
		return nil, err
	}

	on, err := s.services.Library.ToggleBookmark(ctx, id)
	if err != nil {
		return nil, err
	}
	return &BookmarkOutput{Body: BookmarkResponse{Bookmarked: on}}, nil
}

func (s *Server) handleSaveNotes(ctx context.Context, input *SaveNotesInput) (*SaveNotesOutput, error) {
	id, err := parseWorkID(input.ID)
	if err != nil {
		return nil, err
	}

	if err := s.services.Library.SaveNotes(ctx, id, input.Body.Notes); err != nil {
		return nil, err
	}
	return &SaveNotesOutput{}, nil
}

func (s *Server) handleRecordSession(ctx context.Context, input *RecordSessionInput) (*RecordSessionOutput, error) {
	id, err := parseWorkID(input.ID)
	if err != nil {
		return nil, err
	}

	session, recorded, err := s.services.Reading.Record(ctx, id, service.SessionInput{
		Duration:         time.Duration(input.Body.DurationSeconds) * time.Second,
		ChaptersAdvanced: input.Body.ChaptersAdvanced,
	})
	if err != nil {
		return nil, err
	}
	return &RecordSessionOutput{Body: RecordSessionResponse{Recorded: recorded, Session: session}}, nil
}

func (s *Server) handleListSessions(ctx context.Context, input *ListSessionsInput) (*ListSessionsOutput, error) {
	id, err := parseWorkID(input.ID)
	if err != nil {
		return nil, err
	}

	sessions, err := s.services.Reading.History(ctx, id, listLimit(input.Limit))
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []*domain.ReadingSession{}
	}
	return &ListSessionsOutput{Body: ListSessionsResponse{Sessions: sessions}}, nil
}

func (s *Server) handleReadingStats(ctx context.Context, input *WorkIDInput) (*ReadingStatsOutput, error) {
	id, err := parseWorkID(input.ID)
	if err != nil {
		return nil, err
	}

	stats, err := s.services.Reading.Stats(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ReadingStatsOutput{Body: stats}, nil
}
