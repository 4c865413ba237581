package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/novelvault/internal/domain"
	"github.com/listenupapp/novelvault/internal/service"
)

func (s *Server) registerDownloadRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "startDownload",
		Method:        http.MethodPost,
		Path:          "/api/v1/downloads",
		Summary:       "Start download",
		Description:   "Queues a download of a work from a source. Poll the returned job for progress.",
		Tags:          []string{"Downloads"},
		DefaultStatus: http.StatusAccepted,
		Middlewares:   huma.Middlewares{s.rateLimitMiddleware(func() *RateLimiter { return s.downloadLimiter })},
	}, s.handleStartDownload)

	huma.Register(s.api, huma.Operation{
		OperationID:   "downloadWork",
		Method:        http.MethodPost,
		Path:          "/api/v1/works/{id}/downloads",
		Summary:       "Download work",
		Description:   "Queues a fresh download of a work by its ID. The source is taken from the ID prefix.",
		Tags:          []string{"Downloads", "Works"},
		DefaultStatus: http.StatusAccepted,
		Middlewares:   huma.Middlewares{s.rateLimitMiddleware(func() *RateLimiter { return s.downloadLimiter })},
	}, s.handleDownloadWork)

	huma.Register(s.api, huma.Operation{
		OperationID: "getDownloadJob",
		Method:      http.MethodGet,
		Path:        "/api/v1/downloads/{id}",
		Summary:     "Get download job",
		Description: "Returns the state of a download started through this server",
		Tags:        []string{"Downloads"},
	}, s.handleGetDownloadJob)

	huma.Register(s.api, huma.Operation{
		OperationID: "verifyDownloads",
		Method:      http.MethodPost,
		Path:        "/api/v1/downloads/verify",
		Summary:     "Verify downloads",
		Description: "Checks every recorded artifact against the disk and marks missing ones",
		Tags:        []string{"Downloads"},
	}, s.handleVerifyDownloads)
}

// === DTOs ===

// StartDownloadRequest is the request body for starting a download.
type StartDownloadRequest struct {
	Source  string `json:"source" minLength:"1" doc:"Source tag, e.g. qidian"`
	LocalID string `json:"local_id" minLength:"1" doc:"Work ID on the source"`
}

// StartDownloadInput wraps the start download request for Huma.
type StartDownloadInput struct {
	Body StartDownloadRequest
}

// JobOutput wraps a download job for Huma.
type JobOutput struct {
	Body service.Job
}

// GetDownloadJobInput identifies a job by path.
type GetDownloadJobInput struct {
	ID string `path:"id" doc:"Job ID"`
}

// VerifyOutput wraps a verification result for Huma.
type VerifyOutput struct {
	Body *domain.VerifyResult
}

// === Handlers ===

func (s *Server) handleStartDownload(_ context.Context, input *StartDownloadInput) (*JobOutput, error) {
	job, err := s.services.Download.Start(input.Body.Source, input.Body.LocalID)
	if err != nil {
		return nil, err
	}
	return &JobOutput{Body: job}, nil
}

func (s *Server) handleDownloadWork(_ context.Context, input *WorkIDInput) (*JobOutput, error) {
	id, err := parseWorkID(input.ID)
	if err != nil {
		return nil, err
	}

	job, err := s.services.Download.Start(id.Source(), id.LocalID())
	if err != nil {
		return nil, err
	}
	return &JobOutput{Body: job}, nil
}

func (s *Server) handleGetDownloadJob(_ context.Context, input *GetDownloadJobInput) (*JobOutput, error) {
	job, err := s.services.Download.Job(input.ID)
	if err != nil {
		return nil, err
	}
	return &JobOutput{Body: job}, nil
}

func (s *Server) handleVerifyDownloads(ctx context.Context, _ *struct{}) (*VerifyOutput, error) {
	res, err := s.services.Library.VerifyDownloads(ctx)
	if err != nil {
		return nil, err
	}
	return &VerifyOutput{Body: res}, nil
}
