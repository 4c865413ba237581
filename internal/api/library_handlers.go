package api

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/listenupapp/novelvault/internal/errors"
	"github.com/listenupapp/novelvault/internal/service"
)

func (s *Server) registerLibraryRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "exportLibrary",
		Method:      http.MethodPost,
		Path:        "/api/v1/library/export",
		Summary:     "Export library",
		Description: "Writes a database snapshot, metadata, reading progress and the existing artifacts into a directory on the server",
		Tags:        []string{"Library"},
	}, s.handleExportLibrary)

	huma.Register(s.api, huma.Operation{
		OperationID: "cleanupLibrary",
		Method:      http.MethodPost,
		Path:        "/api/v1/library/cleanup",
		Summary:     "Clean up library",
		Description: "Removes rows left pointing at deleted works",
		Tags:        []string{"Library"},
	}, s.handleCleanupLibrary)
}

// ExportRequest is the request body for exporting the library.
type ExportRequest struct {
	Dir string `json:"dir" minLength:"1" doc:"Absolute directory on the server to export into"`
}

// ExportInput wraps the export request for Huma.
type ExportInput struct {
	Body ExportRequest
}

// ExportOutput wraps the export summary for Huma.
type ExportOutput struct {
	Body *service.ExportSummary
}

// CleanupResponse reports how many rows were removed.
type CleanupResponse struct {
	Removed int64 `json:"removed" doc:"Orphan rows removed"`
}

// CleanupOutput wraps the cleanup response for Huma.
type CleanupOutput struct {
	Body CleanupResponse
}

func (s *Server) handleExportLibrary(ctx context.Context, input *ExportInput) (*ExportOutput, error) {
	if !filepath.IsAbs(input.Body.Dir) {
		return nil, domainerrors.Validation("export dir must be an absolute path")
	}

	summary, err := s.services.Library.Export(ctx, filepath.Clean(input.Body.Dir))
	if err != nil {
		return nil, err
	}
	return &ExportOutput{Body: summary}, nil
}

func (s *Server) handleCleanupLibrary(ctx context.Context, _ *struct{}) (*CleanupOutput, error) {
	n, err := s.services.Library.Cleanup(ctx)
	if err != nil {
		return nil, err
	}
	return &CleanupOutput{Body: CleanupResponse{Removed: n}}, nil
}
