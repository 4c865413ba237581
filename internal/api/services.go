package api

import (
	"github.com/listenupapp/novelvault/internal/service"
	"github.com/listenupapp/novelvault/internal/source"
)

// Services groups all business logic services used by the API server.
// This reduces the parameter count for NewServer and improves testability.
type Services struct {
	Library  *service.LibraryService
	Download *service.DownloadService
	Reading  *service.ReadingService
	Sources  *source.Registry // Registered remote catalogs
}
