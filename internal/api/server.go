// Package api provides the HTTP API server and handlers for the novel library.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	services *Services
	router   *chi.Mux
	api      huma.API
	logger   *slog.Logger

	// downloadLimiter throttles download starts per client.
	downloadLimiter *RateLimiter
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(services *Services, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	s := &Server{
		services:        services,
		router:          router,
		logger:          logger,
		downloadLimiter: NewRateLimiter(DownloadStartsPerMinute, time.Minute, DownloadStartBurst),
	}

	s.setupMiddleware()

	humaConfig := huma.DefaultConfig("NovelVault API", "1.0.0")
	humaConfig.Info.Description = "Download web novels and track reading progress."
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	s.api = humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s.registerRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API, mainly for OpenAPI generation.
func (s *Server) API() huma.API {
	return s.api
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

func (s *Server) registerRoutes() {
	s.registerHealthRoutes()
	s.registerWorkRoutes()
	s.registerProgressRoutes()
	s.registerDownloadRoutes()
	s.registerCategoryRoutes()
	s.registerSearchRoutes()
	s.registerLibraryRoutes()
	s.registerSourceRoutes()
}
