package providers

import (
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/listenupapp/novelvault/internal/api"
	"github.com/listenupapp/novelvault/internal/config"
	"github.com/listenupapp/novelvault/internal/logger"
	"github.com/listenupapp/novelvault/internal/service"
	"github.com/listenupapp/novelvault/internal/source"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	return shutdownWithin(h.Server.Shutdown)
}

// ProvideHTTPServer provides the HTTP server and starts listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	downloadHandle := do.MustInvoke[*DownloadServiceHandle](i)

	services := &api.Services{
		Library:  do.MustInvoke[*service.LibraryService](i),
		Download: downloadHandle.DownloadService,
		Reading:  do.MustInvoke[*service.ReadingService](i),
		Sources:  do.MustInvoke[*source.Registry](i),
	}

	handler := api.NewServer(services, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log := log.WithField("addr", srv.Addr)
		log.Info("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server stopped")
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}
