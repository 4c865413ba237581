package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/novelvault/internal/config"
	"github.com/listenupapp/novelvault/internal/download"
	"github.com/listenupapp/novelvault/internal/logger"
	"github.com/listenupapp/novelvault/internal/ratelimit"
	"github.com/listenupapp/novelvault/internal/service"
	"github.com/listenupapp/novelvault/internal/source"
	"github.com/listenupapp/novelvault/internal/validation"
)

// ProvideLibraryService provides the library service.
func ProvideLibraryService(i do.Injector) (*service.LibraryService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	v := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewLibraryService(storeHandle.Store, v, log.Logger), nil
}

// ProvideReadingService provides the reading history service.
func ProvideReadingService(i do.Injector) (*service.ReadingService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	v := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewReadingService(storeHandle.Store, v, log.Logger), nil
}

// ProvideChapterCache provides the in-memory chapter cache shared by the
// coordinator and the assembler.
func ProvideChapterCache(_ do.Injector) (*download.ChapterCache, error) {
	return download.NewChapterCache(), nil
}

// ProvideCoordinator provides the concurrent chapter fetcher.
func ProvideCoordinator(i do.Injector) (*download.Coordinator, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	cache := do.MustInvoke[*download.ChapterCache](i)

	rps := cfg.Download.RequestsPerSec
	limiter := ratelimit.New(float64(rps), max(rps, 1))

	return download.NewCoordinator(cache, limiter, log.Logger, download.Options{
		MaxConcurrency: cfg.Download.MaxConcurrency,
		JitterMin:      cfg.Download.JitterMin,
		JitterMax:      cfg.Download.JitterMax,
		FetchTimeout:   cfg.Download.FetchTimeout,
	}), nil
}

// ProvideAssembler provides the artifact assembler.
func ProvideAssembler(i do.Injector) (*download.Assembler, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	cache := do.MustInvoke[*download.ChapterCache](i)

	gaps := download.GapSkip
	if cfg.Download.GapPolicy == "placeholder" {
		gaps = download.GapPlaceholder
	}
	return download.NewAssembler(cache, log.Logger, gaps), nil
}

// DownloadServiceHandle wraps the download service with shutdown capability.
type DownloadServiceHandle struct {
	*service.DownloadService
}

// Shutdown implements do.Shutdownable. Running jobs are cancelled.
func (h *DownloadServiceHandle) Shutdown() error {
	return shutdownWithin(h.DownloadService.Shutdown)
}

// ProvideDownloadService provides the download pipeline.
func ProvideDownloadService(i do.Injector) (*DownloadServiceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sources := do.MustInvoke[*source.Registry](i)

	svc := service.NewDownloadService(
		storeHandle.Store,
		sources,
		do.MustInvoke[*download.ChapterCache](i),
		do.MustInvoke[*download.Coordinator](i),
		do.MustInvoke[*download.Assembler](i),
		service.DownloadOptions{
			Dir:            cfg.Storage.DownloadDir,
			MaxConcurrency: cfg.Download.MaxConcurrency,
		},
		log.Logger,
	)

	return &DownloadServiceHandle{DownloadService: svc}, nil
}
