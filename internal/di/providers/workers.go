package providers

import (
	"context"
	"fmt"
	"os"

	"github.com/samber/do/v2"

	"github.com/listenupapp/novelvault/internal/config"
	"github.com/listenupapp/novelvault/internal/logger"
	"github.com/listenupapp/novelvault/internal/processor"
	"github.com/listenupapp/novelvault/internal/service"
	"github.com/listenupapp/novelvault/internal/watcher"
)

// ProvideEventProcessor provides the processor that keeps download records
// in step with the download directory.
func ProvideEventProcessor(i do.Injector) (*processor.EventProcessor, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return processor.NewEventProcessor(storeHandle.Store, log.Logger), nil
}

// FileWatcherHandle wraps the file watcher with shutdown capability.
// Watcher is nil when watching is disabled.
type FileWatcherHandle struct {
	*watcher.Watcher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *FileWatcherHandle) Shutdown() error {
	if h.Watcher == nil {
		return nil
	}
	h.cancel()
	return h.Watcher.Stop()
}

// ProvideFileWatcher provides the download directory watcher.
func ProvideFileWatcher(i do.Injector) (*FileWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Verify.Watch {
		log.Info("Download directory watching disabled by configuration")
		return &FileWatcherHandle{}, nil
	}

	eventProcessor := do.MustInvoke[*processor.EventProcessor](i)

	if err := os.MkdirAll(cfg.Storage.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	w, err := watcher.New(log.Logger, watcher.Options{Extensions: []string{".txt"}})
	if err != nil {
		return nil, err
	}
	if err := w.Watch(cfg.Storage.DownloadDir); err != nil {
		_ = w.Stop()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		if err := w.Start(ctx); err != nil {
			log.Error("File watcher error", "error", err)
		}
	}()
	go eventProcessor.Run(ctx, w)

	log.Info("Watching download directory", "path", cfg.Storage.DownloadDir)

	return &FileWatcherHandle{
		Watcher: w,
		cancel:  cancel,
	}, nil
}

// VerifySchedulerHandle wraps the verify scheduler with shutdown capability.
type VerifySchedulerHandle struct {
	*service.VerifyScheduler
}

// Shutdown implements do.Shutdownable.
func (h *VerifySchedulerHandle) Shutdown() error {
	return shutdownWithin(h.Stop)
}

// ProvideVerifyScheduler provides the periodic artifact verification job.
func ProvideVerifyScheduler(i do.Injector) (*VerifySchedulerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	library := do.MustInvoke[*service.LibraryService](i)

	s, err := service.NewVerifyScheduler(library, cfg.Verify.Schedule, log.Logger)
	if err != nil {
		return nil, err
	}
	s.Start()

	if s.Entries() > 0 {
		log.Info("Download verification scheduled", "schedule", cfg.Verify.Schedule)
	}

	return &VerifySchedulerHandle{VerifyScheduler: s}, nil
}
