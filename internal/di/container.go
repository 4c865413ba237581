// Package di provides dependency injection configuration for the novel library.
package di

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/novelvault/internal/config"
	"github.com/listenupapp/novelvault/internal/di/providers"
	"github.com/listenupapp/novelvault/internal/logger"
	"github.com/listenupapp/novelvault/internal/service"
	"github.com/listenupapp/novelvault/internal/source"
)

// NewContainer creates and configures the DI container with all providers.
// flags are command-line overrides for config.LoadConfig.
// Services are built lazily, so one-shot commands only open what they use.
func NewContainer(flags config.Flags) *do.RootScope {
	injector := do.New()

	do.ProvideValue(injector, flags)

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSlogLogger)
	do.Provide(injector, providers.ProvideValidator)

	// Database layer
	do.Provide(injector, providers.ProvideStore)

	// Download layer
	do.Provide(injector, providers.ProvideSourceRegistry)
	do.Provide(injector, providers.ProvideChapterCache)
	do.Provide(injector, providers.ProvideCoordinator)
	do.Provide(injector, providers.ProvideAssembler)

	// Business services
	do.Provide(injector, providers.ProvideLibraryService)
	do.Provide(injector, providers.ProvideReadingService)
	do.Provide(injector, providers.ProvideDownloadService)

	// Workers
	do.Provide(injector, providers.ProvideEventProcessor)
	do.Provide(injector, providers.ProvideFileWatcher)
	do.Provide(injector, providers.ProvideVerifyScheduler)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes everything the long-running server needs: the
// store, sources, services, the download directory watcher, the verify
// schedule and the HTTP server.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*logger.Logger](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*source.Registry](injector); err != nil {
		return err
	}

	// Business services
	_ = do.MustInvoke[*service.LibraryService](injector)
	_ = do.MustInvoke[*service.ReadingService](injector)
	_ = do.MustInvoke[*providers.DownloadServiceHandle](injector)

	// Workers
	if _, err := do.Invoke[*providers.FileWatcherHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.VerifySchedulerHandle](injector); err != nil {
		return err
	}

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
