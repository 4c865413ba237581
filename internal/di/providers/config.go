// Package providers contains dependency injection providers for the novel library.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/novelvault/internal/config"
	"github.com/listenupapp/novelvault/internal/logger"
	"github.com/listenupapp/novelvault/internal/validation"
)

// ProvideConfig provides the application configuration.
// Command-line overrides are read from a config.Flags value in the injector.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	flags, err := do.Invoke[config.Flags](i)
	if err != nil {
		flags = config.Flags{}
	}
	return config.LoadConfig(flags)
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log, err := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
		File:        cfg.Logger.File,
	})
	if err != nil {
		return nil, err
	}

	log.Debug("Configuration loaded",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"database", cfg.Storage.DatabasePath,
		"download_dir", cfg.Storage.DownloadDir,
	)

	return log, nil
}

// ProvideValidator provides the shared struct validator.
func ProvideValidator(_ do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}
