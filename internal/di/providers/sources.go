package providers

import (
	"errors"
	"io/fs"

	"github.com/samber/do/v2"

	"github.com/listenupapp/novelvault/internal/config"
	"github.com/listenupapp/novelvault/internal/logger"
	"github.com/listenupapp/novelvault/internal/source"
	"github.com/listenupapp/novelvault/internal/source/htmlsource"
)

// ProvideSourceRegistry provides the registry of remote catalogs described
// in the sources file. A missing file yields an empty registry.
func ProvideSourceRegistry(i do.Injector) (*source.Registry, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	reg, err := source.NewRegistry()
	if err != nil {
		return nil, err
	}

	sites, err := htmlsource.LoadSites(cfg.Download.SourcesFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn("No sources file, downloads are unavailable", "path", cfg.Download.SourcesFile)
			return reg, nil
		}
		return nil, err
	}

	for _, site := range sites {
		src, err := htmlsource.New(site, log.Logger, htmlsource.Options{})
		if err != nil {
			return nil, err
		}
		if err := reg.Register(src); err != nil {
			return nil, err
		}
	}

	log.Info("Sources loaded", "count", len(sites), "tags", reg.Tags())

	return reg, nil
}
