// Package htmlsource implements source.Source for catalogs that publish a
// chapter index page and one HTML page per chapter. Each site is described by
// CSS selectors, so adding a site is a config change.
package htmlsource

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// IDPlaceholder is replaced by the work's local id in Site.CatalogURL.
const IDPlaceholder = "{id}"

// Site describes where a catalog keeps its pages and how to read them.
type Site struct {
	Tag             string `mapstructure:"tag"`
	CatalogURL      string `mapstructure:"catalog_url"`      // e.g. "https://example.com/book/{id}/"
	TitleSelector   string `mapstructure:"title_selector"`   // Defaults to "h1"
	AuthorSelector  string `mapstructure:"author_selector"`  // Optional
	StatusSelector  string `mapstructure:"status_selector"`  // Optional
	ChapterSelector string `mapstructure:"chapter_selector"` // Chapter links on the catalog page
	ContentSelector string `mapstructure:"content_selector"` // Chapter body on a chapter page

	RequestsPerSecond float64 `mapstructure:"requests_per_second"` // Zero means unlimited
	Burst             int     `mapstructure:"burst"`
}

// Validate checks that the site can be scraped.
func (s Site) Validate() error {
	var errs []error
	if s.Tag == "" {
		errs = append(errs, errors.New("tag is required"))
	}
	if !strings.Contains(s.CatalogURL, IDPlaceholder) {
		errs = append(errs, fmt.Errorf("catalog_url must contain %s", IDPlaceholder))
	}
	if s.ChapterSelector == "" {
		errs = append(errs, errors.New("chapter_selector is required"))
	}
	if s.ContentSelector == "" {
		errs = append(errs, errors.New("content_selector is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("site %q: %w", s.Tag, errors.Join(errs...))
	}
	return nil
}

// catalogURL returns the index page for localID.
func (s Site) catalogURL(localID string) string {
	return strings.ReplaceAll(s.CatalogURL, IDPlaceholder, localID)
}

// LoadSites reads site definitions from a JSON file of the form
// {"sources": [{"tag": "...", ...}]}.
func LoadSites(path string) ([]Site, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var file struct {
		Sources []Site `mapstructure:"sources"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("decode sources file: %w", err)
	}

	seen := make(map[string]bool, len(file.Sources))
	for i, site := range file.Sources {
		if site.TitleSelector == "" {
			file.Sources[i].TitleSelector = "h1"
		}
		if err := site.Validate(); err != nil {
			return nil, err
		}
		if seen[site.Tag] {
			return nil, fmt.Errorf("duplicate source tag %q", site.Tag)
		}
		seen[site.Tag] = true
	}
	return file.Sources, nil
}
