// Package source defines the remote catalogs chapters are fetched from.
package source

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/listenupapp/novelvault/internal/domain"
	"github.com/listenupapp/novelvault/internal/syncmap"
)

// ErrUnknownSource is returned by Registry.Get for an unregistered tag.
var ErrUnknownSource = errors.New("unknown source")

// Source is a remote catalog. Fetches may be slow and may fail; callers
// bound them with a context.
type Source interface {
	// Tag is the short name that prefixes work IDs, e.g. "qidian".
	Tag() string

	// Describe returns the work's metadata. Use counters and timestamps are
	// left for the store to fill in.
	Describe(ctx context.Context, localID string) (*domain.Work, error)

	// ListChapters returns the work's chapters in reading order.
	ListChapters(ctx context.Context, localID string) ([]domain.ChapterRef, error)

	// FetchContent returns one chapter's plain text.
	FetchContent(ctx context.Context, locator string) (string, error)
}

// Registry maps source tags to sources.
type Registry struct {
	sources *syncmap.Map[string, Source]
}

// NewRegistry creates a registry holding srcs.
func NewRegistry(srcs ...Source) (*Registry, error) {
	r := &Registry{sources: syncmap.New[string, Source]()}
	for _, s := range srcs {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a source. Tags must be unique and usable in a work ID.
func (r *Registry) Register(s Source) error {
	tag := s.Tag()
	if _, err := domain.NewWorkID(tag, "x"); err != nil {
		return err
	}
	if _, loaded := r.sources.LoadOrStore(tag, s); loaded {
		return fmt.Errorf("source %q already registered", tag)
	}
	return nil
}

// Get returns the source for tag.
func (r *Registry) Get(tag string) (Source, error) {
	s, ok := r.sources.Load(tag)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, tag)
	}
	return s, nil
}

// Tags returns the registered tags, sorted.
func (r *Registry) Tags() []string {
	snap := r.sources.Snapshot()
	tags := make([]string, 0, len(snap))
	for tag := range snap {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}
