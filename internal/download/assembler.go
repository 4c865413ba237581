package download

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/listenupapp/novelvault/internal/domain"
)

// GapPolicy decides what the assembler writes for a chapter that was not fetched.
type GapPolicy int

const (
	// GapSkip leaves missing chapters out; the gap only shows in the logs.
	GapSkip GapPolicy = iota
	// GapPlaceholder writes a marker block naming the missing chapter.
	GapPlaceholder
)

// PlaceholderFormat is the body written for a missing chapter under GapPlaceholder.
const PlaceholderFormat = "[Chapter %d could not be downloaded]"

// Assembler writes cached chapters in chapter order.
type Assembler struct {
	cache  *ChapterCache
	logger *slog.Logger
	gaps   GapPolicy
}

// NewAssembler creates an assembler reading from cache.
func NewAssembler(cache *ChapterCache, logger *slog.Logger, gaps GapPolicy) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{cache: cache, logger: logger, gaps: gaps}
}

// AssembleOrdered writes chapters 0..total-1 of workID to w in index order
// and returns how many fetched chapters were written. Placeholders are not
// counted. The work's bucket is released whether or not writing succeeds.
//
// It must only run after FetchAll for the same work has returned.
func (a *Assembler) AssembleOrdered(workID domain.WorkID, total int, w io.Writer) (int, error) {
	defer a.cache.Release(workID)

	emitted := 0
	for i := range total {
		ch, ok := a.cache.Get(workID, i)
		if !ok {
			a.logger.Warn("chapter missing from download", "work_id", workID, "index", i)
			if a.gaps == GapPlaceholder {
				if err := writeChapterBlock(w, fmt.Sprintf("Chapter %d", i+1), fmt.Sprintf(PlaceholderFormat, i+1)); err != nil {
					return emitted, err
				}
			}
			continue
		}

		if err := writeChapterBlock(w, ch.Title, ch.Content); err != nil {
			return emitted, err
		}
		emitted++
	}
	return emitted, nil
}

// writeChapterBlock writes "\n\n<title>\n\n<content>\n".
func writeChapterBlock(w io.Writer, title, content string) error {
	_, err := fmt.Fprintf(w, "\n\n%s\n\n%s\n", title, content)
	if err != nil {
		return fmt.Errorf("write chapter %q: %w", title, err)
	}
	return nil
}
