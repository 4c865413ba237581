package download

import (
	"sync"

	"github.com/listenupapp/novelvault/internal/domain"
	"github.com/listenupapp/novelvault/internal/syncmap"
)

// Chapter is one fetched chapter held until assembly.
type Chapter struct {
	Index   int
	Title   string
	Content string
}

// bucket holds the chapters of one in-flight download.
type bucket struct {
	mu       sync.Mutex
	chapters map[int]Chapter
}

// ChapterCache holds fetched chapters per work between FetchAll and
// AssembleOrdered. Each work has its own bucket and lock, so concurrent
// downloads of different works never contend.
//
// A bucket lives from Open to Release. Puts for a work without a bucket are
// dropped, which is how results of an abandoned download are discarded.
type ChapterCache struct {
	buckets *syncmap.Map[domain.WorkID, *bucket]
}

// NewChapterCache creates an empty cache.
func NewChapterCache() *ChapterCache {
	return &ChapterCache{buckets: syncmap.New[domain.WorkID, *bucket]()}
}

// Open allocates an empty bucket for the work, replacing any previous one.
func (c *ChapterCache) Open(workID domain.WorkID) {
	c.buckets.Store(workID, &bucket{chapters: make(map[int]Chapter)})
}

// Put stores a chapter. It reports false when the work has no open bucket.
func (c *ChapterCache) Put(workID domain.WorkID, ch Chapter) bool {
	b, ok := c.buckets.Load(workID)
	if !ok {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chapters[ch.Index] = ch
	return true
}

// Get returns the chapter at index, if it was fetched.
func (c *ChapterCache) Get(workID domain.WorkID, index int) (Chapter, bool) {
	b, ok := c.buckets.Load(workID)
	if !ok {
		return Chapter{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.chapters[index]
	return ch, ok
}

// Count returns how many chapters the work's bucket holds.
func (c *ChapterCache) Count(workID domain.WorkID) int {
	b, ok := c.buckets.Load(workID)
	if !ok {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chapters)
}

// Has reports whether the work has an open bucket.
func (c *ChapterCache) Has(workID domain.WorkID) bool {
	_, ok := c.buckets.Load(workID)
	return ok
}

// Release frees the work's bucket.
func (c *ChapterCache) Release(workID domain.WorkID) {
	c.buckets.Delete(workID)
}

// Len returns the number of open buckets.
func (c *ChapterCache) Len() int {
	return c.buckets.Len()
}
