package download

import (
	"fmt"
	"sync"
	"testing"

	"github.com/listenupapp/novelvault/internal/domain"
)

func TestChapterCache_PutWithoutBucketIsDropped(t *testing.T) {
	cache := NewChapterCache()

	if cache.Put("qidian_none", Chapter{Index: 0, Content: "x"}) {
		t.Error("Put without Open should be dropped")
	}

	cache.Open("qidian_a")
	cache.Open("qidian_b")
	cache.Put("qidian_a", Chapter{Index: 0, Title: "A0", Content: "a"})

	if _, ok := cache.Get("qidian_b", 0); ok {
		t.Error("buckets must be independent")
	}
	if ch, ok := cache.Get("qidian_a", 0); !ok || ch.Title != "A0" {
		t.Errorf("Get: %+v %v", ch, ok)
	}

	cache.Open("qidian_a")
	if cache.Count("qidian_a") != 0 {
		t.Error("re-opening should start an empty bucket")
	}

	cache.Release("qidian_a")
	cache.Release("qidian_b")
	if cache.Len() != 0 {
		t.Errorf("Len after release: %d", cache.Len())
	}
}

func TestChapterCache_ConcurrentWorks(t *testing.T) {
	cache := NewChapterCache()
	const works, chapters = 8, 50

	var wg sync.WaitGroup
	for w := range works {
		id := domain.WorkID(fmt.Sprintf("qidian_%d", w))
		cache.Open(id)
		for i := range chapters {
			wg.Add(1)
			go func() {
				defer wg.Done()
				cache.Put(id, Chapter{Index: i, Content: "x"})
			}()
		}
	}
	wg.Wait()

	for w := range works {
		id := domain.WorkID(fmt.Sprintf("qidian_%d", w))
		if got := cache.Count(id); got != chapters {
			t.Errorf("%s: got %d chapters, want %d", id, got, chapters)
		}
	}
}
