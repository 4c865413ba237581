package domain

import (
	"fmt"
	"strings"
	"time"
)

// WorkIDSeparator joins a source tag and the source-local id.
// Source tags never contain it; local ids may.
const WorkIDSeparator = "_"

// WorkID identifies a work as "<source>_<local id>", e.g. "qidian_1010868264".
// The local id is kept verbatim so it can be handed back to the source.
type WorkID string

// NewWorkID builds a WorkID from a source tag and a source-local id.
func NewWorkID(source, localID string) (WorkID, error) {
	if source == "" || strings.Contains(source, WorkIDSeparator) {
		return "", fmt.Errorf("invalid source tag %q", source)
	}
	if localID == "" {
		return "", fmt.Errorf("empty local id for source %q", source)
	}
	return WorkID(source + WorkIDSeparator + localID), nil
}

// ParseWorkID validates s and returns it as a WorkID.
func ParseWorkID(s string) (WorkID, error) {
	source, local, ok := strings.Cut(s, WorkIDSeparator)
	if !ok || source == "" || local == "" {
		return "", fmt.Errorf("malformed work id %q", s)
	}
	return WorkID(s), nil
}

// Source returns the source tag.
func (id WorkID) Source() string {
	source, _, _ := strings.Cut(string(id), WorkIDSeparator)
	return source
}

// LocalID returns the id the source knows this work by.
func (id WorkID) LocalID() string {
	_, local, _ := strings.Cut(string(id), WorkIDSeparator)
	return local
}

func (id WorkID) String() string { return string(id) }

// Work is a single novel as known to the library.
// UseCount and LastSeenAt are maintained by the store on every upsert.
type Work struct {
	ID            WorkID            `json:"id" validate:"required"`
	Title         string            `json:"title" validate:"required"`
	Author        string            `json:"author,omitempty"`
	Status        string            `json:"status,omitempty"`         // e.g. "ongoing", "completed"
	ChapterLabel  string            `json:"chapter_label,omitempty"`  // Source-provided text such as "1,203 chapters"
	TotalChapters int               `json:"total_chapters,omitempty"` // 0 when unknown
	Metadata      map[string]string `json:"metadata,omitempty"`
	UseCount      int               `json:"use_count"`
	LastSeenAt    time.Time         `json:"last_seen_at"`
	LastReadAt    *time.Time        `json:"last_read_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// ChapterRef is one entry of a source's chapter list.
type ChapterRef struct {
	Title   string `json:"title"`
	Locator string `json:"locator"` // Opaque to everything but the source
}
