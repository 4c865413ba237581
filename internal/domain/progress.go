package domain

import "time"

// ReadingProgress is the single resume point kept per work.
// CurrentChapter is 1-based. The store accepts any value; readers clamp.
type ReadingProgress struct {
	WorkID         WorkID    `json:"work_id"`
	CurrentChapter int       `json:"current_chapter"`
	ScrollFraction float64   `json:"scroll_fraction"` // 0.0 - 1.0 within the chapter
	Bookmarked     bool      `json:"bookmarked"`
	Notes          string    `json:"notes,omitempty"`
	LastReadAt     time.Time `json:"last_read_at"`
}

// Clamp returns a copy with CurrentChapter in [1, total] and the fraction in [0, 1].
// A total of zero means the chapter count is unknown and only the lower bound applies.
func (p ReadingProgress) Clamp(total int) ReadingProgress {
	if p.CurrentChapter < 1 {
		p.CurrentChapter = 1
	}
	if total > 0 && p.CurrentChapter > total {
		p.CurrentChapter = total
	}
	p.ScrollFraction = min(max(p.ScrollFraction, 0), 1)
	return p
}

// ReadingSession is one append-only reading history entry.
type ReadingSession struct {
	ID               string        `json:"id"`
	WorkID           WorkID        `json:"work_id"`
	Duration         time.Duration `json:"duration"`
	ChaptersAdvanced int           `json:"chapters_advanced"`
	StartedAt        time.Time     `json:"started_at"`
}

// MinSessionDuration is the shortest reading stint worth recording.
const MinSessionDuration = time.Minute

// ReadingStats aggregates the history of one work.
type ReadingStats struct {
	WorkID        WorkID        `json:"work_id"`
	Sessions      int           `json:"sessions"`
	TotalDuration time.Duration `json:"total_duration"`
	TotalChapters int           `json:"total_chapters"`
	LastSession   *time.Time    `json:"last_session,omitempty"`
}
