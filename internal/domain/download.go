package domain

import "time"

// DownloadStatus is the lifecycle state of a downloaded artifact.
type DownloadStatus string

// Download statuses.
const (
	DownloadCompleted DownloadStatus = "completed"
	DownloadMissing   DownloadStatus = "missing" // Artifact no longer on disk
	DownloadVerified  DownloadStatus = "verified"
)

// Succeeded reports whether the status means an artifact was produced.
func (s DownloadStatus) Succeeded() bool {
	return s == DownloadCompleted || s == DownloadVerified
}

// Valid reports whether s is a known status.
func (s DownloadStatus) Valid() bool {
	switch s {
	case DownloadCompleted, DownloadMissing, DownloadVerified:
		return true
	}
	return false
}

// DownloadRecord is an append-only entry describing one produced artifact.
// Re-downloading a work adds a new record; older rows are kept.
type DownloadRecord struct {
	ID           string         `json:"id"`
	WorkID       WorkID         `json:"work_id"`
	Path         string         `json:"path"`
	SizeBytes    int64          `json:"size_bytes"`
	Status       DownloadStatus `json:"status"`
	ChapterCount int            `json:"chapter_count"`
	MissingCount int            `json:"missing_count"`
	DownloadedAt time.Time      `json:"downloaded_at"`
}

// VerifyResult summarizes a pass over all download records.
type VerifyResult struct {
	Verified []string `json:"verified"` // Paths present on disk
	Missing  []string `json:"missing"`  // Paths gone from disk
}
