package api

// API limits and constants.
const (
	// DefaultListLimit applies when a list endpoint is called without a limit.
	DefaultListLimit = 20

	// MaxListLimit caps the limit query parameter.
	MaxListLimit = 200

	// DownloadStartsPerMinute and DownloadStartBurst bound how fast one
	// client may queue downloads.
	DownloadStartsPerMinute = 30
	DownloadStartBurst      = 10
)

// envelopeVersion is the "v" field of every response body.
const envelopeVersion = 1

// codeRateLimited is the error code for 429 responses. It has no domain
// counterpart because only the API throttles.
const codeRateLimited = "RATE_LIMITED"
