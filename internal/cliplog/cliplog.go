// Package cliplog records the provenance of every captured clip: where it
// was written, how the session ended, which thresholds and processing
// stages shaped it, and what it was transcribed to.
//
// Three [Store] implementations are provided: [MemStore] keeps a bounded
// in-memory ring, [FileStore] appends JSON lines to a local file, and
// [PostgresStore] persists entries in PostgreSQL.
package cliplog

import (
	"context"
	"time"
)

// Entry is one clip's provenance record.
type Entry struct {
	SessionID   string        `json:"session_id"`
	Path        string        `json:"path,omitempty"`
	Destination string        `json:"destination,omitempty"`
	StopReason  string        `json:"stop_reason"`
	Duration    time.Duration `json:"duration"`
	Captured    time.Duration `json:"captured"`
	OnsetAfter  time.Duration `json:"onset_after"`
	Padded      bool          `json:"padded,omitempty"`

	StartThreshold float64 `json:"start_threshold"`
	KeepThreshold  float64 `json:"keep_threshold"`
	Baseline       float64 `json:"baseline"`
	Calibrated     bool    `json:"calibrated"`

	Stages []string `json:"stages,omitempty"`

	Transcript string `json:"transcript,omitempty"`
	Provider   string `json:"provider,omitempty"`

	// Error holds the upload or transcription failure, if any.
	Error string `json:"error,omitempty"`

	TraceID   string    `json:"trace_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists clip provenance entries.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Append records e. A zero CreatedAt is set to the current time.
	Append(ctx context.Context, e Entry) error

	// Recent returns up to limit entries, newest first. limit <= 0 means
	// [DefaultRecentLimit].
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// DefaultRecentLimit is used by [Store.Recent] when no positive limit is
// given.
const DefaultRecentLimit = 20

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return limit
}

func stamp(e *Entry, now func() time.Time) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now().UTC()
	}
}
