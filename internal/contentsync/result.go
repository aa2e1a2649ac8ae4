package contentsync

import (
	"errors"
	"time"

	"signage/internal/layout"
)

var (
	// ErrNotPaired reports that the server no longer considers the device paired.
	ErrNotPaired = errors.New("device is not paired")
	// ErrNoSyncNeeded reports that the remote configuration is unchanged. It
	// is not a failure.
	ErrNoSyncNeeded = errors.New("no sync needed")
	// ErrSyncInProgress reports that another sync for the same device is running.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// Outcome classifies a sync attempt.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeNoChange
	OutcomeNotPaired
	OutcomeError
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeNoChange:
		return "no_change"
	case OutcomeNotPaired:
		return "not_paired"
	case OutcomeError:
		return "error"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result is the value returned by Sync. Failures are carried in Err rather
// than returned separately.
type Result struct {
	Outcome          Outcome
	Err              error
	Fingerprint      string
	Layout           layout.Layout
	Playlists        int
	Items            int
	RemovedPlaylists []string
	RemovedAssets    int
	SweptFiles       int
	StartedAt        time.Time
	Duration         time.Duration
}

// Cause maps the outcome to its sentinel (or the failure) for errors.Is checks.
func (r Result) Cause() error {
	switch r.Outcome {
	case OutcomeApplied:
		return nil
	case OutcomeNoChange:
		return ErrNoSyncNeeded
	case OutcomeNotPaired:
		return ErrNotPaired
	case OutcomeSkipped:
		return ErrSyncInProgress
	default:
		return r.Err
	}
}

// Succeeded reports whether local state is consistent with the server after
// the attempt. Skipped counts as success because the running sync owns the
// outcome.
func (r Result) Succeeded() bool {
	return r.Outcome != OutcomeError
}
