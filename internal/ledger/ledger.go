// Package ledger defines the entry type shared by the time-tracking
// backends and the error taxonomy they report.
package ledger

import (
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrUnavailable means the ledger could not be reached at call time.
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrRejected means the ledger answered, but refused the call or
	// returned data that could not be decoded.
	ErrRejected = errors.New("ledger rejected call")
)

// Entry is one dated activity record. End is nil while the entry is open.
type Entry struct {
	ID       int64
	Category string
	Activity string
	Start    time.Time
	End      *time.Time
}

// Open reports whether the entry is still running.
func (e *Entry) Open() bool {
	return e.End == nil
}

// Duration returns the tracked time of the entry. Open entries are
// measured up to now.
func (e *Entry) Duration(now time.Time) time.Duration {
	end := now
	if e.End != nil {
		end = *e.End
	}
	if end.Before(e.Start) {
		return 0
	}
	return end.Sub(e.Start)
}

// Validate checks the invariants every backend must uphold before an
// entry is handed to the state machine.
func (e *Entry) Validate() error {
	if e.ID <= 0 {
		return errors.Wrapf(ErrRejected, "entry has invalid id %d", e.ID)
	}
	if e.Start.IsZero() {
		return errors.Wrapf(ErrRejected, "entry %d has no start time", e.ID)
	}
	if e.Activity == "" {
		return errors.Wrapf(ErrRejected, "entry %d has no activity", e.ID)
	}
	return nil
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
