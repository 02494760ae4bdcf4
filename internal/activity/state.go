// Package activity reconciles session lock and screensaver signals into
// commands against a time-tracking ledger.
//
// The decision logic is the pure function Transition; Machine wraps it
// with the ledger calls and the bookkeeping of a running daemon.
package activity

import (
	"fmt"
	"time"
)

type EventKind int

const (
	// LockRequested is an explicit lock action observed on the session.
	LockRequested EventKind = iota + 1
	// ActiveChanged is a change of the session's screensaver-active flag.
	ActiveChanged
)

func (k EventKind) String() string {
	switch k {
	case LockRequested:
		return "lock-requested"
	case ActiveChanged:
		return "active-changed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a single notification from the signal source. At is the wall
// clock time at which the source received it.
type Event struct {
	Kind   EventKind
	Active bool
	At     time.Time
}

// Lock builds a LockRequested event.
func Lock(at time.Time) Event {
	return Event{Kind: LockRequested, At: at}
}

// Activation builds an ActiveChanged event carrying the new flag.
func Activation(active bool, at time.Time) Event {
	return Event{Kind: ActiveChanged, Active: active, At: at}
}

func (e Event) String() string {
	if e.Kind == ActiveChanged {
		return fmt.Sprintf("%s(%t)", e.Kind, e.Active)
	}
	return e.Kind.String()
}

type CommandKind int

const (
	CommandNone CommandKind = iota
	// CloseOpenEntry ends today's open entry at Command.At.
	CloseOpenEntry
	// UpsertOpenEntry reopens today's latest entry or starts a new one
	// at Command.At.
	UpsertOpenEntry
)

func (k CommandKind) String() string {
	switch k {
	case CommandNone:
		return "none"
	case CloseOpenEntry:
		return "close-open-entry"
	case UpsertOpenEntry:
		return "upsert-open-entry"
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

type Command struct {
	Kind CommandKind
	At   time.Time
}

func (c Command) String() string {
	if c.Kind == CommandNone {
		return c.Kind.String()
	}
	return fmt.Sprintf("%s(at=%s)", c.Kind, c.At.Format(time.DateTime))
}

// SessionState is everything the machine remembers between events.
type SessionState struct {
	// Locked is set by an explicit lock and cleared when the session
	// becomes inactive again.
	Locked bool
	// Active mirrors the screensaver-active flag. While it is true the
	// current activity is closed.
	Active bool
	// IdleTimeout is the session idle delay; zero means none configured.
	IdleTimeout time.Duration
}

// IdleStart returns the moment idleness began for an activation seen at
// "at". An explicit lock starts idleness immediately; an automatic
// activation only fires after the idle delay has already elapsed.
func (s SessionState) IdleStart(at time.Time) time.Time {
	if s.Locked || s.IdleTimeout <= 0 {
		return at
	}
	return at.Add(-s.IdleTimeout)
}

// Transition applies ev to s and returns the new state together with the
// ledger command it requires. Duplicate and out-of-order events are not
// rejected; they reissue the command for the state they assert.
func Transition(s SessionState, ev Event) (SessionState, Command) {
	switch ev.Kind {
	case LockRequested:
		s.Locked = true
		return s, Command{Kind: CommandNone}

	case ActiveChanged:
		if ev.Active {
			cmd := Command{Kind: CloseOpenEntry, At: s.IdleStart(ev.At)}
			s.Active = true
			return s, cmd
		}
		s.Locked = false
		s.Active = false
		return s, Command{Kind: UpsertOpenEntry, At: ev.At}
	}

	return s, Command{Kind: CommandNone}
}
