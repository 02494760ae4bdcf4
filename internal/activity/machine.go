package activity

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/actionsum/autotrack/internal/ledger"
)

// Ledger is the subset of a time-tracking backend the machine drives.
type Ledger interface {
	// LatestToday returns the most recent entry started today, or nil.
	LatestToday(ctx context.Context) (*ledger.Entry, error)
	// OpenEntry returns the running entry whatever day it started on, or nil.
	OpenEntry(ctx context.Context) (*ledger.Entry, error)
	CloseEntry(ctx context.Context, id int64, end time.Time) error
	CreateEntry(ctx context.Context, category, activity string, start time.Time) (int64, error)
	// ReopenEntry clears the end time of an existing entry.
	ReopenEntry(ctx context.Context, id int64) error
}

type Options struct {
	// Category and Activity label entries created by UpsertOpenEntry.
	Category string
	Activity string

	// CallTimeout bounds each ledger command. Zero disables the bound.
	CallTimeout time.Duration

	Clock  func() time.Time
	Logger *slog.Logger
}

// Snapshot is a read-only view of the machine published after every
// event, for callers outside the dispatch loop.
type Snapshot struct {
	State       SessionState
	Events      uint64
	LastEvent   Event
	LastCommand Command
	LastError   string
	UpdatedAt   time.Time
}

// Machine owns the SessionState. Handle must only be called from a
// single goroutine; Snapshot is safe from any goroutine.
type Machine struct {
	state  SessionState
	ledger Ledger
	opts   Options
	events uint64

	snapshot atomic.Pointer[Snapshot]
}

func New(active bool, idleTimeout time.Duration, l Ledger, opts Options) *Machine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Category == "" {
		opts.Category = "Work"
	}
	if opts.Activity == "" {
		opts.Activity = "Work"
	}

	m := &Machine{
		state:  SessionState{Active: active, IdleTimeout: idleTimeout},
		ledger: l,
		opts:   opts,
	}
	m.publish(Event{}, Command{}, nil)
	return m
}

// State returns the current session state.
func (m *Machine) State() SessionState {
	return m.Snapshot().State
}

func (m *Machine) Snapshot() Snapshot {
	return *m.snapshot.Load()
}

// Handle applies ev and runs the resulting ledger command. The state is
// advanced even when the command fails: the next successful command
// reads the ledger afresh and corrects any drift.
func (m *Machine) Handle(ctx context.Context, ev Event) (Command, error) {
	if ev.At.IsZero() {
		ev.At = m.opts.Clock()
	}

	next, cmd := Transition(m.state, ev)
	m.opts.Logger.Debug("event received",
		"event", ev.String(),
		"locked", next.Locked,
		"active", next.Active,
		"command", cmd.String())
	m.state = next
	m.events++

	err := m.Apply(ctx, cmd)
	if err != nil {
		m.opts.Logger.Error("ledger command failed", "command", cmd.String(), "error", err)
	}
	m.publish(ev, cmd, err)
	return cmd, err
}

// Apply executes a single command against the ledger.
func (m *Machine) Apply(ctx context.Context, cmd Command) error {
	if cmd.Kind == CommandNone {
		return nil
	}

	if m.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.CallTimeout)
		defer cancel()
	}

	var err error
	switch cmd.Kind {
	case CloseOpenEntry:
		err = m.closeOpenEntry(ctx, cmd.At)
	case UpsertOpenEntry:
		err = m.upsertOpenEntry(ctx, cmd.At)
	default:
		return errors.Errorf("unknown command %s", cmd.Kind)
	}

	if err != nil && ctx.Err() == context.DeadlineExceeded && !errors.Is(err, ledger.ErrUnavailable) {
		err = errors.Wrap(ledger.ErrUnavailable, err.Error())
	}
	return err
}

func (m *Machine) closeOpenEntry(ctx context.Context, at time.Time) error {
	entry, err := m.ledger.OpenEntry(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to fetch open entry")
	}
	if entry == nil || !entry.Open() {
		m.opts.Logger.Info("no open entry to stop", "at", at)
		return nil
	}

	if at.Before(entry.Start) {
		at = entry.Start
	}
	if err := m.ledger.CloseEntry(ctx, entry.ID, at); err != nil {
		return errors.Wrapf(err, "failed to close entry %d", entry.ID)
	}
	m.opts.Logger.Info("stopped current activity", "id", entry.ID, "end", at)
	return nil
}

func (m *Machine) upsertOpenEntry(ctx context.Context, at time.Time) error {
	entry, err := m.ledger.LatestToday(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to fetch latest entry")
	}

	if entry != nil {
		if err := m.ledger.ReopenEntry(ctx, entry.ID); err != nil {
			return errors.Wrapf(err, "failed to reopen entry %d", entry.ID)
		}
		m.opts.Logger.Info("resumed activity", "id", entry.ID, "start", entry.Start)
		return nil
	}

	id, err := m.ledger.CreateEntry(ctx, m.opts.Category, m.opts.Activity, at)
	if err != nil {
		return errors.Wrap(err, "failed to create entry")
	}
	m.opts.Logger.Info("started new activity", "id", id, "start", at)
	return nil
}

func (m *Machine) publish(ev Event, cmd Command, err error) {
	s := &Snapshot{
		State:       m.state,
		Events:      m.events,
		LastEvent:   ev,
		LastCommand: cmd,
		UpdatedAt:   m.opts.Clock(),
	}
	if err != nil {
		s.LastError = err.Error()
	}
	m.snapshot.Store(s)
}
