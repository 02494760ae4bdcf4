package tracker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actionsum/autotrack/internal/activity"
	"github.com/actionsum/autotrack/internal/ledger"
	"github.com/actionsum/autotrack/internal/models"
)

// scriptedSource plays a fixed list of events, then either blocks or
// fails.
type scriptedSource struct {
	events []activity.Event
	fail   error
}

func (s *scriptedSource) Active(ctx context.Context) (bool, error) { return true, nil }
func (s *scriptedSource) Name() string                             { return "scripted" }
func (s *scriptedSource) Close() error                             { return nil }

func (s *scriptedSource) Listen(ctx context.Context, out chan<- activity.Event) error {
	for _, ev := range s.events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.fail != nil {
		return s.fail
	}
	<-ctx.Done()
	return ctx.Err()
}

// recordingLedger stores a single day's entries and logs each call. A
// non-nil gate blocks every call until it is closed.
type recordingLedger struct {
	mu      sync.Mutex
	entries []*ledger.Entry
	ops     []string
	gate    chan struct{}
	fail    error
}

func (l *recordingLedger) wait() {
	if l.gate != nil {
		<-l.gate
	}
}

func (l *recordingLedger) record(op string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

func (l *recordingLedger) Ops() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}

func (l *recordingLedger) LatestToday(ctx context.Context) (*ledger.Entry, error) {
	l.wait()
	if l.fail != nil {
		return nil, l.fail
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return nil, nil
	}
	e := *l.entries[len(l.entries)-1]
	return &e, nil
}

func (l *recordingLedger) OpenEntry(ctx context.Context) (*ledger.Entry, error) {
	l.wait()
	if l.fail != nil {
		return nil, l.fail
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Open() {
			e := *l.entries[i]
			return &e, nil
		}
	}
	return nil, nil
}

func (l *recordingLedger) CloseEntry(ctx context.Context, id int64, end time.Time) error {
	l.record("close")
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[id-1].End = &end
	return nil
}

func (l *recordingLedger) CreateEntry(ctx context.Context, category, act string, start time.Time) (int64, error) {
	l.record("create")
	l.mu.Lock()
	defer l.mu.Unlock()
	id := int64(len(l.entries) + 1)
	l.entries = append(l.entries, &ledger.Entry{ID: id, Category: category, Activity: act, Start: start})
	return id, nil
}

func (l *recordingLedger) ReopenEntry(ctx context.Context, id int64) error {
	l.record("reopen")
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[id-1].End = nil
	return nil
}

type memoryRecorder struct {
	mu   sync.Mutex
	logs []*models.ErrorLog
}

func (r *memoryRecorder) CreateErrorLog(errorLog *models.ErrorLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, errorLog)
	return nil
}

func (r *memoryRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logs)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMachine(l activity.Ledger) *activity.Machine {
	return activity.New(true, 10*time.Minute, l, activity.Options{Logger: quietLogger()})
}

func TestServiceDispatchesInOrder(t *testing.T) {
	base := time.Now()
	src := &scriptedSource{events: []activity.Event{
		activity.Activation(false, base),
		activity.Lock(base.Add(time.Minute)),
		activity.Activation(true, base.Add(time.Minute)),
		activity.Activation(false, base.Add(2*time.Minute)),
		activity.Activation(true, base.Add(3*time.Minute)),
	}}
	l := &recordingLedger{}
	svc := NewService(newMachine(l), src, nil, quietLogger())

	done := make(chan error, 1)
	go func() { done <- svc.Start(context.Background()) }()

	require.Eventually(t, func() bool { return len(l.Ops()) == 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"create", "close", "reopen", "close"}, l.Ops())
	assert.True(t, svc.IsRunning())

	svc.Stop()
	require.NoError(t, <-done)
	assert.False(t, svc.IsRunning())
}

func TestServiceQueuesWhileLedgerIsSlow(t *testing.T) {
	base := time.Now()
	src := &scriptedSource{events: []activity.Event{
		activity.Activation(false, base),
		activity.Activation(true, base.Add(time.Minute)),
		activity.Activation(false, base.Add(2*time.Minute)),
	}}
	l := &recordingLedger{gate: make(chan struct{})}
	svc := NewService(newMachine(l), src, nil, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	// The first event is stuck in the ledger; the rest must still be
	// accepted from the source.
	require.Eventually(t, func() bool { return svc.Pending() == 2 }, 2*time.Second, 5*time.Millisecond)

	close(l.gate)
	require.Eventually(t, func() bool { return len(l.Ops()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"create", "close", "reopen"}, l.Ops())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestServiceRecordsLedgerFailures(t *testing.T) {
	src := &scriptedSource{events: []activity.Event{
		activity.Activation(false, time.Now()),
	}}
	l := &recordingLedger{fail: errors.Wrap(ledger.ErrUnavailable, "hamster not running")}
	rec := &memoryRecorder{}
	m := newMachine(l)
	svc := NewService(m, src, rec, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	require.Eventually(t, func() bool { return rec.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "active-changed(false)", rec.logs[0].Event)
	assert.Contains(t, rec.logs[0].ErrorMsg, "hamster not running")
	assert.False(t, m.State().Active)

	cancel()
	<-done
}

func TestServiceSourceFailure(t *testing.T) {
	src := &scriptedSource{fail: errors.New("bus closed")}
	svc := NewService(newMachine(&recordingLedger{}), src, nil, quietLogger())

	err := svc.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signal source stopped")
}

func TestServiceRejectsSecondStart(t *testing.T) {
	src := &scriptedSource{}
	svc := NewService(newMachine(&recordingLedger{}), src, nil, quietLogger())

	done := make(chan error, 1)
	go func() { done <- svc.Start(context.Background()) }()
	require.Eventually(t, svc.IsRunning, time.Second, 5*time.Millisecond)

	assert.Error(t, svc.Start(context.Background()))

	svc.Stop()
	svc.Stop()
	require.NoError(t, <-done)
}

func TestQueuePreservesOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := newQueue(ctx)

	base := time.Now()
	for i := 0; i < 100; i++ {
		q.in <- activity.Activation(i%2 == 0, base.Add(time.Duration(i)*time.Second))
	}
	for i := 0; i < 100; i++ {
		ev := <-q.out
		assert.Equal(t, base.Add(time.Duration(i)*time.Second), ev.At)
	}
	require.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, time.Millisecond)
}
