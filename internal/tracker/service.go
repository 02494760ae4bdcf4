package tracker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/actionsum/autotrack/internal/activity"
	"github.com/actionsum/autotrack/internal/models"
	"github.com/actionsum/autotrack/internal/session"
)

// ErrorRecorder persists failures of individual ledger commands.
type ErrorRecorder interface {
	CreateErrorLog(errorLog *models.ErrorLog) error
}

type Service struct {
	machine  *activity.Machine
	source   session.Source
	recorder ErrorRecorder
	logger   *slog.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
	queue    atomic.Pointer[queue]
}

func NewService(machine *activity.Machine, source session.Source, recorder ErrorRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		machine:  machine,
		source:   source,
		recorder: recorder,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start runs the dispatch loop until ctx is cancelled, Stop is called,
// or the signal source fails. Events are handled one at a time in the
// order the source delivered them.
func (s *Service) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("tracker is already running")
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	q := newQueue(ctx)
	s.queue.Store(q)

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- s.source.Listen(ctx, q.in)
	}()

	s.logger.Info("tracker started", "source", s.source.Name(), "state", s.machine.State())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("tracker stopped by context")
			return ctx.Err()

		case <-s.stopChan:
			s.logger.Info("tracker stopped")
			return nil

		case err := <-listenErr:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "signal source stopped")

		case ev, ok := <-q.out:
			if !ok {
				return ctx.Err()
			}
			s.dispatch(ctx, ev)
		}
	}
}

func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *Service) IsRunning() bool {
	return s.running.Load()
}

// Snapshot returns the machine's latest published state.
func (s *Service) Snapshot() activity.Snapshot {
	return s.machine.Snapshot()
}

// SourceName identifies the signal source being listened to.
func (s *Service) SourceName() string {
	return s.source.Name()
}

// Pending returns the number of received events not yet handled.
func (s *Service) Pending() int {
	q := s.queue.Load()
	if q == nil {
		return 0
	}
	return q.Len()
}

func (s *Service) dispatch(ctx context.Context, ev activity.Event) {
	cmd, err := s.machine.Handle(ctx, ev)
	if err != nil {
		s.storeError(ev, cmd, err)
		return
	}
	if cmd.Kind != activity.CommandNone {
		s.logger.Info("applied", "event", ev.String(), "command", cmd.String())
	}
}

func (s *Service) storeError(ev activity.Event, cmd activity.Command, err error) {
	if s.recorder == nil {
		return
	}

	errorLog := &models.ErrorLog{
		Timestamp: time.Now(),
		Event:     ev.String(),
		Command:   cmd.String(),
		ErrorMsg:  err.Error(),
	}

	if dbErr := s.recorder.CreateErrorLog(errorLog); dbErr != nil {
		s.logger.Error("failed to store error in database", "error", dbErr, "original", err)
	}
}
