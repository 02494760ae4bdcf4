package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/screensaver"
	"github.com/jezek/xgb/xproto"

	"github.com/actionsum/autotrack/internal/activity"
)

type X11Options struct {
	PollInterval time.Duration
	Logger       *slog.Logger
	Clock        func() time.Time
}

// X11 polls the MIT-SCREEN-SAVER extension. X has no notion of an
// explicit lock request, so this source only ever emits ActiveChanged.
type X11 struct {
	conn     *xgb.Conn
	root     xproto.Window
	interval time.Duration
	logger   *slog.Logger
	clock    func() time.Time
}

func NewX11(opts X11Options) (*X11, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	conn, err := xgb.NewConn()
	if err != nil {
		return nil, unavailable(err, "failed to connect to X server")
	}
	if err := screensaver.Init(conn); err != nil {
		conn.Close()
		return nil, unavailable(err, "MIT-SCREEN-SAVER extension not available")
	}

	return &X11{
		conn:     conn,
		root:     xproto.Setup(conn).DefaultScreen(conn).Root,
		interval: opts.PollInterval,
		logger:   opts.Logger,
		clock:    opts.Clock,
	}, nil
}

func (x *X11) Name() string {
	return "x11"
}

// saverActive reports whether the screensaver state counts as active.
func saverActive(state byte) bool {
	return state == screensaver.StateOn || state == screensaver.StateCycle
}

func (x *X11) Active(ctx context.Context) (bool, error) {
	info, err := screensaver.QueryInfo(x.conn, xproto.Drawable(x.root)).Reply()
	if err != nil {
		return false, unavailable(err, "failed to query screensaver info")
	}
	return saverActive(info.State), nil
}

// IdleDelay returns the server's screensaver timeout.
func (x *X11) IdleDelay(ctx context.Context) (time.Duration, error) {
	reply, err := xproto.GetScreenSaver(x.conn).Reply()
	if err != nil {
		return 0, unavailable(err, "failed to read screensaver timeout")
	}
	return time.Duration(reply.Timeout) * time.Second, nil
}

func (x *X11) Listen(ctx context.Context, out chan<- activity.Event) error {
	last, err := x.Active(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(x.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			active, err := x.Active(ctx)
			if err != nil {
				return err
			}
			if active == last {
				continue
			}
			last = active
			x.logger.Debug("screensaver state changed", "active", active)
			if !send(ctx, out, activity.Activation(active, x.clock())) {
				return ctx.Err()
			}
		}
	}
}

func (x *X11) Close() error {
	x.conn.Close()
	return nil
}
