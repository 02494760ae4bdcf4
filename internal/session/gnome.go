package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"

	"github.com/actionsum/autotrack/internal/activity"
)

const (
	DefaultScreenSaverInterface = "org.gnome.ScreenSaver"
	DefaultScreenSaverPath      = "/org/gnome/ScreenSaver"
)

type GnomeOptions struct {
	// Interface is both the bus name and the interface of the
	// screensaver service.
	Interface string
	Path      string
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Gnome follows the screensaver service on the session bus. Activation
// changes arrive as ActiveChanged signals; explicit locks are only
// visible as Lock method calls, which are picked up by a second
// connection in monitor mode.
type Gnome struct {
	conn   *dbus.Conn
	obj    dbus.BusObject
	iface  string
	logger *slog.Logger
	clock  func() time.Time

	monitor *dbus.Conn
}

func NewGnome(opts GnomeOptions) (*Gnome, error) {
	if opts.Interface == "" {
		opts.Interface = DefaultScreenSaverInterface
	}
	if opts.Path == "" {
		opts.Path = DefaultScreenSaverPath
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, unavailable(err, "failed to connect to session bus")
	}

	return &Gnome{
		conn:   conn,
		obj:    conn.Object(opts.Interface, dbus.ObjectPath(opts.Path)),
		iface:  opts.Interface,
		logger: opts.Logger,
		clock:  opts.Clock,
	}, nil
}

func (g *Gnome) Name() string {
	return "gnome:" + g.iface
}

func (g *Gnome) Active(ctx context.Context) (bool, error) {
	var active bool
	if err := g.obj.CallWithContext(ctx, g.iface+".GetActive", 0).Store(&active); err != nil {
		return false, unavailable(err, "failed to query screensaver state")
	}
	g.logger.Debug("screensaver state", "active", active)
	return active, nil
}

func (g *Gnome) Listen(ctx context.Context, out chan<- activity.Event) error {
	err := g.conn.AddMatchSignalContext(ctx,
		dbus.WithMatchInterface(g.iface),
		dbus.WithMatchMember("ActiveChanged"))
	if err != nil {
		return unavailable(err, "failed to subscribe to ActiveChanged")
	}

	signals := make(chan *dbus.Signal, 16)
	g.conn.Signal(signals)
	defer g.conn.RemoveSignal(signals)

	locks, err := g.watchLocks(ctx)
	if err != nil {
		// Without lock calls every activation is treated as idle-driven.
		g.logger.Warn("cannot observe lock requests", "error", err)
	}

	return g.pump(ctx, signals, locks, out)
}

func (g *Gnome) watchLocks(ctx context.Context) (<-chan *dbus.Message, error) {
	mon, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, unavailable(err, "failed to open monitor connection")
	}

	rule := fmt.Sprintf("type='method_call',interface='%s',member='Lock'", g.iface)
	call := mon.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.Monitoring.BecomeMonitor", 0, []string{rule}, uint32(0))
	if call.Err != nil {
		g.logger.Debug("BecomeMonitor refused, falling back to eavesdrop match", "error", call.Err)
		call = mon.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.AddMatch", 0, rule+",eavesdrop='true'")
		if call.Err != nil {
			mon.Close()
			return nil, errors.Wrap(call.Err, "failed to install lock match")
		}
	}

	// Eavesdrop diverts every incoming message, method replies included,
	// so it can only be installed once the calls above have returned.
	// Lock calls that arrive earlier are addressed to the screensaver and
	// are dropped by the connection without a reply.
	msgs := make(chan *dbus.Message, 16)
	mon.Eavesdrop(msgs)
	g.monitor = mon
	return msgs, nil
}

// pump forwards bus traffic to out until ctx ends or the signal
// connection goes away. A nil locks channel is never selected.
func (g *Gnome) pump(ctx context.Context, signals <-chan *dbus.Signal, locks <-chan *dbus.Message, out chan<- activity.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case sig, ok := <-signals:
			if !ok {
				return errors.Wrap(ErrUnavailable, "session bus connection closed")
			}
			active, ok := g.activeChanged(sig)
			if !ok {
				continue
			}
			g.logger.Debug("active changed", "active", active)
			if !send(ctx, out, activity.Activation(active, g.clock())) {
				return ctx.Err()
			}

		case msg, ok := <-locks:
			if !ok {
				g.logger.Warn("lock monitor connection closed")
				locks = nil
				continue
			}
			if !g.isLockCall(msg) {
				continue
			}
			g.logger.Debug("lock received")
			if !send(ctx, out, activity.Lock(g.clock())) {
				return ctx.Err()
			}
		}
	}
}

func (g *Gnome) activeChanged(sig *dbus.Signal) (bool, bool) {
	if sig == nil || sig.Name != g.iface+".ActiveChanged" || len(sig.Body) != 1 {
		return false, false
	}
	active, ok := sig.Body[0].(bool)
	return active, ok
}

func (g *Gnome) isLockCall(msg *dbus.Message) bool {
	if msg == nil || msg.Type != dbus.TypeMethodCall {
		return false
	}
	return headerString(msg, dbus.FieldInterface) == g.iface && headerString(msg, dbus.FieldMember) == "Lock"
}

func headerString(msg *dbus.Message, field dbus.HeaderField) string {
	v, ok := msg.Headers[field]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

func (g *Gnome) Close() error {
	if g.monitor != nil {
		g.monitor.Close()
	}
	if g.conn != nil {
		return g.conn.Close()
	}
	return nil
}
