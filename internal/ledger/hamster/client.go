// Package hamster drives the Hamster time tracker over its session bus
// JSON API (org.gnome.Hamster).
package hamster

import (
	"context"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"

	"github.com/actionsum/autotrack/internal/ledger"
)

const (
	DefaultBusName = "org.gnome.Hamster"
	DefaultPath    = "/org/gnome/Hamster"

	iface = "org.gnome.Hamster"
)

// busObject is the part of dbus.BusObject the client needs.
type busObject interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

type Client struct {
	obj  busObject
	conn *dbus.Conn
}

// Dial connects to the session bus and binds to the Hamster service.
// The service itself is not contacted until the first call.
func Dial(busName, path string) (*Client, error) {
	if busName == "" {
		busName = DefaultBusName
	}
	if path == "" {
		path = DefaultPath
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, errors.Wrap(errors.Wrap(ledger.ErrUnavailable, err.Error()), "failed to connect to session bus")
	}

	return &Client{
		obj:  conn.Object(busName, dbus.ObjectPath(path)),
		conn: conn,
	}, nil
}

func newClient(obj busObject) *Client {
	return &Client{obj: obj}
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, args ...interface{}) *dbus.Call {
	return c.obj.CallWithContext(ctx, iface+"."+method, 0, args...)
}

// classify maps bus errors onto the ledger taxonomy: transport failures
// are ErrUnavailable, errors returned by Hamster itself are ErrRejected.
func classify(err error, method string) error {
	if err == nil {
		return nil
	}

	name := ""
	var derr dbus.Error
	var pderr *dbus.Error
	switch {
	case errors.As(err, &derr):
		name = derr.Name
	case errors.As(err, &pderr):
		name = pderr.Name
	}

	switch name {
	case "":
		return errors.Wrap(errors.Wrap(ledger.ErrUnavailable, err.Error()), method)
	case "org.freedesktop.DBus.Error.ServiceUnknown",
		"org.freedesktop.DBus.Error.NameHasNoOwner",
		"org.freedesktop.DBus.Error.NoReply",
		"org.freedesktop.DBus.Error.Timeout",
		"org.freedesktop.DBus.Error.Disconnected":
		return errors.Wrap(errors.Wrap(ledger.ErrUnavailable, err.Error()), method)
	default:
		return errors.Wrap(errors.Wrap(ledger.ErrRejected, err.Error()), method)
	}
}

func (c *Client) todaysFacts(ctx context.Context) ([]*fact, error) {
	var raw []string
	if err := c.call(ctx, "GetTodaysFactsJSON").Store(&raw); err != nil {
		return nil, classify(err, "GetTodaysFactsJSON")
	}

	facts := make([]*fact, 0, len(raw))
	for _, r := range raw {
		f, err := decodeFact(r)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, nil
}

func (c *Client) factByID(ctx context.Context, id int64) (*fact, error) {
	facts, err := c.todaysFacts(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range facts {
		if f.ID == id {
			return f, nil
		}
	}
	return nil, errors.Wrapf(ledger.ErrRejected, "fact %d not found among today's facts", id)
}

// LatestToday returns the last of today's facts, as Hamster orders them.
func (c *Client) LatestToday(ctx context.Context) (*ledger.Entry, error) {
	facts, err := c.todaysFacts(ctx)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return nil, nil
	}
	return facts[len(facts)-1].entry()
}

// OpenEntry returns the running fact. Hamster lists a fact that is still
// running among today's facts even when it started on an earlier day.
func (c *Client) OpenEntry(ctx context.Context) (*ledger.Entry, error) {
	entries, err := c.TodaysEntries(ctx)
	if err != nil {
		return nil, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Open() {
			return entries[i], nil
		}
	}
	return nil, nil
}

// TodaysEntries returns all of today's facts as entries.
func (c *Client) TodaysEntries(ctx context.Context) ([]*ledger.Entry, error) {
	facts, err := c.todaysFacts(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]*ledger.Entry, 0, len(facts))
	for _, f := range facts {
		e, err := f.entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (c *Client) update(ctx context.Context, f *fact) error {
	payload, err := f.encode()
	if err != nil {
		return err
	}

	var newID int32
	if err := c.call(ctx, "UpdateFactJSON", int32(f.ID), payload).Store(&newID); err != nil {
		return classify(err, "UpdateFactJSON")
	}
	if newID <= 0 {
		return errors.Wrapf(ledger.ErrRejected, "hamster refused update of fact %d", f.ID)
	}
	return nil
}

func (c *Client) CloseEntry(ctx context.Context, id int64, end time.Time) error {
	f, err := c.factByID(ctx, id)
	if err != nil {
		return err
	}
	f.Range.End = formatTime(end)
	return c.update(ctx, f)
}

func (c *Client) ReopenEntry(ctx context.Context, id int64) error {
	f, err := c.factByID(ctx, id)
	if err != nil {
		return err
	}
	f.Range.End = nil
	return c.update(ctx, f)
}

func (c *Client) CreateEntry(ctx context.Context, category, activity string, start time.Time) (int64, error) {
	f := &fact{
		Activity: activity,
		Category: category,
		Tags:     []string{},
	}
	f.Range.Start = formatTime(start)

	payload, err := f.encode()
	if err != nil {
		return 0, err
	}

	var id int32
	if err := c.call(ctx, "AddFactJSON", payload).Store(&id); err != nil {
		return 0, classify(err, "AddFactJSON")
	}
	if id <= 0 {
		return 0, errors.Wrap(ledger.ErrRejected, "hamster refused new fact")
	}
	return int64(id), nil
}
