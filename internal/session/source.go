// Package session watches the desktop session for screensaver and lock
// activity and turns it into activity events.
package session

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/actionsum/autotrack/internal/activity"
)

var (
	// ErrUnavailable means the session bus or display could not be reached.
	ErrUnavailable = errors.New("session unavailable")

	// ErrConfigUnavailable means the idle delay could not be read.
	ErrConfigUnavailable = errors.New("idle delay unavailable")
)

// Source is a live feed of session signals.
type Source interface {
	// Active reports the current screensaver-active flag.
	Active(ctx context.Context) (bool, error)

	// Listen delivers events to out until ctx is cancelled or the
	// underlying connection fails. Events carry the time they were
	// received.
	Listen(ctx context.Context, out chan<- activity.Event) error

	// Name identifies the source in logs and status output.
	Name() string

	Close() error
}

// IdleDelayReader reads the configured session idle delay.
type IdleDelayReader interface {
	IdleDelay(ctx context.Context) (time.Duration, error)
}

// DetectSource picks the source kind for the running session when none
// is configured. The GNOME screensaver is only assumed on GNOME-based
// desktops; any other desktop with a display is polled over X11.
func DetectSource() string {
	if isGnomeDesktop(os.Getenv("XDG_CURRENT_DESKTOP")) {
		return "gnome"
	}
	if os.Getenv("DISPLAY") != "" {
		return "x11"
	}
	return "unknown"
}

// isGnomeDesktop reports whether the colon-separated XDG_CURRENT_DESKTOP
// value names a desktop that provides org.gnome.ScreenSaver.
func isGnomeDesktop(desktop string) bool {
	for _, name := range strings.Split(desktop, ":") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "gnome", "gnome-classic", "gnome-flashback", "unity":
			return true
		}
	}
	return false
}

// send delivers ev unless ctx is done first.
func send(ctx context.Context, out chan<- activity.Event, ev activity.Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func unavailable(err error, msg string) error {
	return errors.Wrap(errors.Wrap(ErrUnavailable, err.Error()), msg)
}
