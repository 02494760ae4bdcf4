package session

import (
	"context"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// GSettings reads org.gnome.desktop.session idle-delay through the
// gsettings tool.
type GSettings struct {
	Schema string
	Key    string

	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewGSettings() *GSettings {
	return &GSettings{
		Schema: "org.gnome.desktop.session",
		Key:    "idle-delay",
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

func (g *GSettings) IdleDelay(ctx context.Context) (time.Duration, error) {
	out, err := g.run(ctx, "gsettings", "get", g.Schema, g.Key)
	if err != nil {
		return 0, errors.Wrap(errors.Wrap(ErrConfigUnavailable, err.Error()), "gsettings get failed")
	}
	return parseGVariantSeconds(string(out))
}

// parseGVariantSeconds parses the printed form of a numeric GVariant,
// e.g. "uint32 300" or "300".
func parseGVariantSeconds(s string) (time.Duration, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, errors.Wrap(ErrConfigUnavailable, "empty idle delay")
	}

	seconds, err := strconv.ParseUint(fields[len(fields)-1], 10, 32)
	if err != nil {
		return 0, errors.Wrapf(ErrConfigUnavailable, "invalid idle delay %q", strings.TrimSpace(s))
	}
	return time.Duration(seconds) * time.Second, nil
}

// Fixed is an idle delay taken from configuration.
type Fixed time.Duration

func (f Fixed) IdleDelay(ctx context.Context) (time.Duration, error) {
	return time.Duration(f), nil
}

// ReadIdleDelay tries each reader in turn and returns the first delay
// read without error. When every reader fails it returns 0, which the
// state machine treats as "no timeout".
func ReadIdleDelay(ctx context.Context, logger *slog.Logger, readers ...IdleDelayReader) time.Duration {
	for _, r := range readers {
		if r == nil {
			continue
		}
		d, err := r.IdleDelay(ctx)
		if err == nil {
			logger.Info("idle delay", "delay", d)
			return d
		}
		logger.Warn("failed to read idle delay", "error", err)
	}
	logger.Warn("no idle delay available, assuming none")
	return 0
}
