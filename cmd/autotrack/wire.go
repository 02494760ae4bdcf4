package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/actionsum/autotrack/internal/activity"
	"github.com/actionsum/autotrack/internal/config"
	"github.com/actionsum/autotrack/internal/ledger/hamster"
	"github.com/actionsum/autotrack/internal/ledger/sqlite"
	"github.com/actionsum/autotrack/internal/session"
)

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Log.Level))); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openStore opens and migrates the local database. It holds the sqlite
// ledger and the error log of every backend.
func openStore(cfg *config.Config) (*sqlite.DB, *sqlite.Store, error) {
	db, err := sqlite.Connect(cfg.Database.Path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to database")
	}

	if err := db.Initialize(); err != nil {
		db.Close()
		return nil, nil, errors.Wrap(err, "failed to initialize database")
	}

	return db, sqlite.NewStore(db), nil
}

// openLedger returns the configured backend and a function releasing it.
func openLedger(cfg *config.Config, store *sqlite.Store) (activity.Ledger, func(), error) {
	switch cfg.Ledger.Backend {
	case config.BackendHamster:
		client, err := hamster.Dial(cfg.Hamster.BusName, cfg.Hamster.BusPath)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to connect to hamster")
		}
		return client, func() { client.Close() }, nil
	default:
		return store, func() {}, nil
	}
}

func openSource(cfg *config.Config, logger *slog.Logger) (session.Source, error) {
	kind := cfg.Session.Source
	if kind == config.SourceAuto {
		kind = session.DetectSource()
	}

	switch kind {
	case config.SourceGnome:
		return session.NewGnome(session.GnomeOptions{
			Interface: cfg.Session.BusInterface,
			Path:      cfg.Session.BusPath,
			Logger:    logger,
		})
	case config.SourceX11:
		return session.NewX11(session.X11Options{
			PollInterval: cfg.Session.PollInterval,
			Logger:       logger,
		})
	default:
		return nil, errors.Wrap(session.ErrUnavailable, "no supported desktop session detected")
	}
}

// idleDelay resolves the session idle delay: the configured override,
// then the desktop settings, then the source itself.
func idleDelay(ctx context.Context, cfg *config.Config, src session.Source, logger *slog.Logger) time.Duration {
	var readers []session.IdleDelayReader
	if cfg.Session.IdleDelay > 0 {
		readers = append(readers, session.Fixed(cfg.Session.IdleDelay))
	}
	if _, ok := src.(*session.Gnome); ok {
		readers = append(readers, session.NewGSettings())
	}
	if r, ok := src.(session.IdleDelayReader); ok {
		readers = append(readers, r)
	}
	return session.ReadIdleDelay(ctx, logger, readers...)
}
