package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/actionsum/autotrack/internal/activity"
	"github.com/actionsum/autotrack/internal/config"
	"github.com/actionsum/autotrack/internal/daemon"
	"github.com/actionsum/autotrack/internal/reporter"
	"github.com/actionsum/autotrack/internal/tracker"
	"github.com/actionsum/autotrack/internal/web"
)

type runOptions struct {
	web  bool
	port int
}

func (o *runOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.web, "web", false, "serve the status and report API")
	cmd.Flags().IntVar(&o.port, "port", 0, "web API port (default from config)")
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the tracker in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), a.cfg, opts, cmd.ErrOrStderr())
		},
	}
	opts.bind(cmd)
	return cmd
}

func newStartCmd(a *app) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the tracker as a background daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if daemon.IsChild() {
				return runDaemon(cmd.Context(), a.cfg, opts, os.Stderr)
			}

			dm := daemon.New(a.cfg.Daemon.PIDFile)
			running, pid, err := dm.IsRunning()
			if err != nil {
				return errors.Wrap(err, "failed to check daemon status")
			}
			if running {
				return errors.Errorf("daemon is already running (PID: %d)", pid)
			}

			args := []string{"start"}
			if a.configPath != "" {
				args = append([]string{"--config", a.configPath}, args...)
			}
			if opts.web {
				args = append(args, "--web")
			}
			if opts.port > 0 {
				args = append(args, "--port", strconv.Itoa(opts.port))
			}

			pid, err = daemon.Spawn(args, a.cfg.Daemon.LogFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daemon started successfully (PID: %d)\n", pid)
			if opts.web {
				port := a.cfg.Web.Port
				if opts.port > 0 {
					port = opts.port
				}
				fmt.Fprintf(out, "Web API available at: http://%s:%d\n", a.cfg.Web.Host, port)
			}
			fmt.Fprintf(out, "Logs: %s\n", a.cfg.Daemon.LogFile)
			return nil
		},
	}
	opts.bind(cmd)
	return cmd
}

func runDaemon(ctx context.Context, cfg *config.Config, opts *runOptions, logOut io.Writer) error {
	logger := newLogger(cfg, logOut)

	dm := daemon.New(cfg.Daemon.PIDFile)
	running, pid, err := dm.IsRunning()
	if err != nil {
		return errors.Wrap(err, "failed to check daemon status")
	}
	if running && pid != os.Getpid() {
		return errors.Errorf("daemon is already running (PID: %d)", pid)
	}

	db, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	l, closeLedger, err := openLedger(cfg, store)
	if err != nil {
		return err
	}
	defer closeLedger()

	src, err := openSource(cfg, logger)
	if err != nil {
		return errors.Wrap(err, "failed to open session signal source")
	}
	defer src.Close()

	active, err := src.Active(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read session activation")
	}

	idle := idleDelay(ctx, cfg, src, logger)
	logger.Info("session", "source", src.Name(), "active", active, "idle_delay", idle)

	machine := activity.New(active, idle, l, activity.Options{
		Category:    cfg.Ledger.Category,
		Activity:    cfg.Ledger.Activity,
		CallTimeout: cfg.Ledger.CallTimeout,
		Logger:      logger,
	})
	svc := tracker.NewService(machine, src, store, logger)

	if err := dm.WritePID(); err != nil {
		return err
	}
	defer dm.RemovePID()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var webServer *web.Server
	if opts.web {
		var entries reporter.EntrySource
		if cfg.Ledger.Backend == config.BackendSQLite {
			entries = store
		}
		handler := web.NewHandler(cfg, svc, entries, logger)
		if today, ok := l.(web.TodaySource); ok {
			handler.WithTodaysEntries(today)
		}
		webServer = web.NewServer(cfg, handler, opts.port, logger)
		go func() {
			if err := webServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("web server error", "error", err)
			}
		}()
	}

	logger.Info("starting autotrack daemon", "backend", cfg.Ledger.Backend, "pid", os.Getpid())
	logger.Debug(cfg.String())

	err = svc.Start(ctx)

	if webServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := webServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down web server", "error", err)
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("tracker error", "error", err)
		return err
	}

	logger.Info("daemon stopped successfully")
	return nil
}
