package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/actionsum/autotrack/internal/config"
	"github.com/actionsum/autotrack/internal/daemon"
	"github.com/actionsum/autotrack/internal/ledger"
	"github.com/actionsum/autotrack/internal/models"
	"github.com/actionsum/autotrack/pkg/utils"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status, session activation and the latest entry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			out := cmd.OutOrStdout()

			dm := daemon.New(cfg.Daemon.PIDFile)
			running, pid, err := dm.IsRunning()
			if err != nil {
				return errors.Wrap(err, "failed to check daemon status")
			}

			if running {
				fmt.Fprintf(out, "Status: Running (PID: %d)\n", pid)
			} else {
				fmt.Fprintln(out, "Status: Not running")
			}
			fmt.Fprintf(out, "Backend: %s\n", cfg.Ledger.Backend)

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			printSession(ctx, out, cfg)
			printLatestEntry(ctx, out, cfg)
			return nil
		},
	}
}

func printSession(ctx context.Context, out io.Writer, cfg *config.Config) {
	src, err := openSource(cfg, newLogger(cfg, io.Discard))
	if err != nil {
		fmt.Fprintf(out, "\nCould not open session: %v\n", err)
		return
	}
	defer src.Close()

	active, err := src.Active(ctx)
	if err != nil {
		fmt.Fprintf(out, "\nCould not read session activation: %v\n", err)
		return
	}

	fmt.Fprintf(out, "\nSession (%s):\n", src.Name())
	fmt.Fprintf(out, "  Screensaver active: %v\n", active)
	if delay := idleDelay(ctx, cfg, src, newLogger(cfg, io.Discard)); delay > 0 {
		fmt.Fprintf(out, "  Idle delay: %v\n", delay)
	}
}

func printLatestEntry(ctx context.Context, out io.Writer, cfg *config.Config) {
	db, store, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(out, "\nCould not open database: %v\n", err)
		return
	}
	defer db.Close()

	l, closeLedger, err := openLedger(cfg, store)
	if err != nil {
		fmt.Fprintf(out, "\nCould not open ledger: %v\n", err)
		return
	}
	defer closeLedger()

	entry, err := l.LatestToday(ctx)
	if err != nil {
		fmt.Fprintf(out, "\nCould not read ledger: %v\n", err)
		return
	}

	if entry == nil {
		fmt.Fprintln(out, "\nNo entry today")
	} else {
		fmt.Fprint(out, "\n"+formatEntry(entry, time.Now()))
	}

	logs, err := store.RecentErrors(recentErrorCount)
	if err != nil {
		fmt.Fprintf(out, "\nCould not read error log: %v\n", err)
		return
	}
	fmt.Fprint(out, formatErrors(logs))
}

const recentErrorCount = 3

func formatErrors(logs []*models.ErrorLog) string {
	if len(logs) == 0 {
		return ""
	}
	s := "\nRecent Ledger Errors:\n"
	for _, l := range logs {
		s += fmt.Sprintf("  %s %s: %s\n", l.Timestamp.Local().Format("2006-01-02 15:04"), l.Command, l.ErrorMsg)
	}
	return s
}

const maxLabelLen = 40

func formatEntry(e *ledger.Entry, now time.Time) string {
	state := "running"
	if e.End != nil {
		state = "stopped at " + e.End.Format("15:04")
	}
	return fmt.Sprintf("Latest Entry:\n  Activity: %s@%s\n  Started: %s\n  State: %s\n  Duration: %s\n",
		utils.Truncate(e.Activity, maxLabelLen), utils.Truncate(e.Category, maxLabelLen),
		e.Start.Format("15:04"),
		state,
		utils.FormatDuration(e.Duration(now)))
}
