package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/actionsum/autotrack/internal/daemon"
)

func newStopCmd(a *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dm := daemon.New(a.cfg.Daemon.PIDFile)
			out := cmd.OutOrStdout()

			running, pid, err := dm.IsRunning()
			if err != nil {
				return errors.Wrap(err, "failed to check daemon status")
			}
			if !running {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}

			fmt.Fprintf(out, "Stopping daemon (PID: %d)...\n", pid)
			if err := dm.Stop(timeout); err != nil {
				if errors.Is(err, daemon.ErrNotRunning) {
					fmt.Fprintln(out, "Daemon is not running")
					return nil
				}
				return errors.Wrap(err, "failed to stop daemon")
			}

			fmt.Fprintln(out, "Daemon stopped successfully")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the daemon to exit")
	return cmd
}
