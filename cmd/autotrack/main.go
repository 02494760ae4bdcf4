package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/actionsum/autotrack/internal/config"
)

var (
	version = "0.1.0"
	commit  = "unknown"
	date    = "unknown"
)

const appName = "autotrack"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries state shared by all commands.
type app struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Track working time from session lock and screensaver signals",
		Long: `autotrack keeps a time-tracking ledger in sync with your desktop session.
The running activity is closed when the screensaver activates or the
session is locked, and resumed or restarted when you come back.

Configuration is read from ~/.config/autotrack/config.toml and from
AUTOTRACK_* environment variables (e.g. AUTOTRACK_LEDGER_BACKEND=hamster).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.config/autotrack/config.toml)")

	rootCmd.AddCommand(
		newRunCmd(a),
		newStartCmd(a),
		newStopCmd(a),
		newStatusCmd(a),
		newReportCmd(a),
		newClearCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)

	return rootCmd
}
