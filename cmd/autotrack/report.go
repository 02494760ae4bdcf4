package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/actionsum/autotrack/internal/config"
	"github.com/actionsum/autotrack/internal/reporter"
)

func newReportCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:       "report [day|week|month]",
		Short:     "Show worked time per day",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"day", "today", "week", "month"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if cfg.Ledger.Backend != config.BackendSQLite {
				return errors.Errorf("reports require the %s ledger backend", config.BackendSQLite)
			}

			periodType := "day"
			if len(args) > 0 {
				periodType = args[0]
			}

			db, store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			rep := reporter.New(cfg, store)
			report, err := rep.GenerateReport(cmd.Context(), periodType)
			if err != nil {
				return errors.Wrap(err, "failed to generate report")
			}

			if asJSON {
				jsonStr, err := rep.FormatReportJSON(report)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), jsonStr)
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), rep.FormatReportText(report))
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
