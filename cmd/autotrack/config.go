package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	var summary bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if summary {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), a.cfg.String())
				return err
			}

			doc, err := a.cfg.TOML()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), doc)
			return err
		},
	}

	cmd.Flags().BoolVar(&summary, "summary", false, "print a readable summary instead of TOML")
	return cmd
}
