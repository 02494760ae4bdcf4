package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newClearCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all entries and error logs from the local database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			if !yes {
				fmt.Fprint(out, "This will delete all tracking data. Are you sure? (yes/no): ")
				response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				response = strings.ToLower(strings.TrimSpace(response))
				if response != "yes" && response != "y" {
					fmt.Fprintln(out, "Operation cancelled")
					return nil
				}
			}

			db, store, err := openStore(a.cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.Clear(); err != nil {
				return errors.Wrap(err, "failed to clear database")
			}

			fmt.Fprintln(out, "Database cleared successfully")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
