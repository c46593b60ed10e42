package main

import (
	"github.com/spf13/cobra"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/report"
)

func newRunsCommand(configFlag *string) *cobra.Command {
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent separation runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*configFlag)
			if err != nil {
				return err
			}
			defer app.Close()

			runs, err := app.Store().ListRecent(cmd.Context(), limitFlag)
			if err != nil {
				return err
			}

			report.WriteRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limitFlag, "limit", "n", 20, "Maximum number of runs to list")

	return cmd
}
