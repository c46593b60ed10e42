package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEnqueueCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <audio-file-or-url>",
		Short: "Queue a separation run for a worker to pick up",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*configFlag)
			if err != nil {
				return err
			}
			defer app.Close()

			rn, err := app.Enqueue(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Queued run %s for %s\n", rn.ID, rn.Input)
			return nil
		},
	}
}
