package main

import (
	"github.com/spf13/cobra"
)

func newWorkerCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume separation jobs from the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*configFlag)
			if err != nil {
				return err
			}
			defer app.Close()

			return app.StartWorker(cmd.Context())
		},
	}
}
