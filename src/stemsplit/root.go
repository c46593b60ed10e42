package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stemtools/stemsplit/src/shared/config"
	"github.com/stemtools/stemsplit/src/stemsplit/application"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/pipeline"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/report"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "stemsplit <audio-file-or-url>",
		Short:         "Separate an audio file or URL into stems",
		Long:          "stemsplit resolves a local file or URL, runs it through a source-separation backend and saves the labeled stems under a unique, timestamped output directory.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}

			return runSeparation(cmd, configFlag, args[0])
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newWorkerCommand(&configFlag))
	rootCmd.AddCommand(newEnqueueCommand(&configFlag))
	rootCmd.AddCommand(newRunsCommand(&configFlag))

	return rootCmd
}

func runSeparation(cmd *cobra.Command, configFlag string, input string) error {
	app, err := loadApp(configFlag)
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.RunPipeline(cmd.Context(), input)
	if err != nil {
		return fmt.Errorf("run failed at the %s stage: %w", failureStageName(err), err)
	}

	report.WriteResult(os.Stdout, result)
	return nil
}

func failureStageName(err error) string {
	switch pipeline.ClassifyFailure(err) {
	case pipeline.FailureNotFound:
		return "input lookup"
	case pipeline.FailureDownload:
		return "download"
	case pipeline.FailureUnsupportedFormat:
		return "format check"
	case pipeline.FailureSeparation:
		return "separation"
	case pipeline.FailureWrite:
		return "output write"
	default:
		return "internal"
	}
}

func loadApp(configFlag string) (application.App, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return application.App{}, err
	}

	return application.NewApp(cfg)
}
