package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slb",
		Short: "slb - serverless cold start benchmarking",
		Long: `slb runs latency benchmarks against serverless functions deployed on
AWS Lambda, Google Cloud Run, Azure Functions, and Knative.

It enforces and verifies cold starts, collects client-side timings, and
reconciles them with provider-side telemetry after each run.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	// Add subcommands
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newDeployCommand())
	cmd.AddCommand(newDeleteCommand())
	cmd.AddCommand(newCacheCommand())
	cmd.AddCommand(newCheckCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
