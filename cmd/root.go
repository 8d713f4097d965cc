package cmd

import (
	"github.com/spf13/cobra"

	"github.com/maxkimambo/taskman/internal/logger"
)

var (
	verbose  bool
	jsonLogs bool
	quiet    bool
	version  = "v0.1.0"

	rootCmd = &cobra.Command{
		Use:   "taskman",
		Short: "A dependency-aware concurrent task runner",
		Long: `taskman runs workflows of shell-command tasks as a dependency graph:
tasks start concurrently as soon as everything they depend on has finished,
per-task timeouts are enforced, and return codes aggregate into a single
worst-case exit status.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Setup(verbose, jsonLogs, quiet)
		},
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
}
