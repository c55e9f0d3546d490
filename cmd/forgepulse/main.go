package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgepulse/forgepulse/cmd/forgepulse/commands"
	"github.com/forgepulse/forgepulse/logger"
)

var rootCmd = &cobra.Command{
	Use:   "forgepulse",
	Short: "forgepulse - Scheduled Revit cloud model publishing",
	Long: `forgepulse - Scheduled publishing for Revit cloud models in
Autodesk Construction Cloud.

forgepulse keeps Revit cloud models published on a recurring cron
schedule: it resolves each model to its tip version, dispatches the
publish command through the regional Data Management API deployments,
and records a full history of every run.

Available commands:
  serve  - Start the scheduler daemon
  jobs   - Manage scheduled publish jobs
  runs   - Inspect publish run history
  db     - Manage database operations

Examples:
  forgepulse serve                    # Start daemon in foreground
  forgepulse jobs ls                  # List scheduled jobs
  forgepulse jobs run job_abc123      # Execute a job immediately
  forgepulse runs ls job_abc123       # List a job's run history`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(false); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.RunsCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
