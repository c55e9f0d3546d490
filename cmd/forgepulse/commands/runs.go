package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgepulse/forgepulse/config"
	"github.com/forgepulse/forgepulse/pulse/schedule"
)

// RunsCmd groups run history operations.
var RunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect publish run history",
	Long: `Inspect publish run history.

Run commands:
  forgepulse runs ls <job-id>        # List runs for a job
  forgepulse runs status <run-id>    # Show run details
  forgepulse runs cleanup            # Delete runs past the retention window`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// RunsLsCmd lists runs for a job.
var RunsLsCmd = &cobra.Command{
	Use:   "ls <job-id>",
	Short: "List runs for a job",
	Long: `List runs for a job, newest first.

Examples:
  forgepulse runs ls job_abc123
  forgepulse runs ls job_abc123 --limit 50 --offset 50`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		return runRunsLs(args[0], limit, offset)
	},
}

// RunsStatusCmd shows details for one run.
var RunsStatusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show status of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRunsStatus(args[0])
	},
}

// RunsCleanupCmd deletes runs older than the retention window.
var RunsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete runs past the retention window",
	Long: `Delete terminal runs older than the configured retention window
(runs.retention_days).

Example:
  forgepulse runs cleanup`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRunsCleanup()
	},
}

func init() {
	RunsLsCmd.Flags().Int("limit", 20, "Maximum number of runs to display")
	RunsLsCmd.Flags().Int("offset", 0, "Number of runs to skip")

	RunsCmd.AddCommand(RunsLsCmd)
	RunsCmd.AddCommand(RunsStatusCmd)
	RunsCmd.AddCommand(RunsCleanupCmd)
}

func runRunsLs(jobID string, limit, offset int) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err := openDatabase(cfg, "")
	if err != nil {
		return err
	}
	defer database.Close()

	store := schedule.NewRunStore(database)
	runs, err := store.ListRunsForJob(jobID, limit, offset)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	fmt.Printf("%-40s %-8s %-10s %-16s %s\n", "RUN ID", "STATUS", "ITEMS", "STARTED", "DURATION")
	fmt.Printf("%-40s %-8s %-10s %-16s %s\n", "------", "------", "-----", "-------", "--------")

	for _, run := range runs {
		items := fmt.Sprintf("%d/%d", run.SuccessCount, run.ItemCount)
		fmt.Printf("%-40s %-8s %-10s %-16s %v\n",
			truncate(run.ID, 40),
			run.Status,
			items,
			run.StartedAt.Format("2006-01-02 15:04"),
			time.Duration(run.DurationMs)*time.Millisecond)
	}

	fmt.Printf("\nTotal: %d run(s)\n", len(runs))
	return nil
}

func runRunsStatus(runID string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err := openDatabase(cfg, "")
	if err != nil {
		return err
	}
	defer database.Close()

	store := schedule.NewRunStore(database)
	run, err := store.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	fmt.Printf("Run ID: %s\n", run.ID)
	fmt.Printf("  Job: %s\n", run.JobID)
	fmt.Printf("  Project: %s\n", run.ProjectID)
	fmt.Printf("  Status: %s\n", run.Status)
	fmt.Printf("\n")

	fmt.Printf("Started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	if run.EndedAt != nil {
		fmt.Printf("Ended: %s\n", run.EndedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Duration: %v\n", time.Duration(run.DurationMs)*time.Millisecond)
	}
	fmt.Printf("\n")

	fmt.Printf("Items: %d ok / %d failed of %d\n", run.SuccessCount, run.FailureCount, run.ItemCount)
	for _, res := range run.Results {
		switch res.Status {
		case schedule.ItemStatusFailed:
			fmt.Printf("  FAILED   %s (%s: %s)\n", res.Item, res.ErrorKind, res.Message)
		case schedule.ItemStatusAccepted:
			fmt.Printf("  ACCEPTED %s (HTTP %d, %s)\n", res.Item, res.HTTPStatus, res.Region)
		default:
			fmt.Printf("  QUEUED   %s\n", res.Item)
		}
	}

	if run.Message != "" {
		fmt.Printf("\nMessage: %s\n", run.Message)
	}
	return nil
}

func runRunsCleanup() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err := openDatabase(cfg, "")
	if err != nil {
		return err
	}
	defer database.Close()

	store := schedule.NewRunStore(database)
	deleted, err := store.CleanupOldRuns(cfg.Runs.RetentionDays)
	if err != nil {
		return fmt.Errorf("failed to clean up runs: %w", err)
	}

	fmt.Printf("Deleted %d run(s) older than %d days\n", deleted, cfg.Runs.RetentionDays)
	return nil
}
