package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgepulse/forgepulse/config"
	"github.com/forgepulse/forgepulse/errors"
	"github.com/forgepulse/forgepulse/internal/util"
	"github.com/forgepulse/forgepulse/pulse/schedule"
)

// JobsCmd groups scheduled publish job operations.
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage scheduled publish jobs",
	Long: `Manage scheduled publish jobs.

Job management commands:
  forgepulse jobs ls               # List all jobs
  forgepulse jobs status <id>      # Show job details
  forgepulse jobs run <id>         # Execute a job immediately
  forgepulse jobs enable <id>      # Enable a job's schedule
  forgepulse jobs disable <id>     # Disable a job's schedule
  forgepulse jobs rm <id>          # Delete a job`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// JobsLsCmd lists scheduled jobs.
var JobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List scheduled publish jobs",
	Long: `List all scheduled publish jobs with schedule and status.

Examples:
  forgepulse jobs ls                 # List all jobs
  forgepulse jobs ls --user <id>     # List one user's jobs`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		return runJobsLs(userID)
	},
}

// JobsStatusCmd shows details for one job.
var JobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show status of a scheduled publish job",
	Long: `Display detailed information for a scheduled publish job:
- Hub, project, and model items
- Cron schedule and timezone
- Current status, last run, next run
- Last execution statistics

Example:
  forgepulse jobs status job_abc123`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJobsStatus(args[0])
	},
}

// JobsRunCmd triggers an immediate execution.
var JobsRunCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Execute a job immediately",
	Long: `Execute a publish job immediately, outside its cron schedule.

The command blocks until the run reaches a terminal state and prints the
per-item results. Execution exclusivity is per process: avoid running this
against a database a live daemon is serving.

Example:
  forgepulse jobs run job_abc123`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJobsRun(args[0])
	},
}

// JobsEnableCmd enables a job's schedule.
var JobsEnableCmd = &cobra.Command{
	Use:   "enable <job-id>",
	Short: "Enable a job's cron schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJobsSetEnabled(args[0], true)
	},
}

// JobsDisableCmd disables a job's schedule.
var JobsDisableCmd = &cobra.Command{
	Use:   "disable <job-id>",
	Short: "Disable a job's cron schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJobsSetEnabled(args[0], false)
	},
}

// JobsRmCmd deletes a job.
var JobsRmCmd = &cobra.Command{
	Use:   "rm <job-id>",
	Short: "Delete a scheduled publish job",
	Long: `Delete a scheduled publish job and its run history.

Example:
  forgepulse jobs rm job_abc123`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJobsRm(args[0])
	},
}

func init() {
	JobsLsCmd.Flags().String("user", "", "Filter by user id")

	JobsCmd.AddCommand(JobsLsCmd)
	JobsCmd.AddCommand(JobsStatusCmd)
	JobsCmd.AddCommand(JobsRunCmd)
	JobsCmd.AddCommand(JobsEnableCmd)
	JobsCmd.AddCommand(JobsDisableCmd)
	JobsCmd.AddCommand(JobsRmCmd)
}

func runJobsLs(userID string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err := openDatabase(cfg, "")
	if err != nil {
		return err
	}
	defer database.Close()

	store := schedule.NewJobStore(database)

	var jobs []*schedule.Job
	if userID != "" {
		jobs, err = store.ListJobsForUser(userID)
	} else {
		jobs, err = store.ListJobs()
	}
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-40s %-8s %-9s %-16s %-8s %s\n", "JOB ID", "STATUS", "SCHEDULE", "CRON", "ITEMS", "NEXT RUN")
	fmt.Printf("%-40s %-8s %-9s %-16s %-8s %s\n", "------", "------", "--------", "----", "-----", "--------")

	for _, job := range jobs {
		sched := "disabled"
		if job.ScheduleEnabled {
			sched = "enabled"
		}
		nextRun := "-"
		if job.NextRunAt != nil {
			nextRun = job.NextRunAt.Format("2006-01-02 15:04")
		}
		fmt.Printf("%-40s %-8s %-9s %-16s %-8d %s\n",
			truncate(job.ID, 40),
			job.Status,
			sched,
			truncate(job.CronExpr, 16),
			len(job.Items),
			nextRun)
	}

	fmt.Printf("\nTotal: %d job(s)\n", len(jobs))
	return nil
}

func runJobsStatus(jobID string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err := openDatabase(cfg, "")
	if err != nil {
		return err
	}
	defer database.Close()

	store := schedule.NewJobStore(database)
	job, err := store.GetJob(jobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}

	fmt.Printf("Job ID: %s\n", job.ID)
	fmt.Printf("  Hub: %s (%s)\n", job.HubName, job.HubID)
	fmt.Printf("  Project: %s (%s)\n", job.ProjectName, job.ProjectID)
	fmt.Printf("  Status: %s\n", job.Status)
	fmt.Printf("\n")

	fmt.Printf("Schedule: %s (%s)", job.CronExpr, job.Timezone)
	if !job.ScheduleEnabled {
		fmt.Printf(" [disabled]")
	}
	fmt.Printf("\n")
	if job.LastRunAt != nil {
		fmt.Printf("Last run: %s\n", job.LastRunAt.Format("2006-01-02 15:04:05"))
	}
	if job.NextRunAt != nil {
		fmt.Printf("Next run: %s\n", job.NextRunAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("\n")

	fmt.Printf("Items (%d):\n", len(job.Items))
	for _, item := range job.Items {
		fmt.Printf("  %s\n", item)
	}

	if job.Stats != nil {
		fmt.Printf("\nLast execution:\n")
		fmt.Printf("  Run: %s (%s)\n", job.Stats.RunID, job.Stats.Status)
		fmt.Printf("  Items: %d ok / %d failed of %d\n",
			job.Stats.SuccessCount, job.Stats.FailureCount, job.Stats.ItemCount)
		fmt.Printf("  Duration: %v\n", time.Duration(job.Stats.DurationMs)*time.Millisecond)
		if job.Stats.Message != "" {
			fmt.Printf("  Message: %s\n", job.Stats.Message)
		}
	}

	return nil
}

func runJobsRun(jobID string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err := openDatabase(cfg, "")
	if err != nil {
		return err
	}
	defer database.Close()

	scheduler, err := buildScheduler(cfg, database)
	if err != nil {
		return err
	}

	run, err := scheduler.RunJobNow(jobID)
	if err != nil {
		if errors.Is(err, errors.ErrAlreadyRunning) {
			return fmt.Errorf("job %s is already executing", jobID)
		}
		return fmt.Errorf("failed to start run: %w", err)
	}

	fmt.Printf("Run %s started (%d items)\n", run.ID, len(run.Items))

	// Execution continues in the background; poll until terminal.
	runs := schedule.NewRunStore(database)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.PublishTimeout()*time.Duration(len(run.Items)+1))
	defer cancel()

	final, err := waitForRun(ctx, runs, run.ID)
	if err != nil {
		return err
	}

	fmt.Printf("\nRun %s: %s\n", final.ID, final.Status)
	for _, res := range final.Results {
		switch res.Status {
		case schedule.ItemStatusFailed:
			fmt.Printf("  FAILED   %s (%s: %s)\n", res.Item, res.ErrorKind, res.Message)
		case schedule.ItemStatusAccepted:
			fmt.Printf("  ACCEPTED %s (HTTP %d, %s)\n", res.Item, res.HTTPStatus, res.Region)
		default:
			fmt.Printf("  QUEUED   %s\n", res.Item)
		}
	}
	if final.Message != "" {
		fmt.Printf("  Message: %s\n", final.Message)
	}
	return nil
}

// waitForRun polls the run until it reaches a terminal state.
func waitForRun(ctx context.Context, runs *schedule.RunStore, runID string) (*schedule.Run, error) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for run %s", runID)
		case <-ticker.C:
			run, err := runs.GetRun(runID)
			if err != nil {
				return nil, fmt.Errorf("failed to get run: %w", err)
			}
			if run.Status.Terminal() {
				return run, nil
			}
		}
	}
}

func runJobsSetEnabled(jobID string, enabled bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err := openDatabase(cfg, "")
	if err != nil {
		return err
	}
	defer database.Close()

	store := schedule.NewJobStore(database)
	job, err := store.UpdateJob(jobID, schedule.JobUpdate{
		ScheduleEnabled: util.Ptr(enabled),
	})
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	if job.ScheduleEnabled {
		fmt.Printf("Job %s schedule enabled (%s %s)\n", job.ID, job.CronExpr, job.Timezone)
	} else {
		fmt.Printf("Job %s schedule disabled\n", job.ID)
	}
	return nil
}

func runJobsRm(jobID string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err := openDatabase(cfg, "")
	if err != nil {
		return err
	}
	defer database.Close()

	store := schedule.NewJobStore(database)
	if err := store.DeleteJob(jobID); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	fmt.Printf("Job %s deleted\n", jobID)
	return nil
}

// truncate truncates a string to maxLen characters
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
