package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forgepulse/forgepulse/config"
)

// ServeCmd starts the forgepulse scheduler daemon.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the forgepulse scheduler daemon",
	Long: `Start the scheduler daemon in foreground mode.

The daemon will:
- Recover runs interrupted by a prior crash or restart
- Re-establish cron tasks for all enabled jobs
- Execute publish runs as their schedules fire
- Run until interrupted (Ctrl+C)

With publish.enable_real=false (the default) the daemon runs in dry-run
mode: runs execute through the full lifecycle but no publish commands are
sent to Autodesk Platform Services.

Example:
  forgepulse serve                  # Start with configured database
  forgepulse serve --db test.db     # Start against a specific database`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db")
		return runServe(dbPath)
	},
}

func init() {
	ServeCmd.Flags().String("db", "", "Database path (defaults to configured path)")
}

func runServe(dbPath string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err := openDatabase(cfg, dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	stack, err := buildScheduler(cfg, database)
	if err != nil {
		return err
	}

	if err := stack.Init(); err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	mode := "dry-run"
	if cfg.Publish.EnableReal {
		mode = "real"
	}
	fmt.Printf("forgepulse daemon started\n")
	fmt.Printf("  Database: %s\n", cfg.GetDatabasePath())
	fmt.Printf("  Publish mode: %s\n", mode)
	fmt.Printf("  Heartbeat: %v\n", cfg.Heartbeat())
	fmt.Printf("\nPress Ctrl+C to stop\n\n")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Printf("\nShutting down...\n")
	stack.Stop()
	fmt.Printf("forgepulse daemon stopped\n")
	return nil
}
