package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgepulse/forgepulse/config"
)

// DbCmd groups database operations.
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage database operations",
	Long: `Manage database operations.

Commands:
  forgepulse db migrate   # Apply pending schema migrations
  forgepulse db stats     # Show table counts`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// DbMigrateCmd applies pending migrations.
var DbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// openDatabase migrates as part of opening.
		database, err := openDatabase(cfg, "")
		if err != nil {
			return err
		}
		defer database.Close()

		fmt.Printf("Database %s migrated\n", cfg.GetDatabasePath())
		return nil
	},
}

// DbStatsCmd shows table counts.
var DbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		database, err := openDatabase(cfg, "")
		if err != nil {
			return err
		}
		defer database.Close()

		var jobs, runs, running int
		if err := database.QueryRow(`SELECT COUNT(*) FROM publish_jobs`).Scan(&jobs); err != nil {
			return fmt.Errorf("failed to count jobs: %w", err)
		}
		if err := database.QueryRow(`SELECT COUNT(*) FROM publish_runs`).Scan(&runs); err != nil {
			return fmt.Errorf("failed to count runs: %w", err)
		}
		if err := database.QueryRow(`SELECT COUNT(*) FROM publish_runs WHERE status = 'running'`).Scan(&running); err != nil {
			return fmt.Errorf("failed to count running runs: %w", err)
		}

		fmt.Printf("Database: %s\n", cfg.GetDatabasePath())
		fmt.Printf("  Jobs: %d\n", jobs)
		fmt.Printf("  Runs: %d (%d running)\n", runs, running)
		return nil
	},
}

func init() {
	DbCmd.AddCommand(DbMigrateCmd)
	DbCmd.AddCommand(DbStatsCmd)
}
