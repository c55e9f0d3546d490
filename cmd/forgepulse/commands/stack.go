package commands

import (
	"database/sql"

	"github.com/forgepulse/forgepulse/aps"
	"github.com/forgepulse/forgepulse/config"
	"github.com/forgepulse/forgepulse/logger"
	"github.com/forgepulse/forgepulse/pulse/schedule"
)

// buildScheduler wires the full execution stack from config: APS gateway,
// token provider, engine, and scheduler.
func buildScheduler(cfg *config.Config, database *sql.DB) (*schedule.Scheduler, error) {
	gateway := aps.NewClient(aps.Options{
		BaseURLUS:            cfg.APS.BaseURLUS,
		BaseURLEMEA:          cfg.APS.BaseURLEMEA,
		Timeout:              cfg.PublishTimeout(),
		MaxRetries:           cfg.Publish.MaxRetries,
		RetryBaseDelay:       cfg.RetryBaseDelay(),
		MaxRequestsPerMinute: cfg.Publish.MaxRequestsPerMinute,
		Command:              aps.Command(cfg.Publish.Command),
		Logger:               logger.Logger,
	})

	// In dry-run mode no APS calls are made, so no credentials are needed.
	var tokens aps.TokenProvider
	if cfg.Publish.EnableReal {
		tokens = aps.NewClientCredentialsProvider(cfg.APS.ClientID, cfg.APS.ClientSecret, nil)
	} else {
		tokens = aps.StaticTokenProvider("dry-run")
	}

	runs := schedule.NewRunStore(database)
	jobs := schedule.NewJobStore(database)

	engine := schedule.NewEngine(runs, gateway, tokens, schedule.EngineConfig{
		DryRun:      !cfg.Publish.EnableReal,
		DryRunDelay: cfg.DryRunDelay(),
	}, logger.Logger)

	scheduler := schedule.NewScheduler(jobs, runs, engine, schedule.SchedulerConfig{
		HistoryLimit: cfg.Runs.HistoryLimit,
		Heartbeat:    cfg.Heartbeat(),
	}, logger.Logger)

	return scheduler, nil
}
