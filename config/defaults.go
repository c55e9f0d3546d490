package config

import "github.com/spf13/viper"

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "forgepulse.db")

	// APS regional endpoints
	v.SetDefault("aps.base_url_us", "https://developer.api.autodesk.com")
	v.SetDefault("aps.base_url_emea", "https://developer.api.autodesk.com/regions/eu")

	// Publish dispatch defaults. Real publishing is off by default so a fresh
	// install never issues commands against live projects.
	v.SetDefault("publish.enable_real", false)
	v.SetDefault("publish.command", "publish")
	v.SetDefault("publish.timeout_seconds", 60)
	v.SetDefault("publish.max_retries", 3)
	v.SetDefault("publish.retry_base_delay_ms", 1000)
	v.SetDefault("publish.max_requests_per_minute", 30)
	v.SetDefault("publish.dry_run_delay_ms", 500)

	// Scheduler defaults
	v.SetDefault("scheduler.heartbeat_seconds", 60)

	// Run history retention
	v.SetDefault("runs.retention_days", 90)
	v.SetDefault("runs.history_limit", 50)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to
// environment variables so credentials never need to live in config files.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("aps.client_id", "FORGEPULSE_APS_CLIENT_ID")
	v.BindEnv("aps.client_secret", "FORGEPULSE_APS_CLIENT_SECRET")
	v.BindEnv("database.path", "FORGEPULSE_DATABASE_PATH")
}
