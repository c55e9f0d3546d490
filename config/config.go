// Package config loads the forgepulse configuration.
package config

import "time"

// Config represents the forgepulse configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	APS       APSConfig       `mapstructure:"aps"`
	Publish   PublishConfig   `mapstructure:"publish"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Runs      RunsConfig      `mapstructure:"runs"`
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// APSConfig configures access to Autodesk Platform Services.
//
// The same project and its items may live in either of two regional API
// deployments; each region has its own base URL. The base URLs are
// configurable so tests can point the gateway at local servers.
type APSConfig struct {
	BaseURLUS    string `mapstructure:"base_url_us"`
	BaseURLEMEA  string `mapstructure:"base_url_emea"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// PublishConfig configures publish command dispatch.
type PublishConfig struct {
	// EnableReal gates real publish commands. When false the engine runs in
	// dry-run mode and simulates each item with a fixed delay.
	EnableReal bool `mapstructure:"enable_real"`

	// Command selects which publish command variant is sent:
	// "publish" or "publish_without_links".
	Command string `mapstructure:"command"`

	TimeoutSeconds       int `mapstructure:"timeout_seconds"`
	MaxRetries           int `mapstructure:"max_retries"`
	RetryBaseDelayMs     int `mapstructure:"retry_base_delay_ms"`
	MaxRequestsPerMinute int `mapstructure:"max_requests_per_minute"`
	DryRunDelayMs        int `mapstructure:"dry_run_delay_ms"`
}

// SchedulerConfig configures the scheduler daemon.
type SchedulerConfig struct {
	HeartbeatSeconds int `mapstructure:"heartbeat_seconds"` // 0 disables the heartbeat log line
}

// RunsConfig configures run history retention.
type RunsConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
	HistoryLimit  int `mapstructure:"history_limit"` // max entries kept in a job's history list
}

// GetDatabasePath returns the configured database path.
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "forgepulse.db"
	}
	return c.Database.Path
}

// PublishTimeout returns the per-call timeout for APS requests.
func (c *Config) PublishTimeout() time.Duration {
	if c.Publish.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Publish.TimeoutSeconds) * time.Second
}

// RetryBaseDelay returns the initial backoff delay for retryable failures.
func (c *Config) RetryBaseDelay() time.Duration {
	if c.Publish.RetryBaseDelayMs <= 0 {
		return time.Second
	}
	return time.Duration(c.Publish.RetryBaseDelayMs) * time.Millisecond
}

// DryRunDelay returns the simulated per-item delay in dry-run mode.
func (c *Config) DryRunDelay() time.Duration {
	if c.Publish.DryRunDelayMs < 0 {
		return 0
	}
	return time.Duration(c.Publish.DryRunDelayMs) * time.Millisecond
}

// Heartbeat returns the scheduler heartbeat interval, 0 if disabled.
func (c *Config) Heartbeat() time.Duration {
	if c.Scheduler.HeartbeatSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Scheduler.HeartbeatSeconds) * time.Second
}
