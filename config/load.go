package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/forgepulse/forgepulse/errors"
)

var globalConfig *Config
var viperInstance *viper.Viper

// Load reads the forgepulse configuration using Viper.
// Precedence: defaults < config file < environment variables.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	globalConfig = &config
	return globalConfig, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}

	return &config, nil
}

// Reset clears the cached configuration (useful for testing).
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// initViper initializes Viper with configuration sources and defaults.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("FORGEPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	BindSensitiveEnvVars(v)
	SetDefaults(v)

	// Optional config file: ./forgepulse.toml or ~/.config/forgepulse/config.toml
	if path := findConfigFile(); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		// Missing or unreadable file is not fatal; defaults and env apply
		_ = v.ReadInConfig()
	}

	viperInstance = v
	return v
}

// findConfigFile returns the first config file found, or empty string.
func findConfigFile() string {
	if path := os.Getenv("FORGEPULSE_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat("forgepulse.toml"); err == nil {
		return "forgepulse.toml"
	}
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "forgepulse", "config.toml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
