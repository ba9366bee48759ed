// Package config provides configuration loading for the monitor
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MonitorConfig is the structure of the monitor.yaml file.
type MonitorConfig struct {
	ExecutionAPIURL string         `yaml:"execution_api_url"`
	PushURL         string         `yaml:"push_url"`
	PollInterval    time.Duration  `yaml:"poll_interval"`
	ReconnectDelay  time.Duration  `yaml:"reconnect_delay"`
	MaxReconnects   int            `yaml:"max_reconnects"`
	LogCapacity     int            `yaml:"log_capacity"`
	LogLevel        string         `yaml:"log_level"`
	Snapshots       SnapshotConfig `yaml:"snapshots"`
}

// SnapshotConfig configures the optional Redis snapshot store.
type SnapshotConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// DefaultMonitorConfig returns the configuration used when no file exists.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		ExecutionAPIURL: "http://localhost:8080",
		PushURL:         "ws://localhost:8080/updates",
		PollInterval:    2 * time.Second,
		ReconnectDelay:  1 * time.Second,
		MaxReconnects:   5,
		LogCapacity:     5000,
		LogLevel:        "info",
	}
}

// LoadMonitorConfig loads monitor configuration from a YAML file. Fields left
// out of the file keep their defaults.
func LoadMonitorConfig(filepath string) (MonitorConfig, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return MonitorConfig{}, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	config := DefaultMonitorConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return MonitorConfig{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := ValidateMonitorConfig(config); err != nil {
		return MonitorConfig{}, err
	}

	return config, nil
}

// LoadMonitorConfigOrDefault attempts to load monitor config from file,
// falling back to the default configuration if the file doesn't exist.
func LoadMonitorConfigOrDefault(filepath string) MonitorConfig {
	config, err := LoadMonitorConfig(filepath)
	if err != nil {
		return DefaultMonitorConfig()
	}

	return config
}

// ValidateMonitorConfig validates the monitor configuration.
func ValidateMonitorConfig(config MonitorConfig) error {
	if config.ExecutionAPIURL == "" {
		return fmt.Errorf("execution_api_url is required")
	}

	if config.PushURL == "" {
		return fmt.Errorf("push_url is required")
	}

	if config.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", config.PollInterval)
	}

	if config.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect_delay must be positive, got %s", config.ReconnectDelay)
	}

	if config.MaxReconnects <= 0 {
		return fmt.Errorf("max_reconnects must be positive, got %d", config.MaxReconnects)
	}

	if config.LogCapacity <= 0 {
		return fmt.Errorf("log_capacity must be positive, got %d", config.LogCapacity)
	}

	switch config.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level '%s'", config.LogLevel)
	}

	if config.Snapshots.Enabled {
		if config.Snapshots.Addr == "" {
			return fmt.Errorf("snapshots.addr is required when snapshots are enabled")
		}

		if config.Snapshots.TTL < 0 {
			return fmt.Errorf("snapshots.ttl must not be negative, got %s", config.Snapshots.TTL)
		}
	}

	return nil
}
