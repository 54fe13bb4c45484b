// Package config loads the fleetcore YAML configuration file and
// validates it into the per-component config structs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skymesh/fleetcore/archive"
	"github.com/skymesh/fleetcore/ingest"
	"github.com/skymesh/fleetcore/monitor"
)

// GateConfig holds the websocket gate configuration.
type GateConfig struct {
	ListenAddr        string        `yaml:"listen_addr"`
	MetricsAddr       string        `yaml:"metrics_addr"` // optional separate metrics listener
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	LivenessTimeout   time.Duration `yaml:"liveness_timeout"`
}

// SafetyConfig holds the alerting policy and cache windows.
type SafetyConfig struct {
	Thresholds     monitor.Thresholds `yaml:"thresholds"`
	BatteryWindow  time.Duration      `yaml:"battery_window"`
	AlertRetention time.Duration      `yaml:"alert_retention"`
}

// ScoringConfig holds mission-assignment scoring settings.
type ScoringConfig struct {
	CruiseSpeed float64 `yaml:"cruise_speed"` // m/s; zero means the default
}

// Config is the root configuration structure.
type Config struct {
	Version int           `yaml:"version"`
	Gate    GateConfig    `yaml:"gate"`
	Safety  SafetyConfig  `yaml:"safety"`
	Scoring ScoringConfig `yaml:"scoring"`

	// Optional integrations; a nil section disables the component.
	Archive  *archive.Config        `yaml:"archive"`
	Ingest   *ingest.Config         `yaml:"ingest"`
	Firehose *ingest.FirehoseConfig `yaml:"firehose"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported config version: %d (expected 1)", c.Version)
	}

	if c.Gate.ListenAddr == "" {
		return fmt.Errorf("gate listen_addr is required")
	}
	if c.Gate.HeartbeatInterval < 0 || c.Gate.LivenessTimeout < 0 {
		return fmt.Errorf("gate heartbeat intervals must not be negative")
	}
	if c.Gate.HeartbeatInterval > 0 && c.Gate.LivenessTimeout > 0 &&
		c.Gate.LivenessTimeout <= c.Gate.HeartbeatInterval {
		return fmt.Errorf("gate liveness_timeout must be greater than heartbeat_interval")
	}

	if c.Safety.Thresholds == (monitor.Thresholds{}) {
		c.Safety.Thresholds = monitor.DefaultThresholds()
	}
	t := c.Safety.Thresholds
	if t.BatteryEmergency <= 0 || t.BatteryCritical <= t.BatteryEmergency ||
		t.BatteryWarning <= t.BatteryCritical || t.BatteryCaution <= t.BatteryWarning {
		return fmt.Errorf("battery thresholds must be positive and strictly ordered: emergency < critical < warning < caution")
	}
	if t.BatteryCaution > 100 {
		return fmt.Errorf("battery caution threshold %v exceeds 100%%", t.BatteryCaution)
	}
	if c.Safety.BatteryWindow < 0 || c.Safety.AlertRetention < 0 {
		return fmt.Errorf("safety cache windows must not be negative")
	}

	if c.Scoring.CruiseSpeed < 0 {
		return fmt.Errorf("scoring cruise_speed must not be negative")
	}

	if c.Archive != nil {
		if err := c.Archive.Validate(); err != nil {
			return fmt.Errorf("archive: %w", err)
		}
	}
	if c.Ingest != nil {
		if err := c.Ingest.Validate(); err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
	}
	if c.Firehose != nil {
		if err := c.Firehose.Validate(); err != nil {
			return fmt.Errorf("firehose: %w", err)
		}
	}

	return nil
}
