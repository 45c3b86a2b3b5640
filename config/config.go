package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"reviewflow/sla"
)

// Duration wraps time.Duration so YAML values like "5m" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the file-driven configuration for the sweeper. Every field has
// a default so an empty or missing file yields a working setup; the SLA
// threshold table in particular is deployment policy, not code.
type Config struct {
	DatabaseURL             string         `yaml:"database_url"`
	SLAThresholdHours       map[string]int `yaml:"sla_thresholds"`
	WarningThresholdPercent float64        `yaml:"warning_threshold_percent"`
	SweepInterval           Duration       `yaml:"sweep_interval"`
	SweepWorkers            int            `yaml:"sweep_workers"`
	MaxEscalationLevel      int            `yaml:"max_escalation_level"`
	EscalationRaises        *bool          `yaml:"escalation_raises_priority"`
	NotifyPreviousReviewer  *bool          `yaml:"notify_previous_reviewer"`
}

// Load reads the YAML file at path, layering it over defaults. A missing
// file is not an error; DATABASE_URL always overrides the file.
func Load(path string) (Config, error) {
	cfg := Config{
		WarningThresholdPercent: 80,
		SweepInterval:           Duration(5 * time.Minute),
		SweepWorkers:            4,
		MaxEscalationLevel:      3,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to defaults
		default:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.DatabaseURL = dsn
	}

	if cfg.WarningThresholdPercent <= 0 || cfg.WarningThresholdPercent >= 100 {
		return Config{}, fmt.Errorf("config: warning_threshold_percent must be in (0, 100), got %v", cfg.WarningThresholdPercent)
	}
	if cfg.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("config: sweep_interval must be positive")
	}
	for priority, hours := range cfg.SLAThresholdHours {
		if !sla.ValidPriority(priority) {
			return Config{}, fmt.Errorf("config: unknown priority %q in sla_thresholds", priority)
		}
		if hours <= 0 {
			return Config{}, fmt.Errorf("config: sla threshold for %q must be positive", priority)
		}
	}

	return cfg, nil
}

// Policy converts the config into the engine's SLA policy, filling any
// tiers the file leaves out from the defaults.
func (c Config) Policy() sla.Policy {
	policy := sla.DefaultPolicy()
	policy.WarningPercent = c.WarningThresholdPercent
	policy.MaxEscalationLevel = c.MaxEscalationLevel
	for priority, hours := range c.SLAThresholdHours {
		policy.Thresholds[priority] = time.Duration(hours) * time.Hour
	}
	if c.EscalationRaises != nil {
		policy.EscalationRaisesPriority = *c.EscalationRaises
	}
	if c.NotifyPreviousReviewer != nil {
		policy.NotifyPreviousReviewer = *c.NotifyPreviousReviewer
	}
	return policy
}
