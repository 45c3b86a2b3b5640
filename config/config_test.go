package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"reviewflow/sla"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sweeper.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WarningThresholdPercent != 80 {
		t.Errorf("warning percent = %v, want 80", cfg.WarningThresholdPercent)
	}
	if time.Duration(cfg.SweepInterval) != 5*time.Minute {
		t.Errorf("sweep interval = %v, want 5m", time.Duration(cfg.SweepInterval))
	}

	policy := cfg.Policy()
	if policy.Thresholds[sla.PriorityCritical] != 24*time.Hour {
		t.Errorf("critical threshold = %v, want 24h", policy.Thresholds[sla.PriorityCritical])
	}
	if !policy.EscalationRaisesPriority {
		t.Errorf("expected priority raising by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
database_url: postgres://localhost/reviewflow
sla_thresholds:
  critical: 4
  normal: 48
warning_threshold_percent: 75
sweep_interval: 90s
sweep_workers: 8
max_escalation_level: 2
escalation_raises_priority: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if time.Duration(cfg.SweepInterval) != 90*time.Second {
		t.Errorf("sweep interval = %v, want 90s", time.Duration(cfg.SweepInterval))
	}
	if cfg.SweepWorkers != 8 {
		t.Errorf("workers = %d, want 8", cfg.SweepWorkers)
	}

	policy := cfg.Policy()
	if policy.Thresholds[sla.PriorityCritical] != 4*time.Hour {
		t.Errorf("critical threshold = %v, want 4h", policy.Thresholds[sla.PriorityCritical])
	}
	// Tiers absent from the file keep their defaults.
	if policy.Thresholds[sla.PriorityLow] != 168*time.Hour {
		t.Errorf("low threshold = %v, want default 168h", policy.Thresholds[sla.PriorityLow])
	}
	if policy.WarningPercent != 75 {
		t.Errorf("warning percent = %v, want 75", policy.WarningPercent)
	}
	if policy.MaxEscalationLevel != 2 {
		t.Errorf("max level = %d, want 2", policy.MaxEscalationLevel)
	}
	if policy.EscalationRaisesPriority {
		t.Errorf("expected priority raising disabled")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"warning percent too high", "warning_threshold_percent: 100\n"},
		{"unknown priority", "sla_thresholds:\n  severe: 10\n"},
		{"nonpositive threshold", "sla_thresholds:\n  high: 0\n"},
		{"bad duration", "sweep_interval: soon\n"},
	}
	for _, tc := range cases {
		if _, err := Load(writeConfig(t, tc.body)); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestLoadEnvOverridesDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/override")
	path := writeConfig(t, "database_url: postgres://file/value\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://env/override" {
		t.Errorf("database url = %q, want env override", cfg.DatabaseURL)
	}
}
