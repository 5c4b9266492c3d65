package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	events "meter-insights/internal/events/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.WindowSize != 8 || cfg.OutageWindow != 15*time.Minute || cfg.WorkOrders.CrewCapacity != 4 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Thresholds.PrecariousVoltage != 110 || cfg.Thresholds.MinPowerFactor != 0.92 {
		t.Fatalf("unexpected thresholds %+v", cfg.Thresholds)
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meter.yaml")
	content := `
window_size: 12
outage_window: 10m
thresholds:
  precarious_voltage: 105
  low_voltage: 117
  high_voltage: 133
  near_zero_power_kw: 0.05
  high_consumption_kw: 12
  min_power_factor: 0.92
  z_score_threshold: 2.5
work_orders:
  min_severity: critical
  crew_capacity: 3
  cooldown: 30m
  costs:
    critical: "2000.50"
    high: "700"
    per_meter: "100"
    currency: BRL
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("METER_CONFIG", path)
	t.Setenv("HTTP_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WindowSize != 12 || cfg.OutageWindow != 10*time.Minute {
		t.Fatalf("unexpected window settings %+v", cfg)
	}
	if cfg.Thresholds.PrecariousVoltage != 105 || cfg.Thresholds.ZScoreThreshold != 2.5 {
		t.Fatalf("unexpected thresholds %+v", cfg.Thresholds)
	}
	if cfg.WorkOrders.MinSeverity != events.SeverityCritical || cfg.WorkOrders.Cooldown != 30*time.Minute {
		t.Fatalf("unexpected work order config %+v", cfg.WorkOrders)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("expected env http addr, got %q", cfg.HTTPAddr)
	}
	table := cfg.WorkOrders.Costs.CostTable()
	if !table.Base[events.SeverityCritical].Equal(decimal.RequireFromString("2000.50")) {
		t.Fatalf("unexpected critical cost %s", table.Base[events.SeverityCritical])
	}
	if _, ok := table.Base[events.SeverityMedium]; ok {
		t.Fatalf("expected no medium cost entry")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("METER_CONFIG", "")
	t.Setenv("OUTAGE_WINDOW", "20m")
	t.Setenv("CREW_CAPACITY", "6")
	t.Setenv("PG_DSN", "postgres://localhost/meters")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OutageWindow != 20*time.Minute || cfg.WorkOrders.CrewCapacity != 6 {
		t.Fatalf("unexpected env overrides %+v", cfg)
	}
	if cfg.DatabaseURL != "postgres://localhost/meters" {
		t.Fatalf("expected PG_DSN fallback, got %q", cfg.DatabaseURL)
	}
	if cfg.Notify.RedisURL != "redis://localhost:6379/1" {
		t.Fatalf("expected redis url override, got %q", cfg.Notify.RedisURL)
	}
}

func TestValidateRejectsInconsistentThresholds(t *testing.T) {
	cfg := Default()
	cfg.Thresholds.PrecariousVoltage = 120
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for precarious above low voltage")
	}
	cfg = Default()
	cfg.WindowSize = 1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for window size")
	}
}
