package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"meter-insights/internal/analytics/domain/rolling"
	"meter-insights/internal/events/classifier"
	events "meter-insights/internal/events/domain"
	outageapp "meter-insights/internal/outage/application"
	outage "meter-insights/internal/outage/domain"
	woapp "meter-insights/internal/workorders/application"
	workorders "meter-insights/internal/workorders/domain"
)

// Config enumerates every pipeline and adapter option.
type Config struct {
	Thresholds      classifier.Thresholds `yaml:"thresholds"`
	WindowSize      int                   `yaml:"window_size"`
	OutageWindow    time.Duration         `yaml:"outage_window"`
	OutagePolicy    outage.Policy         `yaml:"outage_policy"`
	ClosedRetention int                   `yaml:"closed_retention"`
	SweepInterval   time.Duration         `yaml:"sweep_interval"`
	WorkOrders      WorkOrderConfig       `yaml:"work_orders"`
	FeederCapacity  float64               `yaml:"feeder_capacity_kw"`
	EventRetention  int                   `yaml:"event_retention"`
	// IDNamespace is inserted into generated ids so that restarts sharing
	// one database do not reuse ids. Empty keeps EVT-000001 style ids.
	IDNamespace string `yaml:"id_namespace"`

	HTTPAddr    string       `yaml:"http_addr"`
	DatabaseURL string       `yaml:"database_url"`
	NATS        NATSConfig   `yaml:"nats"`
	Notify      NotifyConfig `yaml:"notify"`
}

// WorkOrderConfig configures the work order synthesizer.
type WorkOrderConfig struct {
	MinSeverity  events.Severity `yaml:"min_severity"`
	CrewCapacity int             `yaml:"crew_capacity"`
	Cooldown     time.Duration   `yaml:"cooldown"`
	Costs        CostConfig      `yaml:"costs"`
}

// CostConfig prices work orders. A zero base cost means no entry.
type CostConfig struct {
	Critical decimal.Decimal `yaml:"critical"`
	High     decimal.Decimal `yaml:"high"`
	Medium   decimal.Decimal `yaml:"medium"`
	Low      decimal.Decimal `yaml:"low"`
	PerMeter decimal.Decimal `yaml:"per_meter"`
	Currency string          `yaml:"currency"`
}

// NATSConfig configures the downstream stream publisher.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// NotifyConfig configures webhook notifications.
type NotifyConfig struct {
	WebhookURL  string          `yaml:"webhook_url"`
	MinSeverity events.Severity `yaml:"min_severity"`
	Cooldown    time.Duration   `yaml:"cooldown"`
	Dedupe      time.Duration   `yaml:"dedupe"`
	Escalation  time.Duration   `yaml:"escalation"`
	// RedisURL shares cooldown and dedupe history between replicas when set.
	RedisURL string `yaml:"redis_url"`
}

// Default returns the documented defaults.
func Default() Config {
	table := workorders.DefaultCostTable()
	return Config{
		Thresholds:      classifier.DefaultThresholds(),
		WindowSize:      rolling.DefaultWindowSize,
		OutageWindow:    outageapp.DefaultWindow,
		OutagePolicy:    outage.DefaultPolicy(),
		ClosedRetention: 1000,
		SweepInterval:   30 * time.Second,
		WorkOrders: WorkOrderConfig{
			MinSeverity:  events.SeverityHigh,
			CrewCapacity: woapp.DefaultCrewCapacity,
			Cooldown:     woapp.DefaultCooldown,
			Costs: CostConfig{
				Critical: table.Base[events.SeverityCritical],
				High:     table.Base[events.SeverityHigh],
				PerMeter: table.PerMeter,
				Currency: table.Currency,
			},
		},
		FeederCapacity: 500,
		EventRetention: 10000,
		HTTPAddr:       ":8080",
		NATS:           NATSConfig{SubjectPrefix: "meter"},
		Notify: NotifyConfig{
			MinSeverity: events.SeverityCritical,
			Cooldown:    10 * time.Minute,
			Dedupe:      time.Hour,
		},
	}
}

// Load builds the configuration from defaults, environment and the optional
// YAML file named by METER_CONFIG, in that order.
func Load() (Config, error) {
	cfg := Default()
	applyEnv(&cfg)

	if path := os.Getenv("METER_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, cfg.Validate()
}

// Validate rejects inconsistent settings.
func (c Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if c.WindowSize < 2 {
		return errors.New("config: window_size must be at least 2")
	}
	if c.OutageWindow <= 0 {
		return errors.New("config: outage_window must be positive")
	}
	if c.OutagePolicy.FeederLevelMeters < 2 {
		return errors.New("config: outage_policy.feeder_level_meters must be at least 2")
	}
	if c.SweepInterval <= 0 {
		return errors.New("config: sweep_interval must be positive")
	}
	if !c.WorkOrders.MinSeverity.Valid() {
		return errors.New("config: work_orders.min_severity is invalid")
	}
	if c.WorkOrders.CrewCapacity <= 0 {
		return errors.New("config: work_orders.crew_capacity must be positive")
	}
	if c.WorkOrders.Cooldown < 0 {
		return errors.New("config: work_orders.cooldown must not be negative")
	}
	if c.WorkOrders.Costs.Currency == "" {
		return errors.New("config: work_orders.costs.currency is required")
	}
	if c.FeederCapacity <= 0 {
		return errors.New("config: feeder_capacity_kw must be positive")
	}
	return nil
}

// CostTable converts the cost settings into the synthesizer's price list.
func (c CostConfig) CostTable() workorders.CostTable {
	table := workorders.CostTable{
		Base:     make(map[events.Severity]decimal.Decimal),
		PerMeter: c.PerMeter,
		Currency: c.Currency,
	}
	for sev, cost := range map[events.Severity]decimal.Decimal{
		events.SeverityCritical: c.Critical,
		events.SeverityHigh:     c.High,
		events.SeverityMedium:   c.Medium,
		events.SeverityLow:      c.Low,
	} {
		if !cost.IsZero() {
			table.Base[sev] = cost
		}
	}
	return table
}
