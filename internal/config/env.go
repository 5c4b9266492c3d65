package config

import (
	"os"
	"strconv"
	"time"
)

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.NATS.URL = getenvDefault("NATS_URL", cfg.NATS.URL)
	cfg.NATS.SubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)
	cfg.Notify.WebhookURL = getenvDefault("ALERT_WEBHOOK_URL", cfg.Notify.WebhookURL)
	cfg.Notify.RedisURL = getenvDefault("REDIS_URL", cfg.Notify.RedisURL)
	cfg.Notify.Escalation = getenvDuration("ALERT_ESCALATION_AFTER", cfg.Notify.Escalation)

	cfg.OutageWindow = getenvDuration("OUTAGE_WINDOW", cfg.OutageWindow)
	cfg.SweepInterval = getenvDuration("SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.WindowSize = getenvIntDefault("ROLLING_WINDOW_SIZE", cfg.WindowSize)
	cfg.WorkOrders.CrewCapacity = getenvIntDefault("CREW_CAPACITY", cfg.WorkOrders.CrewCapacity)
	cfg.WorkOrders.Cooldown = getenvDuration("WORK_ORDER_COOLDOWN", cfg.WorkOrders.Cooldown)
	cfg.IDNamespace = getenvDefault("ID_NAMESPACE", cfg.IDNamespace)
	cfg.FeederCapacity = getenvFloatDefault("FEEDER_CAPACITY_KW", cfg.FeederCapacity)
	cfg.Thresholds.ZScoreThreshold = getenvFloatDefault("ZSCORE_THRESHOLD", cfg.Thresholds.ZScoreThreshold)
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
