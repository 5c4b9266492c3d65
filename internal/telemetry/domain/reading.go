package telemetry

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidReading indicates a reading rejected at the ingestion boundary.
var ErrInvalidReading = errors.New("telemetry: invalid reading")

// ErrOutOfOrderReading indicates a reading older than the meter's last seen timestamp.
var ErrOutOfOrderReading = errors.New("telemetry: out-of-order reading")

// Reading is one timestamped sample from one meter.
type Reading struct {
	MeterID         string    `json:"meter_id"`
	Timestamp       time.Time `json:"timestamp"`
	FeederID        string    `json:"feeder_id"`
	Region          string    `json:"region"`
	Voltage         float64   `json:"voltage"`
	ActivePower     float64   `json:"active_power"`
	PowerFactor     float64   `json:"power_factor"`
	Energy          float64   `json:"energy"`
	IntervalMinutes int       `json:"interval_minutes,omitempty"`
}

// Validate checks required fields and numeric ranges.
func (r Reading) Validate() error {
	if r.MeterID == "" {
		return fmt.Errorf("%w: empty meter id", ErrInvalidReading)
	}
	if r.FeederID == "" {
		return fmt.Errorf("%w: meter=%s empty feeder id", ErrInvalidReading, r.MeterID)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("%w: meter=%s empty timestamp", ErrInvalidReading, r.MeterID)
	}
	for _, field := range []struct {
		name  string
		value float64
	}{
		{"voltage", r.Voltage},
		{"active_power", r.ActivePower},
		{"power_factor", r.PowerFactor},
		{"energy", r.Energy},
	} {
		if math.IsNaN(field.value) || math.IsInf(field.value, 0) {
			return fmt.Errorf("%w: meter=%s non-finite %s", ErrInvalidReading, r.MeterID, field.name)
		}
	}
	if r.Voltage < 0 {
		return fmt.Errorf("%w: meter=%s negative voltage", ErrInvalidReading, r.MeterID)
	}
	if r.PowerFactor < 0 || r.PowerFactor > 1 {
		return fmt.Errorf("%w: meter=%s power factor out of range", ErrInvalidReading, r.MeterID)
	}
	if r.IntervalMinutes < 0 {
		return fmt.Errorf("%w: meter=%s negative interval", ErrInvalidReading, r.MeterID)
	}
	return nil
}

// Normalize returns the reading in UTC with energy derived from power and interval when absent.
func (r Reading) Normalize() Reading {
	r.Timestamp = r.Timestamp.UTC()
	if r.Energy == 0 && r.IntervalMinutes > 0 {
		r.Energy = r.ActivePower * float64(r.IntervalMinutes) / 60
	}
	return r
}
