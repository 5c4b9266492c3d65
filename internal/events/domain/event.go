package events

import (
	"errors"
	"time"
)

// ErrUnknownType indicates an event type with no classification entry.
var ErrUnknownType = errors.New("events: unknown event type")

// Type identifies the rule that produced an event.
type Type string

const (
	TypeUndervoltage        Type = "undervoltage"
	TypeOvervoltage         Type = "overvoltage"
	TypeInterruption        Type = "interruption"
	TypeAbnormalConsumption Type = "abnormal_consumption"
	TypeLowPowerFactor      Type = "low_power_factor"
	TypeStatisticalAnomaly  Type = "statistical_anomaly"
)

// Types lists every event type in declared rule order.
var Types = []Type{
	TypeUndervoltage,
	TypeOvervoltage,
	TypeInterruption,
	TypeAbnormalConsumption,
	TypeLowPowerFactor,
	TypeStatisticalAnomaly,
}

// Valid reports whether the type is known.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Destination is the downstream audience of an event.
type Destination string

const (
	DestinationOperations Destination = "operations"
	DestinationCommercial Destination = "commercial"
	DestinationCustomer   Destination = "customer"
)

// Destinations lists every destination in queue order.
var Destinations = []Destination{
	DestinationOperations,
	DestinationCommercial,
	DestinationCustomer,
}

// Impact ranks how far an event reaches beyond the meter.
type Impact int

const (
	ImpactLow    Impact = 1
	ImpactMedium Impact = 2
	ImpactHigh   Impact = 3
)

// Event is a classified occurrence derived from one reading by one rule.
type Event struct {
	ID              string      `json:"event_id"`
	MeterID         string      `json:"meter_id"`
	Timestamp       time.Time   `json:"timestamp"`
	FeederID        string      `json:"feeder_id"`
	Region          string      `json:"region"`
	Type            Type        `json:"type"`
	Severity        Severity    `json:"severity"`
	MeasuredValue   float64     `json:"measured_value"`
	Threshold       float64     `json:"threshold"`
	Voltage         float64     `json:"voltage"`
	Description     string      `json:"description"`
	SuggestedAction string      `json:"suggested_action"`
	Destination     Destination `json:"destination"`
	Impact          Impact      `json:"impact"`
	Late            bool        `json:"late,omitempty"`
}
