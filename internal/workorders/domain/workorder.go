package workorders

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	events "meter-insights/internal/events/domain"
)

// ErrWorkOrderSynthesisFailed indicates that a single order could not be built.
var ErrWorkOrderSynthesisFailed = errors.New("workorders: synthesis failed")

// ErrNotFound indicates a missing work order.
var ErrNotFound = errors.New("workorders: order not found")

// Type classifies urgency of a work order.
type Type string

const (
	TypeEmergency  Type = "emergency"
	TypeCorrective Type = "corrective"
)

// Status is the work order lifecycle state. Only open orders are produced here.
type Status string

const StatusOpen Status = "open"

// DurationClass is a coarse estimate of field time.
type DurationClass string

const (
	DurationShort  DurationClass = "short"
	DurationMedium DurationClass = "medium"
	DurationLong   DurationClass = "long"
)

// SourceKind tells which aggregate an order was derived from.
type SourceKind string

const (
	SourceEvent    SourceKind = "event"
	SourceIncident SourceKind = "incident"
)

// WorkOrder is a dispatchable task derived from an event or an incident.
type WorkOrder struct {
	ID            string          `json:"order_id"`
	SourceKind    SourceKind      `json:"source_kind"`
	SourceID      string          `json:"source_id"`
	SourceType    events.Type     `json:"source_type,omitempty"`
	FeederID      string          `json:"feeder_id"`
	Region        string          `json:"region"`
	MeterIDs      []string        `json:"meter_ids"`
	Type          Type            `json:"type"`
	Severity      events.Severity `json:"severity"`
	CrewCount     int             `json:"crew_count"`
	DurationClass DurationClass   `json:"duration_class"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description"`
	Status        Status          `json:"status"`
	Revision      int             `json:"revision"`
	IssuedAt      time.Time       `json:"issued_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Clone returns a deep copy.
func (w WorkOrder) Clone() WorkOrder {
	w.MeterIDs = append([]string(nil), w.MeterIDs...)
	return w
}

// TypeFor returns emergency for critical-sourced orders.
func TypeFor(s events.Severity) Type {
	if s == events.SeverityCritical {
		return TypeEmergency
	}
	return TypeCorrective
}

// DurationForMeters maps an affected meter count to a duration class.
func DurationForMeters(affected int) DurationClass {
	switch {
	case affected >= 5:
		return DurationLong
	case affected >= 2:
		return DurationMedium
	default:
		return DurationShort
	}
}

// DurationForEvent maps a single event severity to a duration class.
func DurationForEvent(s events.Severity) DurationClass {
	if s == events.SeverityCritical {
		return DurationMedium
	}
	return DurationShort
}

// CrewCount returns max(1, affected/capacity).
func CrewCount(affected, capacity int) int {
	if capacity <= 0 {
		return 1
	}
	n := affected / capacity
	if n < 1 {
		return 1
	}
	return n
}

// CostTable prices work by source severity.
type CostTable struct {
	Base     map[events.Severity]decimal.Decimal
	PerMeter decimal.Decimal
	Currency string
}

// DefaultCostTable returns the default BRL price list.
func DefaultCostTable() CostTable {
	return CostTable{
		Base: map[events.Severity]decimal.Decimal{
			events.SeverityCritical: decimal.RequireFromString("1500.00"),
			events.SeverityHigh:     decimal.RequireFromString("600.00"),
		},
		PerMeter: decimal.RequireFromString("120.00"),
		Currency: "BRL",
	}
}

// EventCost returns the base cost of a single-meter order.
func (c CostTable) EventCost(s events.Severity) (decimal.Decimal, error) {
	base, ok := c.Base[s]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no base cost for severity %s", ErrWorkOrderSynthesisFailed, s)
	}
	return base, nil
}

// IncidentCost returns base*crew + perMeter*affected.
func (c CostTable) IncidentCost(s events.Severity, crew, affected int) (decimal.Decimal, error) {
	base, err := c.EventCost(s)
	if err != nil {
		return decimal.Zero, err
	}
	return base.Mul(decimal.NewFromInt(int64(crew))).
		Add(c.PerMeter.Mul(decimal.NewFromInt(int64(affected)))), nil
}
