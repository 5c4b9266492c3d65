package routing

import (
	"time"

	"github.com/shopspring/decimal"

	events "meter-insights/internal/events/domain"
	outage "meter-insights/internal/outage/domain"
	workorders "meter-insights/internal/workorders/domain"
)

// Summary aggregates event counters for dashboards. It is always recomputed
// from the event set.
type Summary struct {
	Total         int                        `json:"total"`
	Critical      int                        `json:"critical"`
	Meters        int                        `json:"meters"`
	BySeverity    map[events.Severity]int    `json:"by_severity"`
	ByType        map[events.Type]int        `json:"by_type"`
	ByDestination map[events.Destination]int `json:"by_destination"`
}

// Summarize derives counters from list.
func Summarize(list []events.Event) Summary {
	s := Summary{
		BySeverity:    make(map[events.Severity]int),
		ByType:        make(map[events.Type]int),
		ByDestination: make(map[events.Destination]int),
	}
	meters := make(map[string]struct{})
	for _, evt := range list {
		s.Total++
		if evt.Severity == events.SeverityCritical {
			s.Critical++
		}
		s.BySeverity[evt.Severity]++
		s.ByType[evt.Type]++
		s.ByDestination[evt.Destination]++
		meters[evt.MeterID] = struct{}{}
	}
	s.Meters = len(meters)
	return s
}

// OrderSummary aggregates work order counters and estimated cost.
type OrderSummary struct {
	Total          int                     `json:"total"`
	ByType         map[workorders.Type]int `json:"by_type"`
	Crews          int                     `json:"crews"`
	TotalCost      decimal.Decimal         `json:"total_cost"`
	Currency       string                  `json:"currency"`
	AffectedMeters int                     `json:"affected_meters"`
}

// SummarizeOrders derives counters from orders.
func SummarizeOrders(orders []workorders.WorkOrder) OrderSummary {
	s := OrderSummary{ByType: make(map[workorders.Type]int), TotalCost: decimal.Zero}
	meters := make(map[string]struct{})
	for _, order := range orders {
		s.Total++
		s.ByType[order.Type]++
		s.Crews += order.CrewCount
		s.TotalCost = s.TotalCost.Add(order.EstimatedCost)
		if s.Currency == "" {
			s.Currency = order.Currency
		}
		for _, meter := range order.MeterIDs {
			meters[meter] = struct{}{}
		}
	}
	s.AffectedMeters = len(meters)
	return s
}

// Filter selects events and incidents for a view. Zero fields match everything.
type Filter struct {
	MinSeverity events.Severity
	FeederIDs   []string
	MeterID     string
	Destination events.Destination
	Type        events.Type
	Since       time.Time
	Until       time.Time
}

// MatchIncident reports whether inc passes the filter. Incidents rank by
// priority, belong to the operations queue, aggregate interruption events and
// are placed in time by their window start.
func (f Filter) MatchIncident(inc outage.Incident) bool {
	if f.MinSeverity != 0 && !inc.Priority.AtLeast(f.MinSeverity) {
		return false
	}
	if len(f.FeederIDs) > 0 && !containsString(f.FeederIDs, inc.FeederID) {
		return false
	}
	if f.MeterID != "" && !inc.HasMeter(f.MeterID) {
		return false
	}
	if f.Destination != "" && f.Destination != events.DestinationOperations {
		return false
	}
	if f.Type != "" && f.Type != events.TypeInterruption {
		return false
	}
	if !f.Since.IsZero() && inc.WindowStart.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !inc.WindowStart.Before(f.Until) {
		return false
	}
	return true
}

// ApplyIncidents returns the incidents matching f in their original order.
func (f Filter) ApplyIncidents(list []outage.Incident) []outage.Incident {
	var out []outage.Incident
	for _, inc := range list {
		if f.MatchIncident(inc) {
			out = append(out, inc)
		}
	}
	return out
}

// Match reports whether evt passes the filter.
func (f Filter) Match(evt events.Event) bool {
	if f.MinSeverity != 0 && !evt.Severity.AtLeast(f.MinSeverity) {
		return false
	}
	if len(f.FeederIDs) > 0 && !containsString(f.FeederIDs, evt.FeederID) {
		return false
	}
	if f.MeterID != "" && evt.MeterID != f.MeterID {
		return false
	}
	if f.Destination != "" && evt.Destination != f.Destination {
		return false
	}
	if f.Type != "" && evt.Type != f.Type {
		return false
	}
	if !f.Since.IsZero() && evt.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !evt.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

// Apply returns the events matching f in their original order.
func (f Filter) Apply(list []events.Event) []events.Event {
	var out []events.Event
	for _, evt := range list {
		if f.Match(evt) {
			out = append(out, evt)
		}
	}
	return out
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
