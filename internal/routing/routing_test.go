package routing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	events "meter-insights/internal/events/domain"
	outage "meter-insights/internal/outage/domain"
	workorders "meter-insights/internal/workorders/domain"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func evt(id string, typ events.Type, sev events.Severity, dest events.Destination, offset time.Duration) events.Event {
	return events.Event{
		ID:          id,
		MeterID:     "M" + id[len(id)-1:],
		FeederID:    "F1",
		Timestamp:   t0.Add(offset),
		Type:        typ,
		Severity:    sev,
		Destination: dest,
	}
}

func TestRouteOrdersQueues(t *testing.T) {
	list := []events.Event{
		evt("EVT-000001", events.TypeStatisticalAnomaly, events.SeverityMedium, events.DestinationOperations, 0),
		evt("EVT-000002", events.TypeUndervoltage, events.SeverityHigh, events.DestinationOperations, 2*time.Minute),
		evt("EVT-000003", events.TypeUndervoltage, events.SeverityCritical, events.DestinationOperations, 3*time.Minute),
		evt("EVT-000004", events.TypeAbnormalConsumption, events.SeverityMedium, events.DestinationCommercial, time.Minute),
		evt("EVT-000005", events.TypeLowPowerFactor, events.SeverityMedium, events.DestinationCustomer, time.Minute),
	}
	incidents := []outage.Incident{{
		ID:          "INC-000001",
		FeederID:    "F1",
		WindowStart: t0.Add(time.Minute),
		Priority:    events.SeverityCritical,
	}}

	q := Route(list, incidents)
	if q.Len() != 6 {
		t.Fatalf("expected 6 routed items, got %d", q.Len())
	}
	wantOps := []string{"INC-000001", "EVT-000003", "EVT-000002", "EVT-000001"}
	if len(q.Operations) != len(wantOps) {
		t.Fatalf("expected %d operations items, got %d", len(wantOps), len(q.Operations))
	}
	for i, id := range wantOps {
		if q.Operations[i].ID != id || q.Operations[i].Rank != i+1 {
			t.Fatalf("operations[%d] = %s rank %d, want %s", i, q.Operations[i].ID, q.Operations[i].Rank, id)
		}
	}
	if q.Operations[0].Kind != KindIncident || q.Operations[0].Incident == nil {
		t.Fatalf("expected incident item first")
	}
	if len(q.Commercial) != 1 || q.Commercial[0].ID != "EVT-000004" {
		t.Fatalf("unexpected commercial queue %+v", q.Commercial)
	}
	if len(q.Queue(events.DestinationCustomer)) != 1 {
		t.Fatalf("unexpected customer queue %+v", q.Customer)
	}
	if list[0].ID != "EVT-000001" {
		t.Fatalf("input reordered")
	}
}

func TestRouteTieBreakByID(t *testing.T) {
	list := []events.Event{
		evt("EVT-000002", events.TypeUndervoltage, events.SeverityHigh, events.DestinationOperations, 0),
		evt("EVT-000001", events.TypeOvervoltage, events.SeverityHigh, events.DestinationOperations, 0),
	}
	q := Route(list, nil)
	if q.Operations[0].ID != "EVT-000001" {
		t.Fatalf("expected id tie-break, got %s", q.Operations[0].ID)
	}
	sorted := SortEvents(list)
	if sorted[0].ID != "EVT-000001" || list[0].ID != "EVT-000002" {
		t.Fatalf("SortEvents must sort a copy")
	}
}

func TestSummarize(t *testing.T) {
	list := []events.Event{
		evt("EVT-000001", events.TypeUndervoltage, events.SeverityCritical, events.DestinationOperations, 0),
		evt("EVT-000002", events.TypeInterruption, events.SeverityCritical, events.DestinationOperations, 0),
		evt("EVT-000003", events.TypeLowPowerFactor, events.SeverityMedium, events.DestinationCustomer, 0),
	}
	s := Summarize(list)
	if s.Total != 3 || s.Critical != 2 {
		t.Fatalf("unexpected totals %+v", s)
	}
	if s.BySeverity[events.SeverityMedium] != 1 || s.ByDestination[events.DestinationOperations] != 2 {
		t.Fatalf("unexpected breakdown %+v", s)
	}
	if s.ByType[events.TypeInterruption] != 1 || s.Meters != 3 {
		t.Fatalf("unexpected type breakdown %+v", s)
	}
}

func TestFilter(t *testing.T) {
	a := evt("EVT-000001", events.TypeUndervoltage, events.SeverityCritical, events.DestinationOperations, 0)
	b := evt("EVT-000002", events.TypeLowPowerFactor, events.SeverityMedium, events.DestinationCustomer, time.Minute)
	b.FeederID = "F2"
	list := []events.Event{a, b}

	if got := (Filter{MinSeverity: events.SeverityHigh}).Apply(list); len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("min severity filter: %+v", got)
	}
	if got := (Filter{FeederIDs: []string{"F2"}}).Apply(list); len(got) != 1 || got[0].ID != b.ID {
		t.Fatalf("feeder filter: %+v", got)
	}
	if got := (Filter{Since: t0.Add(30 * time.Second)}).Apply(list); len(got) != 1 || got[0].ID != b.ID {
		t.Fatalf("since filter: %+v", got)
	}
	if got := (Filter{Until: t0.Add(time.Minute)}).Apply(list); len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("until filter: %+v", got)
	}
	if got := (Filter{}).Apply(list); len(got) != 2 {
		t.Fatalf("empty filter: %+v", got)
	}
}

func TestSummarizeOrders(t *testing.T) {
	orders := []workorders.WorkOrder{
		{ID: "WO-000001", Type: workorders.TypeEmergency, CrewCount: 2, MeterIDs: []string{"M1", "M2"}, EstimatedCost: decimal.RequireFromString("3240"), Currency: "BRL"},
		{ID: "WO-000002", Type: workorders.TypeCorrective, CrewCount: 1, MeterIDs: []string{"M2"}, EstimatedCost: decimal.RequireFromString("600"), Currency: "BRL"},
	}
	s := SummarizeOrders(orders)
	if s.Total != 2 || s.Crews != 3 || s.AffectedMeters != 2 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if !s.TotalCost.Equal(decimal.RequireFromString("3840")) || s.Currency != "BRL" {
		t.Fatalf("unexpected cost %s %s", s.TotalCost, s.Currency)
	}
	if s.ByType[workorders.TypeEmergency] != 1 {
		t.Fatalf("unexpected by type %+v", s.ByType)
	}
}

func TestFilterIncidents(t *testing.T) {
	small := outage.Incident{ID: "INC-000001", FeederID: "F1", Priority: events.SeverityMedium,
		WindowStart: t0, AffectedMeterIDs: []string{"M1"}}
	large := outage.Incident{ID: "INC-000002", FeederID: "F2", Priority: events.SeverityCritical,
		WindowStart: t0.Add(time.Hour), AffectedMeterIDs: []string{"M2", "M3", "M4", "M5", "M6"}}
	list := []outage.Incident{small, large}

	if got := (Filter{MinSeverity: events.SeverityHigh}).ApplyIncidents(list); len(got) != 1 || got[0].ID != large.ID {
		t.Fatalf("unexpected min severity result %+v", got)
	}
	if got := (Filter{Since: t0.Add(time.Minute)}).ApplyIncidents(list); len(got) != 1 || got[0].ID != large.ID {
		t.Fatalf("unexpected since result %+v", got)
	}
	if got := (Filter{Until: t0.Add(time.Minute)}).ApplyIncidents(list); len(got) != 1 || got[0].ID != small.ID {
		t.Fatalf("unexpected until result %+v", got)
	}
	if got := (Filter{MeterID: "M4"}).ApplyIncidents(list); len(got) != 1 || got[0].ID != large.ID {
		t.Fatalf("unexpected meter result %+v", got)
	}
	if got := (Filter{Destination: events.DestinationCustomer}).ApplyIncidents(list); len(got) != 0 {
		t.Fatalf("incidents only belong to operations, got %+v", got)
	}
	if got := (Filter{Type: events.TypeUndervoltage}).ApplyIncidents(list); len(got) != 0 {
		t.Fatalf("incidents only aggregate interruptions, got %+v", got)
	}
	if got := (Filter{}).ApplyIncidents(list); len(got) != 2 {
		t.Fatalf("expected empty filter to keep both, got %d", len(got))
	}
}
