package application

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	events "meter-insights/internal/events/domain"
	outage "meter-insights/internal/outage/domain"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func interruption(id, meter, feeder string, at time.Time) events.Event {
	return events.Event{
		ID:            id,
		MeterID:       meter,
		FeederID:      feeder,
		Timestamp:     at,
		Type:          events.TypeInterruption,
		Severity:      events.SeverityCritical,
		MeasuredValue: 0.01,
	}
}

func newAggregator(t *testing.T) *Aggregator {
	t.Helper()
	agg, err := NewAggregator(DefaultWindow)
	if err != nil {
		t.Fatalf("new aggregator: %v", err)
	}
	return agg
}

func TestAggregatorOpensAndExtends(t *testing.T) {
	agg := newAggregator(t)

	up := agg.Observe(interruption("E1", "M2", "F1", t0.Add(2*time.Minute)))
	if up.Change != ChangeOpened || up.Incident == nil {
		t.Fatalf("expected opened incident, got %+v", up)
	}
	if got := up.Incident.AffectedMeterIDs; len(got) != 1 || got[0] != "M2" {
		t.Fatalf("unexpected affected set %v", got)
	}
	if !up.Incident.WindowEnd.Equal(t0.Add(17 * time.Minute)) {
		t.Fatalf("unexpected window end %s", up.Incident.WindowEnd)
	}

	up = agg.Observe(interruption("E2", "M3", "F1", t0.Add(5*time.Minute)))
	if up.Change != ChangeExtended || up.Closed != nil {
		t.Fatalf("expected extension, got %+v", up)
	}
	if got := up.Incident.AffectedMeterIDs; len(got) != 2 || got[0] != "M2" || got[1] != "M3" {
		t.Fatalf("unexpected affected set %v", got)
	}
	if !up.Incident.WindowEnd.Equal(t0.Add(20 * time.Minute)) {
		t.Fatalf("window end not extended: %s", up.Incident.WindowEnd)
	}
	if up.Incident.ProbableCause != outage.CauseTransformer || up.Incident.Priority != events.SeverityHigh {
		t.Fatalf("unexpected derivation %q/%s", up.Incident.ProbableCause, up.Incident.Priority)
	}
	if n := len(agg.Incidents(Query{FeederID: "F1"})); n != 1 {
		t.Fatalf("expected one incident, got %d", n)
	}
}

func TestAggregatorDuplicateMeterIsIdempotent(t *testing.T) {
	agg := newAggregator(t)
	agg.Observe(interruption("E1", "M1", "F1", t0))
	up := agg.Observe(interruption("E2", "M1", "F1", t0.Add(time.Minute)))
	if up.Incident.Affected() != 1 {
		t.Fatalf("expected one affected meter, got %v", up.Incident.AffectedMeterIDs)
	}
	if len(up.Incident.SourceEventIDs) != 2 {
		t.Fatalf("expected both source events recorded, got %v", up.Incident.SourceEventIDs)
	}
}

func TestAggregatorGapBeyondWindowClosesFirst(t *testing.T) {
	agg := newAggregator(t)
	first := agg.Observe(interruption("E1", "M1", "F1", t0))
	up := agg.Observe(interruption("E2", "M2", "F1", t0.Add(16*time.Minute)))
	if up.Change != ChangeOpened || up.Closed == nil {
		t.Fatalf("expected close-and-open, got %+v", up)
	}
	if up.Closed.ID != first.Incident.ID || up.Closed.Status != outage.StatusClosed {
		t.Fatalf("expected first incident closed, got %+v", up.Closed)
	}
	if !up.Closed.ClosedAt.Equal(t0.Add(DefaultWindow)) {
		t.Fatalf("closed at %s, expected window end", up.Closed.ClosedAt)
	}
	if up.Incident.ID == first.Incident.ID {
		t.Fatalf("expected a new incident id")
	}

	all := agg.Incidents(Query{FeederID: "F1"})
	if len(all) != 2 || all[0].Status != outage.StatusClosed || all[1].Status != outage.StatusOpen {
		t.Fatalf("unexpected incidents %+v", all)
	}
	if n := len(agg.Incidents(Query{Status: outage.StatusOpen})); n != 1 {
		t.Fatalf("expected one open incident, got %d", n)
	}
}

func TestAggregatorSweepClosesElapsed(t *testing.T) {
	agg := newAggregator(t)
	agg.Observe(interruption("E1", "M1", "F1", t0))
	agg.Observe(interruption("E2", "M5", "F2", t0.Add(10*time.Minute)))

	if closed := agg.Sweep(t0.Add(15 * time.Minute)); len(closed) != 0 {
		t.Fatalf("window end is inclusive, expected no closure, got %d", len(closed))
	}
	closed := agg.Sweep(t0.Add(16 * time.Minute))
	if len(closed) != 1 || closed[0].FeederID != "F1" {
		t.Fatalf("expected F1 closed, got %+v", closed)
	}
	if _, ok := agg.Open("F1"); ok {
		t.Fatalf("F1 should be idle after sweep")
	}
	if _, ok := agg.Open("F2"); !ok {
		t.Fatalf("F2 should still be open")
	}

	up := agg.Observe(interruption("E3", "M1", "F1", t0.Add(17*time.Minute)))
	if up.Change != ChangeOpened || up.Closed != nil {
		t.Fatalf("expected a fresh incident after sweep, got %+v", up)
	}
}

func TestAggregatorFlushClosesAll(t *testing.T) {
	agg := newAggregator(t)
	agg.Observe(interruption("E1", "M1", "F1", t0))
	agg.Observe(interruption("E2", "M2", "F2", t0))

	closed := agg.Flush(t0.Add(5 * time.Minute))
	if len(closed) != 2 {
		t.Fatalf("expected two flushed incidents, got %d", len(closed))
	}
	for _, inc := range closed {
		if !inc.ClosedAt.Equal(t0.Add(5 * time.Minute)) {
			t.Fatalf("expected flush time as closed at, got %s", inc.ClosedAt)
		}
	}
	if agg.OpenCount() != 0 {
		t.Fatalf("expected no open incidents after flush")
	}
}

func TestAggregatorLateEventsNeverExtendOrReopen(t *testing.T) {
	agg := newAggregator(t)
	agg.Observe(interruption("E1", "M1", "F1", t0))

	late := interruption("E2", "M2", "F1", t0.Add(10*time.Minute))
	late.Late = true
	up := agg.Observe(late)
	if up.Change != ChangeExtended || !up.Incident.HasMeter("M2") {
		t.Fatalf("late event inside window should join, got %+v", up)
	}
	if !up.Incident.WindowEnd.Equal(t0.Add(DefaultWindow)) {
		t.Fatalf("late event extended window to %s", up.Incident.WindowEnd)
	}

	agg.Sweep(t0.Add(time.Hour))
	late = interruption("E3", "M3", "F1", t0.Add(2*time.Minute))
	late.Late = true
	if up := agg.Observe(late); up.Change != ChangeStale {
		t.Fatalf("late event must not reopen a closed incident, got %+v", up)
	}
	if n := len(agg.Incidents(Query{Status: outage.StatusOpen})); n != 0 {
		t.Fatalf("expected no open incidents, got %d", n)
	}
}

func TestAggregatorIgnoresOtherTypes(t *testing.T) {
	agg := newAggregator(t)
	evt := interruption("E1", "M1", "F1", t0)
	evt.Type = events.TypeUndervoltage
	if up := agg.Observe(evt); up.Change != ChangeIgnored {
		t.Fatalf("expected ignored, got %s", up.Change)
	}
}

func TestAggregatorOrderIndependentWithinWindow(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("one incident with all distinct meters regardless of arrival order", prop.ForAll(
		func(offsets []int, meterIdx []int, seed int64) bool {
			n := len(offsets)
			if len(meterIdx) < n {
				n = len(meterIdx)
			}
			if n == 0 {
				return true
			}
			list := make([]events.Event, 0, n)
			want := make(map[string]bool)
			for i := 0; i < n; i++ {
				meter := fmt.Sprintf("M%d", meterIdx[i])
				want[meter] = true
				list = append(list, interruption(fmt.Sprintf("E%d", i), meter, "F1", t0.Add(time.Duration(offsets[i])*time.Second)))
			}
			rand.New(rand.NewSource(seed)).Shuffle(len(list), func(i, j int) { list[i], list[j] = list[j], list[i] })

			agg, err := NewAggregator(DefaultWindow)
			if err != nil {
				return false
			}
			for _, evt := range list {
				agg.Observe(evt)
			}
			all := agg.Incidents(Query{})
			if len(all) != 1 {
				return false
			}
			got := all[0].AffectedMeterIDs
			if len(got) != len(want) || !sort.StringsAreSorted(got) {
				return false
			}
			for _, meter := range got {
				if !want[meter] {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(12, gen.IntRange(0, int(DefaultWindow/time.Second)-1)),
		gen.SliceOfN(12, gen.IntRange(1, 8)),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
