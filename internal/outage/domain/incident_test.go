package outage

import (
	"testing"

	events "meter-insights/internal/events/domain"
)

func TestIncidentAddMeterKeepsSortedSet(t *testing.T) {
	var inc Incident
	for _, id := range []string{"M3", "M1", "M2", "M1"} {
		inc.AddMeter(id)
	}
	if inc.Affected() != 3 {
		t.Fatalf("expected 3 meters, got %v", inc.AffectedMeterIDs)
	}
	if inc.AffectedMeterIDs[0] != "M1" || inc.AffectedMeterIDs[2] != "M3" {
		t.Fatalf("expected sorted set, got %v", inc.AffectedMeterIDs)
	}
	if inc.AddMeter("M2") {
		t.Fatalf("re-adding a meter must be a no-op")
	}
	if !inc.HasMeter("M2") || inc.HasMeter("M9") {
		t.Fatalf("unexpected membership")
	}
}

func TestDeriveCauseAndPriority(t *testing.T) {
	p := DefaultPolicy()
	cases := []struct {
		affected   int
		maxVoltage float64
		cause      string
		priority   events.Severity
	}{
		{1, 127, CauseIsolated, events.SeverityMedium},
		{3, 0, CauseTransformer, events.SeverityHigh},
		{3, 120, CausePartial, events.SeverityHigh},
		{5, 0, CauseFeeder, events.SeverityCritical},
		{12, 127, CauseFeeder, events.SeverityCritical},
	}
	for _, tc := range cases {
		if got := ProbableCause(tc.affected, tc.maxVoltage, p); got != tc.cause {
			t.Fatalf("affected=%d: expected %q, got %q", tc.affected, tc.cause, got)
		}
		if got := PriorityFor(tc.affected, p); got != tc.priority {
			t.Fatalf("affected=%d: expected %s, got %s", tc.affected, tc.priority, got)
		}
	}
}

func TestIncidentCloneIsDeep(t *testing.T) {
	inc := Incident{AffectedMeterIDs: []string{"M1"}, SourceEventIDs: []string{"EVT-1"}}
	clone := inc.Clone()
	clone.AffectedMeterIDs[0] = "X"
	clone.SourceEventIDs[0] = "Y"
	if inc.AffectedMeterIDs[0] != "M1" || inc.SourceEventIDs[0] != "EVT-1" {
		t.Fatalf("clone shares backing arrays")
	}
}
