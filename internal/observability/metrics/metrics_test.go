package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHelpersAreNilSafeBeforeInit(t *testing.T) {
	if readingsTotal != nil {
		t.Skip("metrics already registered")
	}
	ObserveReading(ReadingAccepted, time.Millisecond)
	IncRejected("")
	IncEvent("undervoltage", "critical")
	SetOpenIncidents(3)
}

func TestCountersAfterInit(t *testing.T) {
	Init(nil, nil)

	before := testutil.ToFloat64(readingsTotal.WithLabelValues(ReadingRejected))
	ObserveReading(ReadingRejected, time.Millisecond)
	if got := testutil.ToFloat64(readingsTotal.WithLabelValues(ReadingRejected)); got != before+1 {
		t.Fatalf("expected rejected readings %v, got %v", before+1, got)
	}

	IncRejected("")
	if got := testutil.ToFloat64(rejectedTotal.WithLabelValues(labelUnknown)); got < 1 {
		t.Fatalf("expected unknown reason counted, got %v", got)
	}

	SetOpenIncidents(2)
	if got := testutil.ToFloat64(openIncidents); got != 2 {
		t.Fatalf("expected open incidents 2, got %v", got)
	}
}
