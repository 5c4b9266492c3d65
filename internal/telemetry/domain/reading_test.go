package telemetry

import (
	"errors"
	"math"
	"testing"
	"time"
)

func validReading() Reading {
	return Reading{
		MeterID:     "M1",
		FeederID:    "F1",
		Region:      "north",
		Timestamp:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Voltage:     127,
		ActivePower: 2,
		PowerFactor: 0.95,
	}
}

func TestReadingValidate(t *testing.T) {
	if err := validReading().Validate(); err != nil {
		t.Fatalf("expected valid reading, got %v", err)
	}

	cases := map[string]func(r *Reading){
		"missing meter":     func(r *Reading) { r.MeterID = "" },
		"missing feeder":    func(r *Reading) { r.FeederID = "" },
		"missing timestamp": func(r *Reading) { r.Timestamp = time.Time{} },
		"nan voltage":       func(r *Reading) { r.Voltage = math.NaN() },
		"inf power":         func(r *Reading) { r.ActivePower = math.Inf(1) },
		"power factor > 1":  func(r *Reading) { r.PowerFactor = 1.2 },
		"negative voltage":  func(r *Reading) { r.Voltage = -1 },
	}
	for name, mutate := range cases {
		r := validReading()
		mutate(&r)
		err := r.Validate()
		if !errors.Is(err, ErrInvalidReading) {
			t.Fatalf("%s: expected ErrInvalidReading, got %v", name, err)
		}
	}
}

func TestReadingNormalizeDerivesEnergy(t *testing.T) {
	r := validReading()
	r.IntervalMinutes = 15
	r.Timestamp = r.Timestamp.In(time.FixedZone("BRT", -3*3600))

	got := r.Normalize()
	if got.Energy != 0.5 {
		t.Fatalf("expected energy 0.5 kWh, got %v", got.Energy)
	}
	if got.Timestamp.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp")
	}

	r.Energy = 3
	if got := r.Normalize(); got.Energy != 3 {
		t.Fatalf("expected explicit energy preserved, got %v", got.Energy)
	}
}
