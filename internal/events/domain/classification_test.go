package events

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestClassifyTable(t *testing.T) {
	cases := []struct {
		typ         Type
		bucket      Bucket
		severity    Severity
		destination Destination
	}{
		{TypeUndervoltage, BucketSevere, SeverityCritical, DestinationOperations},
		{TypeUndervoltage, BucketDefault, SeverityHigh, DestinationOperations},
		{TypeOvervoltage, BucketDefault, SeverityHigh, DestinationOperations},
		{TypeInterruption, BucketDefault, SeverityCritical, DestinationOperations},
		{TypeAbnormalConsumption, BucketDefault, SeverityMedium, DestinationCommercial},
		{TypeLowPowerFactor, BucketDefault, SeverityMedium, DestinationCustomer},
		{TypeStatisticalAnomaly, BucketDefault, SeverityMedium, DestinationOperations},
	}
	for _, tc := range cases {
		got, err := Classify(tc.typ, tc.bucket)
		if err != nil {
			t.Fatalf("%s/%d: unexpected error %v", tc.typ, tc.bucket, err)
		}
		if got.Severity != tc.severity || got.Destination != tc.destination {
			t.Fatalf("%s/%d: got %s/%s", tc.typ, tc.bucket, got.Severity, got.Destination)
		}
		if got.SuggestedAction == "" {
			t.Fatalf("%s/%d: missing suggested action", tc.typ, tc.bucket)
		}
	}

	if _, err := Classify(TypeOvervoltage, BucketSevere); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType for unmapped bucket, got %v", err)
	}
}

func TestSeverityParseAndJSON(t *testing.T) {
	for _, label := range []string{"critical", "HIGH", " medium ", "1"} {
		if _, err := ParseSeverity(label); err != nil {
			t.Fatalf("parse %q: %v", label, err)
		}
	}
	if _, err := ParseSeverity("urgent"); err == nil {
		t.Fatalf("expected error for unknown severity")
	}

	body, err := json.Marshal(struct {
		S Severity `json:"s"`
	}{SeverityHigh})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(body) != `{"s":"high"}` {
		t.Fatalf("unexpected json %s", body)
	}

	var decoded struct {
		S Severity `json:"s"`
	}
	if err := json.Unmarshal([]byte(`{"s":"critical"}`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.S != SeverityCritical {
		t.Fatalf("expected critical, got %s", decoded.S)
	}
	if !SeverityCritical.AtLeast(SeverityHigh) || SeverityMedium.AtLeast(SeverityHigh) {
		t.Fatalf("unexpected AtLeast ordering")
	}
}

func TestSeverityJSONRoundTripKeepsUnknownValues(t *testing.T) {
	type wrapper struct {
		S Severity `json:"s"`
	}
	for _, s := range []Severity{0, SeverityLow, SeverityCritical, Severity(7)} {
		body, err := json.Marshal(wrapper{S: s})
		if err != nil {
			t.Fatalf("marshal %d: %v", int(s), err)
		}
		var decoded wrapper
		if err := json.Unmarshal(body, &decoded); err != nil {
			t.Fatalf("unmarshal %s: %v", body, err)
		}
		if decoded.S != s {
			t.Fatalf("round trip of %d returned %d", int(s), int(decoded.S))
		}
	}
	if _, err := ParseSeverity("0"); err == nil {
		t.Fatalf("ParseSeverity must reject unknown ordinals")
	}
}
