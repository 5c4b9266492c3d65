package eventing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	events "meter-insights/internal/events/domain"
)

func TestInMemoryBusTypedDelivery(t *testing.T) {
	bus := NewInMemoryBus()
	var got []string
	SubscribeTo(bus, func(ctx context.Context, msg EventClassified) error {
		got = append(got, msg.Event.ID)
		return nil
	})
	SubscribeTo(bus, func(ctx context.Context, msg IncidentOpened) error {
		t.Fatalf("unexpected incident delivery")
		return nil
	})

	if err := bus.Publish(context.Background(), EventClassified{Event: events.Event{ID: "EVT-000001"}}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.Publish(context.Background(), &EventClassified{Event: events.Event{ID: "EVT-000002"}}); err != nil {
		t.Fatalf("publish pointer: %v", err)
	}
	if len(got) != 2 || got[0] != "EVT-000001" || got[1] != "EVT-000002" {
		t.Fatalf("unexpected deliveries %v", got)
	}
}

func TestInMemoryBusJoinsErrors(t *testing.T) {
	bus := NewInMemoryBus()
	errA := errors.New("a")
	calls := 0
	SubscribeTo(bus, func(ctx context.Context, msg ReadingRejected) error {
		calls++
		return errA
	})
	SubscribeTo(bus, func(ctx context.Context, msg ReadingRejected) error {
		calls++
		return nil
	})
	err := bus.Publish(context.Background(), ReadingRejected{Reason: "x"})
	if !errors.Is(err, errA) || calls != 2 {
		t.Fatalf("expected both handlers and joined error, calls=%d err=%v", calls, err)
	}
	if err := bus.Publish(context.Background(), nil); !errors.Is(err, ErrNilEvent) {
		t.Fatalf("expected nil event error, got %v", err)
	}
}

func TestBuildEnvelope(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	env, err := BuildEnvelope(EventClassified{Event: events.Event{ID: "EVT-000001", FeederID: "F1", Timestamp: ts}}, Meta{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if env.EventType != "EventClassified" || env.FeederID != "F1" || !env.OccurredAt.Equal(ts) {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if env.EnvelopeID == "" || env.SchemaVersion != 1 {
		t.Fatalf("expected generated id and version, got %+v", env)
	}
	var decoded EventClassified
	if err := json.Unmarshal(env.Payload, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Event.ID != "EVT-000001" || decoded.Event.Severity != 0 {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}
