package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"meter-insights/internal/config"
	"meter-insights/internal/eventing"
	events "meter-insights/internal/events/domain"
	outage "meter-insights/internal/outage/domain"
	workorders "meter-insights/internal/workorders/domain"
)

type memoryStore struct {
	mu        sync.Mutex
	events    []events.Event
	incidents map[string]outage.Incident
	orders    map[string]workorders.WorkOrder
	failOn    string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		incidents: make(map[string]outage.Incident),
		orders:    make(map[string]workorders.WorkOrder),
	}
}

func (m *memoryStore) SaveEvent(_ context.Context, evt events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == evt.ID {
		return errors.New("disk full")
	}
	m.events = append(m.events, evt)
	return nil
}

func (m *memoryStore) UpsertIncident(_ context.Context, inc outage.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.incidents[inc.ID]; ok && prev.Revision >= inc.Revision {
		return nil
	}
	m.incidents[inc.ID] = inc
	return nil
}

func (m *memoryStore) UpsertWorkOrder(_ context.Context, order workorders.WorkOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.orders[order.ID]; ok && prev.Revision >= order.Revision {
		return nil
	}
	m.orders[order.ID] = order
	return nil
}

func TestSinkPersistsPipelineOutputs(t *testing.T) {
	store := newMemoryStore()
	sink, err := NewSink(store, store, store)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	bus := eventing.NewInMemoryBus()
	sink.Subscribe(bus)

	p, _, _ := newTestPipeline(t, config.Default(), WithBus(bus))
	ctx := context.Background()
	for _, r := range exampleSequence() {
		if _, err := p.Ingest(ctx, r); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}
	if closed := p.Shutdown(ctx); len(closed) != 1 {
		t.Fatalf("expected shutdown to flush one incident, got %d", len(closed))
	}

	if len(store.events) != 3 {
		t.Fatalf("expected 3 stored events, got %d", len(store.events))
	}
	inc, ok := store.incidents["INC-000001"]
	if !ok {
		t.Fatalf("incident not stored")
	}
	if inc.Status != outage.StatusClosed || inc.Affected() != 2 {
		t.Fatalf("unexpected stored incident %+v", inc)
	}
	if len(store.orders) != 2 {
		t.Fatalf("expected 2 stored orders, got %d", len(store.orders))
	}
	for _, order := range store.orders {
		if order.SourceKind == workorders.SourceIncident && order.Revision != 2 {
			t.Fatalf("expected revised incident order, got revision %d", order.Revision)
		}
	}
}

func TestSinkWrapsStoreErrors(t *testing.T) {
	store := newMemoryStore()
	store.failOn = "EVT-000009"
	sink, _ := NewSink(store, store, store)
	bus := eventing.NewInMemoryBus()
	sink.Subscribe(bus)

	err := bus.Publish(context.Background(), eventing.EventClassified{Event: events.Event{ID: "EVT-000009"}})
	if err == nil || !strings.Contains(err.Error(), "EVT-000009") {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if _, err := NewSink(nil, store, store); err == nil {
		t.Fatalf("expected error for nil store")
	}
}
