package pipeline

import (
	"context"
	"errors"
	"fmt"

	"meter-insights/internal/eventing"
	events "meter-insights/internal/events/domain"
	"meter-insights/internal/observability/metrics"
	outage "meter-insights/internal/outage/domain"
	workorders "meter-insights/internal/workorders/domain"
)

// EventStore persists classified events.
type EventStore interface {
	SaveEvent(ctx context.Context, evt events.Event) error
}

// IncidentStore persists incident snapshots.
type IncidentStore interface {
	UpsertIncident(ctx context.Context, inc outage.Incident) error
}

// WorkOrderStore persists work order revisions.
type WorkOrderStore interface {
	UpsertWorkOrder(ctx context.Context, order workorders.WorkOrder) error
}

// Sink writes pipeline outputs to durable stores as they are published.
type Sink struct {
	events    EventStore
	incidents IncidentStore
	orders    WorkOrderStore
}

// NewSink constructs a sink over the given stores.
func NewSink(eventStore EventStore, incidentStore IncidentStore, orderStore WorkOrderStore) (*Sink, error) {
	if eventStore == nil || incidentStore == nil || orderStore == nil {
		return nil, errors.New("pipeline sink: nil store")
	}
	return &Sink{events: eventStore, incidents: incidentStore, orders: orderStore}, nil
}

// Subscribe attaches the sink to every output message on bus.
func (s *Sink) Subscribe(bus eventing.EventBus) {
	eventing.SubscribeTo(bus, func(ctx context.Context, msg eventing.EventClassified) error {
		return s.wrap("event", msg.Event.ID, s.events.SaveEvent(ctx, msg.Event))
	})
	incident := func(ctx context.Context, inc outage.Incident) error {
		return s.wrap("incident", inc.ID, s.incidents.UpsertIncident(ctx, inc))
	}
	eventing.SubscribeTo(bus, func(ctx context.Context, msg eventing.IncidentOpened) error {
		return incident(ctx, msg.Incident)
	})
	eventing.SubscribeTo(bus, func(ctx context.Context, msg eventing.IncidentExtended) error {
		return incident(ctx, msg.Incident)
	})
	eventing.SubscribeTo(bus, func(ctx context.Context, msg eventing.IncidentClosed) error {
		return incident(ctx, msg.Incident)
	})
	order := func(ctx context.Context, wo workorders.WorkOrder) error {
		return s.wrap("work order", wo.ID, s.orders.UpsertWorkOrder(ctx, wo))
	}
	eventing.SubscribeTo(bus, func(ctx context.Context, msg eventing.WorkOrderIssued) error {
		return order(ctx, msg.Order)
	})
	eventing.SubscribeTo(bus, func(ctx context.Context, msg eventing.WorkOrderRevised) error {
		return order(ctx, msg.Order)
	})
}

func (s *Sink) wrap(kind, id string, err error) error {
	if err == nil {
		return nil
	}
	metrics.IncSinkError("postgres")
	return fmt.Errorf("pipeline sink: store %s %s: %w", kind, id, err)
}
