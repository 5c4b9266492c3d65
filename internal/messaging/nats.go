package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"meter-insights/internal/eventing"
	"meter-insights/internal/observability/metrics"
)

// Conn is the subset of *nats.Conn used by the publisher.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Config holds NATS connection settings.
type Config struct {
	URL            string
	Name           string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
}

// Connect dials NATS with reconnect handling that logs through logger.
func Connect(cfg Config, logger *log.Logger) (*nats.Conn, error) {
	if cfg.URL == "" {
		return nil, errors.New("messaging: empty nats url")
	}
	if cfg.Name == "" {
		cfg.Name = "meter-insights"
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
	}
	if logger != nil {
		opts = append(opts,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Printf("messaging: nats disconnected: %v", err)
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				logger.Printf("messaging: nats reconnected to %s", nc.ConnectedUrl())
			}),
		)
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("messaging: connect to nats: %w", err)
	}
	return conn, nil
}

// Publisher forwards pipeline messages to NATS subjects as JSON envelopes.
type Publisher struct {
	conn   Conn
	prefix string
}

// NewPublisher constructs a publisher. Subjects are rooted at prefix.
func NewPublisher(conn Conn, prefix string) (*Publisher, error) {
	if conn == nil {
		return nil, errors.New("messaging: nil nats connection")
	}
	if prefix == "" {
		prefix = "meter"
	}
	return &Publisher{conn: conn, prefix: prefix}, nil
}

// Subject returns the subject a message is published on.
func (p *Publisher) Subject(msg any) (string, bool) {
	switch m := msg.(type) {
	case eventing.EventClassified:
		return fmt.Sprintf("%s.events.%s", p.prefix, m.Event.Type), true
	case eventing.IncidentOpened:
		return p.prefix + ".incidents.opened", true
	case eventing.IncidentExtended:
		return p.prefix + ".incidents.extended", true
	case eventing.IncidentClosed:
		return p.prefix + ".incidents.closed", true
	case eventing.WorkOrderIssued:
		return p.prefix + ".workorders.issued", true
	case eventing.WorkOrderRevised:
		return p.prefix + ".workorders.revised", true
	case eventing.ReadingRejected:
		return p.prefix + ".readings.rejected", true
	default:
		return "", false
	}
}

// Publish wraps msg in an envelope and publishes it.
func (p *Publisher) Publish(_ context.Context, msg any) error {
	subject, ok := p.Subject(msg)
	if !ok {
		return fmt.Errorf("messaging: no subject for %s", eventing.EventType(msg))
	}
	env, err := eventing.BuildEnvelope(msg, eventing.Meta{})
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(subject, data); err != nil {
		metrics.IncSinkError("nats")
		return fmt.Errorf("messaging: publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe forwards every pipeline message type from bus.
func (p *Publisher) Subscribe(bus eventing.EventBus) {
	forward := func(ctx context.Context, event any) error {
		return p.Publish(ctx, event)
	}
	for _, name := range []string{
		eventing.EventTypeOf[eventing.EventClassified](),
		eventing.EventTypeOf[eventing.IncidentOpened](),
		eventing.EventTypeOf[eventing.IncidentExtended](),
		eventing.EventTypeOf[eventing.IncidentClosed](),
		eventing.EventTypeOf[eventing.WorkOrderIssued](),
		eventing.EventTypeOf[eventing.WorkOrderRevised](),
		eventing.EventTypeOf[eventing.ReadingRejected](),
	} {
		bus.Subscribe(name, forward)
	}
}
