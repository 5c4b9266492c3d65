package eventing

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Envelope wraps a message payload with routing metadata for external sinks.
type Envelope struct {
	EnvelopeID    string          `json:"envelope_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	FeederID      string          `json:"feeder_id,omitempty"`
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// Meta provides envelope overrides.
type Meta struct {
	EnvelopeID    string
	OccurredAt    time.Time
	SchemaVersion int
}

// BuildEnvelope marshals a bus message into an envelope. Feeder and time are
// taken from the message when not overridden.
func BuildEnvelope(event any, meta Meta) (Envelope, error) {
	if event == nil {
		return Envelope{}, errors.New("eventing: nil event")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, err
	}

	feederID, occurredAt := describe(event)
	if !meta.OccurredAt.IsZero() {
		occurredAt = meta.OccurredAt
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	id := meta.EnvelopeID
	if id == "" {
		id = uuid.NewString()
	}
	version := meta.SchemaVersion
	if version == 0 {
		version = 1
	}

	return Envelope{
		EnvelopeID:    id,
		EventType:     ShortName(event),
		OccurredAt:    occurredAt.UTC(),
		FeederID:      feederID,
		SchemaVersion: version,
		Payload:       payload,
	}, nil
}

// ShortName returns the message type without its package qualifier.
func ShortName(event any) string {
	name := EventType(event)
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

func describe(event any) (string, time.Time) {
	switch msg := event.(type) {
	case EventClassified:
		return msg.Event.FeederID, msg.Event.Timestamp
	case IncidentOpened:
		return msg.Incident.FeederID, msg.Incident.WindowStart
	case IncidentExtended:
		return msg.Incident.FeederID, msg.Incident.WindowEnd
	case IncidentClosed:
		return msg.Incident.FeederID, msg.Incident.ClosedAt
	case WorkOrderIssued:
		return msg.Order.FeederID, msg.Order.IssuedAt
	case WorkOrderRevised:
		return msg.Order.FeederID, msg.Order.UpdatedAt
	case ReadingRejected:
		return msg.Reading.FeederID, msg.Reading.Timestamp
	default:
		return "", time.Time{}
	}
}
