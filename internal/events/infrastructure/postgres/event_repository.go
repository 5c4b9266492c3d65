package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	events "meter-insights/internal/events/domain"
)

const eventsSchema = `
CREATE TABLE IF NOT EXISTS meter_events (
	event_id TEXT PRIMARY KEY,
	meter_id TEXT NOT NULL,
	feeder_id TEXT NOT NULL,
	region TEXT NOT NULL DEFAULT '',
	event_type TEXT NOT NULL,
	severity SMALLINT NOT NULL,
	destination TEXT NOT NULL,
	impact SMALLINT NOT NULL,
	measured_value DOUBLE PRECISION NOT NULL,
	threshold DOUBLE PRECISION NOT NULL,
	voltage DOUBLE PRECISION NOT NULL,
	description TEXT NOT NULL,
	suggested_action TEXT NOT NULL,
	late BOOLEAN NOT NULL DEFAULT FALSE,
	ts TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS meter_events_feeder_ts ON meter_events (feeder_id, ts);`

// EventRepository persists classified events.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository constructs a repository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Migrate creates the events table when missing.
func (r *EventRepository) Migrate(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("event repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, eventsSchema)
	return err
}

// SaveEvent inserts an event. Events are immutable, so a repeated id is a no-op.
func (r *EventRepository) SaveEvent(ctx context.Context, evt events.Event) error {
	if r == nil || r.db == nil {
		return errors.New("event repo: nil db")
	}
	if evt.ID == "" || evt.MeterID == "" || evt.FeederID == "" {
		return errors.New("event repo: missing fields")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO meter_events (
	event_id, meter_id, feeder_id, region, event_type, severity, destination, impact,
	measured_value, threshold, voltage, description, suggested_action, late, ts
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8,
	$9, $10, $11, $12, $13, $14, $15
)
ON CONFLICT (event_id) DO NOTHING`,
		evt.ID,
		evt.MeterID,
		evt.FeederID,
		evt.Region,
		string(evt.Type),
		int(evt.Severity),
		string(evt.Destination),
		int(evt.Impact),
		evt.MeasuredValue,
		evt.Threshold,
		evt.Voltage,
		evt.Description,
		evt.SuggestedAction,
		evt.Late,
		evt.Timestamp.UTC(),
	)
	return err
}

// ListByFeeder lists events of a feeder in [from, to) ordered by timestamp.
func (r *EventRepository) ListByFeeder(ctx context.Context, feederID string, from, to time.Time) ([]events.Event, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("event repo: nil db")
	}
	if feederID == "" {
		return nil, errors.New("event repo: invalid query")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT event_id, meter_id, feeder_id, region, event_type, severity, destination, impact,
	measured_value, threshold, voltage, description, suggested_action, late, ts
FROM meter_events
WHERE feeder_id = $1 AND ts >= $2 AND ts < $3
ORDER BY ts, event_id`, feederID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			evt         events.Event
			eventType   string
			severity    int
			destination string
			impact      int
		)
		if err := rows.Scan(
			&evt.ID,
			&evt.MeterID,
			&evt.FeederID,
			&evt.Region,
			&eventType,
			&severity,
			&destination,
			&impact,
			&evt.MeasuredValue,
			&evt.Threshold,
			&evt.Voltage,
			&evt.Description,
			&evt.SuggestedAction,
			&evt.Late,
			&evt.Timestamp,
		); err != nil {
			return nil, err
		}
		evt.Type = events.Type(eventType)
		evt.Severity = events.Severity(severity)
		evt.Destination = events.Destination(destination)
		evt.Impact = events.Impact(impact)
		evt.Timestamp = evt.Timestamp.UTC()
		out = append(out, evt)
	}
	return out, rows.Err()
}
