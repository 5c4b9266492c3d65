package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	events "meter-insights/internal/events/domain"
	outage "meter-insights/internal/outage/domain"
)

const incidentsSchema = `
CREATE TABLE IF NOT EXISTS outage_incidents (
	incident_id TEXT PRIMARY KEY,
	feeder_id TEXT NOT NULL,
	region TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	window_start TIMESTAMPTZ NOT NULL,
	window_end TIMESTAMPTZ NOT NULL,
	closed_at TIMESTAMPTZ NULL,
	affected_meter_ids JSONB NOT NULL,
	max_voltage DOUBLE PRECISION NOT NULL,
	probable_cause TEXT NOT NULL,
	priority SMALLINT NOT NULL,
	source_event_ids JSONB NOT NULL,
	revision INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS outage_incidents_feeder_status ON outage_incidents (feeder_id, status);`

const selectIncident = `
SELECT incident_id, feeder_id, region, status, window_start, window_end, closed_at,
	affected_meter_ids, max_voltage, probable_cause, priority, source_event_ids, revision
FROM outage_incidents`

// IncidentRepository persists outage incidents.
type IncidentRepository struct {
	db *sql.DB
}

// NewIncidentRepository constructs a repository.
func NewIncidentRepository(db *sql.DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

// Migrate creates the incidents table when missing.
func (r *IncidentRepository) Migrate(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("incident repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, incidentsSchema)
	return err
}

// UpsertIncident stores an incident snapshot. Older revisions never overwrite newer ones.
func (r *IncidentRepository) UpsertIncident(ctx context.Context, inc outage.Incident) error {
	if r == nil || r.db == nil {
		return errors.New("incident repo: nil db")
	}
	if inc.ID == "" || inc.FeederID == "" {
		return errors.New("incident repo: missing fields")
	}
	meters, err := json.Marshal(nonNil(inc.AffectedMeterIDs))
	if err != nil {
		return err
	}
	sources, err := json.Marshal(nonNil(inc.SourceEventIDs))
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO outage_incidents (
	incident_id, feeder_id, region, status, window_start, window_end, closed_at,
	affected_meter_ids, max_voltage, probable_cause, priority, source_event_ids, revision
) VALUES (
	$1, $2, $3, $4, $5, $6, $7,
	$8, $9, $10, $11, $12, $13
)
ON CONFLICT (incident_id) DO UPDATE SET
	status = EXCLUDED.status,
	window_start = EXCLUDED.window_start,
	window_end = EXCLUDED.window_end,
	closed_at = EXCLUDED.closed_at,
	affected_meter_ids = EXCLUDED.affected_meter_ids,
	max_voltage = EXCLUDED.max_voltage,
	probable_cause = EXCLUDED.probable_cause,
	priority = EXCLUDED.priority,
	source_event_ids = EXCLUDED.source_event_ids,
	revision = EXCLUDED.revision
WHERE outage_incidents.revision < EXCLUDED.revision`,
		inc.ID,
		inc.FeederID,
		inc.Region,
		string(inc.Status),
		inc.WindowStart.UTC(),
		inc.WindowEnd.UTC(),
		nullableTime(inc.ClosedAt),
		string(meters),
		inc.MaxVoltage,
		inc.ProbableCause,
		int(inc.Priority),
		string(sources),
		inc.Revision,
	)
	return err
}

// GetIncident fetches an incident by id.
func (r *IncidentRepository) GetIncident(ctx context.Context, id string) (outage.Incident, error) {
	if r == nil || r.db == nil {
		return outage.Incident{}, errors.New("incident repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, selectIncident+`
WHERE incident_id = $1`, id)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return outage.Incident{}, fmt.Errorf("%w: %s", outage.ErrNotFound, id)
	}
	return inc, err
}

// ListByFeeder lists incidents of a feeder, optionally filtered by status.
func (r *IncidentRepository) ListByFeeder(ctx context.Context, feederID string, status outage.Status) ([]outage.Incident, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("incident repo: nil db")
	}
	if feederID == "" {
		return nil, errors.New("incident repo: invalid query")
	}
	query := selectIncident + `
WHERE feeder_id = $1`
	args := []any{feederID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += `
ORDER BY window_start, incident_id`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []outage.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (outage.Incident, error) {
	var (
		inc      outage.Incident
		status   string
		closedAt sql.NullTime
		meters   []byte
		sources  []byte
		priority int
	)
	if err := row.Scan(
		&inc.ID,
		&inc.FeederID,
		&inc.Region,
		&status,
		&inc.WindowStart,
		&inc.WindowEnd,
		&closedAt,
		&meters,
		&inc.MaxVoltage,
		&inc.ProbableCause,
		&priority,
		&sources,
		&inc.Revision,
	); err != nil {
		return outage.Incident{}, err
	}
	inc.Status = outage.Status(status)
	inc.Priority = events.Severity(priority)
	inc.WindowStart = inc.WindowStart.UTC()
	inc.WindowEnd = inc.WindowEnd.UTC()
	if closedAt.Valid {
		inc.ClosedAt = closedAt.Time.UTC()
	}
	if err := json.Unmarshal(meters, &inc.AffectedMeterIDs); err != nil {
		return outage.Incident{}, fmt.Errorf("incident repo: decode meters: %w", err)
	}
	if err := json.Unmarshal(sources, &inc.SourceEventIDs); err != nil {
		return outage.Incident{}, fmt.Errorf("incident repo: decode sources: %w", err)
	}
	return inc, nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
