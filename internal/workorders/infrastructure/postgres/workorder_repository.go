package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	events "meter-insights/internal/events/domain"
	workorders "meter-insights/internal/workorders/domain"
)

const workOrdersSchema = `
CREATE TABLE IF NOT EXISTS work_orders (
	order_id TEXT PRIMARY KEY,
	source_kind TEXT NOT NULL,
	source_id TEXT NOT NULL,
	source_type TEXT NOT NULL DEFAULT '',
	feeder_id TEXT NOT NULL,
	region TEXT NOT NULL DEFAULT '',
	meter_ids JSONB NOT NULL,
	order_type TEXT NOT NULL,
	severity SMALLINT NOT NULL,
	crew_count INTEGER NOT NULL,
	duration_class TEXT NOT NULL,
	estimated_cost NUMERIC(14, 2) NOT NULL,
	currency TEXT NOT NULL,
	description TEXT NOT NULL,
	status TEXT NOT NULL,
	revision INTEGER NOT NULL,
	issued_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS work_orders_source ON work_orders (source_id);`

// WorkOrderRepository persists work orders.
type WorkOrderRepository struct {
	db *sql.DB
}

// NewWorkOrderRepository constructs a repository.
func NewWorkOrderRepository(db *sql.DB) *WorkOrderRepository {
	return &WorkOrderRepository{db: db}
}

// Migrate creates the work order table when missing.
func (r *WorkOrderRepository) Migrate(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("work order repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, workOrdersSchema)
	return err
}

// UpsertWorkOrder stores a work order revision. Older revisions never overwrite newer ones.
func (r *WorkOrderRepository) UpsertWorkOrder(ctx context.Context, order workorders.WorkOrder) error {
	if r == nil || r.db == nil {
		return errors.New("work order repo: nil db")
	}
	if order.ID == "" || order.SourceID == "" {
		return errors.New("work order repo: missing fields")
	}
	meterIDs := order.MeterIDs
	if meterIDs == nil {
		meterIDs = []string{}
	}
	meters, err := json.Marshal(meterIDs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO work_orders (
	order_id, source_kind, source_id, source_type, feeder_id, region, meter_ids,
	order_type, severity, crew_count, duration_class, estimated_cost, currency,
	description, status, revision, issued_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7,
	$8, $9, $10, $11, $12, $13,
	$14, $15, $16, $17, $18
)
ON CONFLICT (order_id) DO UPDATE SET
	meter_ids = EXCLUDED.meter_ids,
	severity = EXCLUDED.severity,
	crew_count = EXCLUDED.crew_count,
	duration_class = EXCLUDED.duration_class,
	estimated_cost = EXCLUDED.estimated_cost,
	description = EXCLUDED.description,
	status = EXCLUDED.status,
	revision = EXCLUDED.revision,
	updated_at = EXCLUDED.updated_at
WHERE work_orders.revision < EXCLUDED.revision`,
		order.ID,
		string(order.SourceKind),
		order.SourceID,
		string(order.SourceType),
		order.FeederID,
		order.Region,
		string(meters),
		string(order.Type),
		int(order.Severity),
		order.CrewCount,
		string(order.DurationClass),
		order.EstimatedCost,
		order.Currency,
		order.Description,
		string(order.Status),
		order.Revision,
		order.IssuedAt.UTC(),
		order.UpdatedAt.UTC(),
	)
	return err
}

// GetBySource fetches the order derived from an event or incident id.
func (r *WorkOrderRepository) GetBySource(ctx context.Context, sourceID string) (workorders.WorkOrder, error) {
	if r == nil || r.db == nil {
		return workorders.WorkOrder{}, errors.New("work order repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT order_id, source_kind, source_id, source_type, feeder_id, region, meter_ids,
	order_type, severity, crew_count, duration_class, estimated_cost, currency,
	description, status, revision, issued_at, updated_at
FROM work_orders
WHERE source_id = $1`, sourceID)

	var (
		order      workorders.WorkOrder
		sourceKind string
		sourceType string
		meters     []byte
		orderType  string
		severity   int
		duration   string
		status     string
	)
	err := row.Scan(
		&order.ID,
		&sourceKind,
		&order.SourceID,
		&sourceType,
		&order.FeederID,
		&order.Region,
		&meters,
		&orderType,
		&severity,
		&order.CrewCount,
		&duration,
		&order.EstimatedCost,
		&order.Currency,
		&order.Description,
		&status,
		&order.Revision,
		&order.IssuedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return workorders.WorkOrder{}, fmt.Errorf("%w: source %s", workorders.ErrNotFound, sourceID)
	}
	if err != nil {
		return workorders.WorkOrder{}, err
	}
	if err := json.Unmarshal(meters, &order.MeterIDs); err != nil {
		return workorders.WorkOrder{}, fmt.Errorf("work order repo: decode meters: %w", err)
	}
	order.SourceKind = workorders.SourceKind(sourceKind)
	order.SourceType = events.Type(sourceType)
	order.Type = workorders.Type(orderType)
	order.Severity = events.Severity(severity)
	order.DurationClass = workorders.DurationClass(duration)
	order.Status = workorders.Status(status)
	order.IssuedAt = order.IssuedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}
