package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"meter-insights/internal/config"
	"meter-insights/internal/eventing"
	eventrepo "meter-insights/internal/events/infrastructure/postgres"
	outage "meter-insights/internal/outage/domain"
	incidentrepo "meter-insights/internal/outage/infrastructure/postgres"
	"meter-insights/internal/pipeline"
	telemetry "meter-insights/internal/telemetry/domain"
	orderrepo "meter-insights/internal/workorders/infrastructure/postgres"
)

func TestPipelineSinkPostgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	events := eventrepo.NewEventRepository(db)
	incidents := incidentrepo.NewIncidentRepository(db)
	orders := orderrepo.NewWorkOrderRepository(db)
	for _, migrate := range []func(context.Context) error{events.Migrate, incidents.Migrate, orders.Migrate} {
		if err := migrate(ctx); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}

	// A per-run namespace keeps ids and feeders independent of earlier runs.
	namespace := time.Now().UTC().Format("20060102T150405.000000")
	feederID := "F-it-" + namespace
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	bus := eventing.NewInMemoryBus()
	sink, err := pipeline.NewSink(events, incidents, orders)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	sink.Subscribe(bus)

	cfg := config.Default()
	cfg.WorkOrders.Cooldown = 0
	cfg.IDNamespace = namespace
	p, err := pipeline.New(cfg, pipeline.WithBus(bus))
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	readings := []telemetry.Reading{
		{MeterID: feederID + "-M1", FeederID: feederID, Timestamp: start, Voltage: 127, ActivePower: 0.01, PowerFactor: 0.95},
		{MeterID: feederID + "-M2", FeederID: feederID, Timestamp: start.Add(time.Minute), Voltage: 127, ActivePower: 0.02, PowerFactor: 0.95},
	}
	if _, err := p.IngestBatch(ctx, readings); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	p.Shutdown(ctx)

	stored, err := events.ListByFeeder(ctx, feederID, start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored events, got %d", len(stored))
	}

	closed, err := incidents.ListByFeeder(ctx, feederID, outage.StatusClosed)
	if err != nil {
		t.Fatalf("list incidents: %v", err)
	}
	if len(closed) != 1 || closed[0].Affected() != 2 {
		t.Fatalf("expected one closed incident with 2 meters, got %+v", closed)
	}

	order, err := orders.GetBySource(ctx, closed[0].ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Revision != 2 || len(order.MeterIDs) != 2 {
		t.Fatalf("expected revised incident order, got %+v", order)
	}
}
