package pipeline

import (
	"context"
	"errors"
	"time"

	"meter-insights/internal/observability/metrics"
	outage "meter-insights/internal/outage/domain"
	telemetry "meter-insights/internal/telemetry/domain"
)

// Sweep closes incidents whose window has elapsed at the clock's current time.
func (p *Pipeline) Sweep(ctx context.Context) []outage.Incident {
	return p.SweepAt(ctx, p.clock.Now())
}

// SweepAt closes incidents whose window ended before now.
func (p *Pipeline) SweepAt(ctx context.Context, now time.Time) []outage.Incident {
	closed := p.aggregator.Sweep(now)
	for _, inc := range closed {
		p.incidentClosed(ctx, inc)
	}
	if len(closed) > 0 {
		metrics.SetOpenIncidents(p.aggregator.OpenCount())
		p.logger.Printf("pipeline: sweep closed %d incident(s) at %s", len(closed), now.Format(time.RFC3339))
	}
	return closed
}

// Shutdown stops ingestion and closes every open incident. It is idempotent.
func (p *Pipeline) Shutdown(ctx context.Context) []outage.Incident {
	var closed []outage.Incident
	p.shutdown.Do(func() {
		p.lifecycle.Lock()
		p.closed.Store(true)
		closed = p.aggregator.Flush(p.clock.Now())
		p.lifecycle.Unlock()
		for _, inc := range closed {
			p.incidentClosed(ctx, inc)
		}
		metrics.SetOpenIncidents(0)
		p.logger.Printf("pipeline: shutdown flushed %d open incident(s)", len(closed))
	})
	return closed
}

// Run ingests readings and sweeps on every tick until ctx is done or the
// readings channel closes, then shuts the pipeline down. Readings and ticks
// are handled by a single loop, so a sweep never interleaves with an ingest.
// Readings already buffered when a tick arrives are ingested before the sweep.
func (p *Pipeline) Run(ctx context.Context, readings <-chan telemetry.Reading, ticks <-chan time.Time) error {
	defer p.Shutdown(context.WithoutCancel(ctx))
	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-readings:
			if !ok {
				return nil
			}
			if err := p.runIngest(ctx, r); err != nil {
				return err
			}
		case now, ok := <-ticks:
			if !ok {
				ticks = nil
				continue
			}
			for n := len(readings); n > 0; n-- {
				r, ok := <-readings
				if !ok {
					return nil
				}
				if err := p.runIngest(ctx, r); err != nil {
					return err
				}
			}
			p.SweepAt(ctx, now)
		}
	}
}

func (p *Pipeline) runIngest(ctx context.Context, r telemetry.Reading) error {
	_, err := p.Ingest(ctx, r)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrClosed):
		return err
	case ctx.Err() != nil:
		return nil
	}
	p.logger.Printf("pipeline: ingest meter=%s: %v", r.MeterID, err)
	return nil
}
