package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meter-insights/internal/analytics/domain/rolling"
	"meter-insights/internal/eventing"
	"meter-insights/internal/events/classifier"
	events "meter-insights/internal/events/domain"
	"meter-insights/internal/observability/metrics"
	outageapp "meter-insights/internal/outage/application"
	outage "meter-insights/internal/outage/domain"
	telemetry "meter-insights/internal/telemetry/domain"
	woapp "meter-insights/internal/workorders/application"
	workorders "meter-insights/internal/workorders/domain"
)

// Result describes what one reading produced.
type Result struct {
	Reading   telemetry.Reading      `json:"reading"`
	Late      bool                   `json:"late,omitempty"`
	Events    []events.Event         `json:"events"`
	Incidents []outage.Incident      `json:"incidents,omitempty"`
	Orders    []workorders.WorkOrder `json:"orders,omitempty"`
}

// Ingest validates and processes one reading. Out-of-order readings are
// still classified and returned together with ErrOutOfOrderReading.
func (p *Pipeline) Ingest(ctx context.Context, r telemetry.Reading) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	p.lifecycle.RLock()
	defer p.lifecycle.RUnlock()
	if p.closed.Load() {
		return Result{}, ErrClosed
	}
	start := time.Now()
	r = r.Normalize()
	if err := r.Validate(); err != nil {
		metrics.ObserveReading(metrics.ReadingRejected, time.Since(start))
		metrics.IncRejected("invalid")
		p.publish(ctx, eventing.ReadingRejected{Reading: r, Reason: err.Error()})
		return Result{Reading: r}, err
	}

	res := Result{Reading: r}
	var classifyErr error
	p.meters.Do(r.MeterID, func(st *meterState) {
		res.Late = st.seen && r.Timestamp.Before(st.lastSeen)
		var stats rolling.Stats
		if res.Late {
			stats = p.tracker.Peek(rolling.Key(r.MeterID, rolling.MetricActivePower), r.ActivePower)
		} else {
			stats = p.tracker.Update(rolling.Key(r.MeterID, rolling.MetricActivePower), r.ActivePower)
			p.tracker.Update(rolling.Key(r.MeterID, rolling.MetricVoltage), r.Voltage)
			st.seen = true
			st.lastSeen = r.Timestamp
			st.feederID = r.FeederID
			st.power = r.ActivePower
		}
		res.Events, classifyErr = p.classifier.Classify(classifier.Input{Reading: r, PowerStats: stats})
	})
	for i := range res.Events {
		res.Events[i].Late = res.Late
	}
	p.record(res.Events)

	for _, evt := range res.Events {
		metrics.IncEvent(string(evt.Type), evt.Severity.String())
		p.publish(ctx, eventing.EventClassified{Event: evt})
		if evt.Type == events.TypeInterruption {
			p.observeInterruption(ctx, evt, &res)
			continue
		}
		p.synthesize(ctx, evt.ID, &res, func() (woapp.Result, error) {
			return p.synthesizer.FromEvent(evt)
		})
	}

	result := metrics.ReadingAccepted
	var err error
	if res.Late {
		result = metrics.ReadingLate
		err = fmt.Errorf("%w: meter=%s ts=%s", telemetry.ErrOutOfOrderReading, r.MeterID, r.Timestamp.Format(time.RFC3339))
	}
	if classifyErr != nil {
		err = errors.Join(err, classifyErr)
	}
	metrics.ObserveReading(result, time.Since(start))
	return res, err
}

// IngestBatch processes readings in order and joins the per-reading errors.
func (p *Pipeline) IngestBatch(ctx context.Context, readings []telemetry.Reading) ([]Result, error) {
	results := make([]Result, 0, len(readings))
	var errs []error
	for i, r := range readings {
		res, err := p.Ingest(ctx, r)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrClosed) {
				errs = append(errs, err)
				break
			}
			errs = append(errs, fmt.Errorf("reading %d: %w", i, err))
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

func (p *Pipeline) observeInterruption(ctx context.Context, evt events.Event, res *Result) {
	update := p.aggregator.Observe(evt)
	if update.Closed != nil {
		p.incidentClosed(ctx, *update.Closed)
		res.Incidents = append(res.Incidents, *update.Closed)
	}
	if update.Incident == nil {
		return
	}
	inc := *update.Incident
	switch update.Change {
	case outageapp.ChangeOpened:
		metrics.IncIncident(string(outageapp.ChangeOpened))
		p.publish(ctx, eventing.IncidentOpened{Incident: inc})
	case outageapp.ChangeExtended:
		metrics.IncIncident(string(outageapp.ChangeExtended))
		p.publish(ctx, eventing.IncidentExtended{Incident: inc})
	default:
		return
	}
	metrics.SetOpenIncidents(p.aggregator.OpenCount())
	res.Incidents = append(res.Incidents, inc)
	p.synthesize(ctx, inc.ID, res, func() (woapp.Result, error) {
		return p.synthesizer.FromIncident(inc)
	})
}

func (p *Pipeline) synthesize(ctx context.Context, sourceID string, res *Result, build func() (woapp.Result, error)) {
	out, err := build()
	if err != nil {
		metrics.IncSynthesisFailed()
		p.logger.Printf("pipeline: WorkOrderSynthesisFailed source=%s err=%v", sourceID, err)
		return
	}
	if out.Order == nil {
		return
	}
	metrics.IncWorkOrder(string(out.Order.Type), string(out.Outcome))
	switch out.Outcome {
	case woapp.OutcomeIssued:
		p.publish(ctx, eventing.WorkOrderIssued{Order: *out.Order})
	case woapp.OutcomeRevised:
		p.publish(ctx, eventing.WorkOrderRevised{Order: *out.Order})
	default:
		return
	}
	res.Orders = append(res.Orders, *out.Order)
}

func (p *Pipeline) incidentClosed(ctx context.Context, inc outage.Incident) {
	metrics.IncIncident(string(outageapp.ChangeClosed))
	p.publish(ctx, eventing.IncidentClosed{Incident: inc})
}

func (p *Pipeline) publish(ctx context.Context, msg any) {
	if err := p.bus.Publish(ctx, msg); err != nil {
		metrics.IncSinkError(eventing.ShortName(msg))
		p.logger.Printf("pipeline: publish %s failed: %v", eventing.ShortName(msg), err)
	}
}
