package export

import (
	"time"

	events "meter-insights/internal/events/domain"
	outageapp "meter-insights/internal/outage/application"
	outage "meter-insights/internal/outage/domain"
	"meter-insights/internal/pipeline"
	"meter-insights/internal/routing"
	workorders "meter-insights/internal/workorders/domain"
)

// Report is the operations snapshot rendered by the XLSX and PDF builders.
type Report struct {
	GeneratedAt  time.Time
	Summary      routing.Summary
	OrderSummary routing.OrderSummary
	Events       []events.Event
	Incidents    []outage.Incident
	Orders       []workorders.WorkOrder
	Loads        []pipeline.FeederLoad
}

// Snapshot collects a report from the pipeline. Events are filtered by f and
// listed in routing order.
func Snapshot(p *pipeline.Pipeline, f routing.Filter, now time.Time) Report {
	list := p.Events(f)
	return Report{
		GeneratedAt:  now.UTC(),
		Summary:      routing.Summarize(list),
		OrderSummary: p.OrderSummary(),
		Events:       routing.SortEvents(list),
		Incidents:    p.Incidents(outageapp.Query{}),
		Orders:       p.WorkOrders(),
		Loads:        p.FeederLoad(),
	}
}
