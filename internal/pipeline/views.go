package pipeline

import (
	"sort"

	events "meter-insights/internal/events/domain"
	outageapp "meter-insights/internal/outage/application"
	outage "meter-insights/internal/outage/domain"
	"meter-insights/internal/routing"
	workorders "meter-insights/internal/workorders/domain"
)

// FeederLoad is the latest aggregate load of a feeder.
type FeederLoad struct {
	FeederID   string  `json:"feeder_id"`
	Meters     int     `json:"meters"`
	TotalKW    float64 `json:"total_kw"`
	CapacityKW float64 `json:"capacity_kw"`
	LoadingPct float64 `json:"loading_pct"`
	OpenOutage bool    `json:"open_outage"`
}

// Events returns retained events matching f in emission order.
func (p *Pipeline) Events(f routing.Filter) []events.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return f.Apply(p.events)
}

// Incidents returns incidents matching q.
func (p *Pipeline) Incidents(q outageapp.Query) []outage.Incident {
	return p.aggregator.Incidents(q)
}

// Incident returns one incident by id.
func (p *Pipeline) Incident(id string) (outage.Incident, error) {
	return p.aggregator.Get(id)
}

// WorkOrders returns every work order in issue order.
func (p *Pipeline) WorkOrders() []workorders.WorkOrder {
	return p.synthesizer.Orders()
}

// Queues routes retained events and open incidents matching f into
// destination queues.
func (p *Pipeline) Queues(f routing.Filter) routing.Queues {
	incidents := f.ApplyIncidents(p.aggregator.Incidents(outageapp.Query{Status: outage.StatusOpen}))
	return routing.Route(p.Events(f), incidents)
}

// Summary recomputes event counters from the retained events.
func (p *Pipeline) Summary(f routing.Filter) routing.Summary {
	return routing.Summarize(p.Events(f))
}

// OrderSummary recomputes work order counters.
func (p *Pipeline) OrderSummary() routing.OrderSummary {
	return routing.SummarizeOrders(p.synthesizer.Orders())
}

// FeederLoad sums the latest in-order active power per feeder.
func (p *Pipeline) FeederLoad() []FeederLoad {
	byFeeder := make(map[string]*FeederLoad)
	p.meters.Range(func(_ string, st *meterState) {
		if !st.seen {
			return
		}
		load, ok := byFeeder[st.feederID]
		if !ok {
			load = &FeederLoad{FeederID: st.feederID, CapacityKW: p.cfg.FeederCapacity}
			byFeeder[st.feederID] = load
		}
		load.Meters++
		load.TotalKW += st.power
	})
	out := make([]FeederLoad, 0, len(byFeeder))
	for _, load := range byFeeder {
		if load.CapacityKW > 0 {
			load.LoadingPct = load.TotalKW / load.CapacityKW * 100
		}
		_, load.OpenOutage = p.aggregator.Open(load.FeederID)
		out = append(out, *load)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FeederID < out[j].FeederID })
	return out
}
