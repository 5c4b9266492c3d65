package application

import (
	"errors"
	"fmt"
	"sync"
	"time"

	events "meter-insights/internal/events/domain"
	outage "meter-insights/internal/outage/domain"
	workorders "meter-insights/internal/workorders/domain"
)

const (
	DefaultCrewCapacity = 4
	DefaultCooldown     = time.Hour
)

// Outcome describes what a synthesis call did.
type Outcome string

const (
	OutcomeIssued    Outcome = "issued"
	OutcomeRevised   Outcome = "revised"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeCooldown  Outcome = "cooldown"
	OutcomeSkipped   Outcome = "skipped"
)

// Result is returned by FromEvent and FromIncident. Order is set for issued,
// revised and duplicate outcomes.
type Result struct {
	Outcome Outcome
	Order   *workorders.WorkOrder
}

// Synthesizer converts qualifying events and incidents into work orders.
type Synthesizer struct {
	costs        workorders.CostTable
	minSeverity  events.Severity
	crewCapacity int
	cooldown     time.Duration
	idPrefix     string

	mu       sync.Mutex
	seq      uint64
	orders   []*workorders.WorkOrder
	bySource map[string]*workorders.WorkOrder
	lastSent map[string]time.Time
}

// Option configures the synthesizer.
type Option func(*Synthesizer)

func WithCostTable(costs workorders.CostTable) Option {
	return func(s *Synthesizer) {
		s.costs = costs
	}
}

func WithMinSeverity(sev events.Severity) Option {
	return func(s *Synthesizer) {
		if sev.Valid() {
			s.minSeverity = sev
		}
	}
}

func WithCrewCapacity(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.crewCapacity = n
		}
	}
}

// WithCooldown sets the per (meter, type) suppression period. Zero disables it.
func WithCooldown(d time.Duration) Option {
	return func(s *Synthesizer) {
		if d >= 0 {
			s.cooldown = d
		}
	}
}

func WithIDPrefix(prefix string) Option {
	return func(s *Synthesizer) {
		if prefix != "" {
			s.idPrefix = prefix
		}
	}
}

// NewSynthesizer constructs a synthesizer with the default cost table.
func NewSynthesizer(opts ...Option) (*Synthesizer, error) {
	s := &Synthesizer{
		costs:        workorders.DefaultCostTable(),
		minSeverity:  events.SeverityHigh,
		crewCapacity: DefaultCrewCapacity,
		cooldown:     DefaultCooldown,
		idPrefix:     "WO",
		bySource:     make(map[string]*workorders.WorkOrder),
		lastSent:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.costs.Currency == "" {
		return nil, errors.New("workorder synthesizer: currency is required")
	}
	return s, nil
}

// FromEvent issues a corrective or emergency order for a single-meter event.
// Interruption events are covered by their incident and are skipped.
func (s *Synthesizer) FromEvent(evt events.Event) (Result, error) {
	if evt.Type == events.TypeInterruption || !evt.Severity.AtLeast(s.minSeverity) {
		return Result{Outcome: OutcomeSkipped}, nil
	}
	if evt.ID == "" {
		return Result{Outcome: OutcomeSkipped}, fmt.Errorf("%w: event without id", workorders.ErrWorkOrderSynthesisFailed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.bySource[evt.ID]; ok {
		order := existing.Clone()
		return Result{Outcome: OutcomeDuplicate, Order: &order}, nil
	}
	key := evt.MeterID + "/" + string(evt.Type)
	if last, ok := s.lastSent[key]; ok && s.cooldown > 0 && absDuration(evt.Timestamp.Sub(last)) < s.cooldown {
		return Result{Outcome: OutcomeCooldown}, nil
	}
	cost, err := s.costs.EventCost(evt.Severity)
	if err != nil {
		return Result{Outcome: OutcomeSkipped}, fmt.Errorf("event %s: %w", evt.ID, err)
	}

	order := &workorders.WorkOrder{
		ID:            s.nextID(),
		SourceKind:    workorders.SourceEvent,
		SourceID:      evt.ID,
		SourceType:    evt.Type,
		FeederID:      evt.FeederID,
		Region:        evt.Region,
		MeterIDs:      []string{evt.MeterID},
		Type:          workorders.TypeFor(evt.Severity),
		Severity:      evt.Severity,
		CrewCount:     1,
		DurationClass: workorders.DurationForEvent(evt.Severity),
		EstimatedCost: cost,
		Currency:      s.costs.Currency,
		Description:   fmt.Sprintf("%s on meter %s: %s", evt.Type, evt.MeterID, evt.SuggestedAction),
		Status:        workorders.StatusOpen,
		Revision:      1,
		IssuedAt:      evt.Timestamp,
		UpdatedAt:     evt.Timestamp,
	}
	s.store(order)
	s.lastSent[key] = evt.Timestamp
	out := order.Clone()
	return Result{Outcome: OutcomeIssued, Order: &out}, nil
}

// FromIncident issues an emergency order for an open incident, or revises
// the existing order in place when the incident has grown.
func (s *Synthesizer) FromIncident(inc outage.Incident) (Result, error) {
	if inc.ID == "" || inc.Affected() == 0 {
		return Result{Outcome: OutcomeSkipped}, fmt.Errorf("%w: incident without id or meters", workorders.ErrWorkOrderSynthesisFailed)
	}
	affected := inc.Affected()
	crew := workorders.CrewCount(affected, s.crewCapacity)
	sev := events.SeverityCritical
	cost, err := s.costs.IncidentCost(sev, crew, affected)
	if err != nil {
		return Result{Outcome: OutcomeSkipped}, fmt.Errorf("incident %s: %w", inc.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.bySource[inc.ID]; ok {
		if len(existing.MeterIDs) == affected && existing.EstimatedCost.Equal(cost) {
			order := existing.Clone()
			return Result{Outcome: OutcomeDuplicate, Order: &order}, nil
		}
		existing.MeterIDs = append([]string(nil), inc.AffectedMeterIDs...)
		existing.CrewCount = crew
		existing.DurationClass = workorders.DurationForMeters(affected)
		existing.EstimatedCost = cost
		existing.Description = incidentDescription(inc)
		existing.Revision++
		existing.UpdatedAt = inc.WindowEnd
		order := existing.Clone()
		return Result{Outcome: OutcomeRevised, Order: &order}, nil
	}

	order := &workorders.WorkOrder{
		ID:            s.nextID(),
		SourceKind:    workorders.SourceIncident,
		SourceID:      inc.ID,
		SourceType:    events.TypeInterruption,
		FeederID:      inc.FeederID,
		Region:        inc.Region,
		MeterIDs:      append([]string(nil), inc.AffectedMeterIDs...),
		Type:          workorders.TypeFor(sev),
		Severity:      sev,
		CrewCount:     crew,
		DurationClass: workorders.DurationForMeters(affected),
		EstimatedCost: cost,
		Currency:      s.costs.Currency,
		Description:   incidentDescription(inc),
		Status:        workorders.StatusOpen,
		Revision:      1,
		IssuedAt:      inc.WindowStart,
		UpdatedAt:     inc.WindowEnd,
	}
	s.store(order)
	out := order.Clone()
	return Result{Outcome: OutcomeIssued, Order: &out}, nil
}

// Orders returns a copy of every order in issue order.
func (s *Synthesizer) Orders() []workorders.WorkOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]workorders.WorkOrder, 0, len(s.orders))
	for _, order := range s.orders {
		out = append(out, order.Clone())
	}
	return out
}

// BySource returns the order derived from an event or incident id.
func (s *Synthesizer) BySource(sourceID string) (workorders.WorkOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.bySource[sourceID]
	if !ok {
		return workorders.WorkOrder{}, workorders.ErrNotFound
	}
	return order.Clone(), nil
}

// Len returns the number of issued orders.
func (s *Synthesizer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Synthesizer) store(order *workorders.WorkOrder) {
	s.orders = append(s.orders, order)
	s.bySource[order.SourceID] = order
}

func (s *Synthesizer) nextID() string {
	s.seq++
	return fmt.Sprintf("%s-%06d", s.idPrefix, s.seq)
}

func incidentDescription(inc outage.Incident) string {
	return fmt.Sprintf("%s on feeder %s (%d meters): %s", inc.ID, inc.FeederID, inc.Affected(), inc.ProbableCause)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
