package pipeline

import (
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"meter-insights/internal/analytics/domain/rolling"
	"meter-insights/internal/config"
	"meter-insights/internal/eventing"
	"meter-insights/internal/events/classifier"
	events "meter-insights/internal/events/domain"
	"meter-insights/internal/keyed"
	outageapp "meter-insights/internal/outage/application"
	woapp "meter-insights/internal/workorders/application"
)

// ErrClosed is returned by Ingest after Shutdown.
var ErrClosed = errors.New("pipeline: closed")

// Clock provides time for sweeps and shutdown.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

type meterState struct {
	seen     bool
	lastSeen time.Time
	feederID string
	power    float64
}

// Pipeline turns readings into events, incidents and work orders.
type Pipeline struct {
	cfg         config.Config
	tracker     *rolling.Tracker
	classifier  *classifier.Classifier
	aggregator  *outageapp.Aggregator
	synthesizer *woapp.Synthesizer
	bus         eventing.EventBus
	clock       Clock
	logger      *log.Logger

	meters *keyed.Store[meterState]

	mu     sync.RWMutex
	events []events.Event

	// lifecycle is held shared by Ingest and exclusively by Shutdown, so no
	// ingest can open an incident after the shutdown flush.
	lifecycle sync.RWMutex
	closed    atomic.Bool
	shutdown  sync.Once
}

// Option customizes the pipeline.
type Option func(*Pipeline)

// WithClock assigns the sweep and shutdown clock.
func WithClock(clock Clock) Option {
	return func(p *Pipeline) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithBus assigns the bus that receives pipeline messages.
func WithBus(bus eventing.EventBus) Option {
	return func(p *Pipeline) {
		if bus != nil {
			p.bus = bus
		}
	}
}

// New builds a pipeline and its components from cfg.
func New(cfg config.Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clf, err := classifier.New(classifier.DefaultCatalog(cfg.Thresholds),
		classifier.WithIDPrefix(idPrefix("EVT", cfg.IDNamespace)),
	)
	if err != nil {
		return nil, err
	}
	agg, err := outageapp.NewAggregator(cfg.OutageWindow,
		outageapp.WithPolicy(cfg.OutagePolicy),
		outageapp.WithClosedRetention(cfg.ClosedRetention),
		outageapp.WithIDPrefix(idPrefix("INC", cfg.IDNamespace)),
	)
	if err != nil {
		return nil, err
	}
	syn, err := woapp.NewSynthesizer(
		woapp.WithCostTable(cfg.WorkOrders.Costs.CostTable()),
		woapp.WithMinSeverity(cfg.WorkOrders.MinSeverity),
		woapp.WithCrewCapacity(cfg.WorkOrders.CrewCapacity),
		woapp.WithCooldown(cfg.WorkOrders.Cooldown),
		woapp.WithIDPrefix(idPrefix("WO", cfg.IDNamespace)),
	)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:         cfg,
		tracker:     rolling.NewTracker(cfg.WindowSize),
		classifier:  clf,
		aggregator:  agg,
		synthesizer: syn,
		bus:         eventing.NopBus{},
		clock:       systemClock{},
		logger:      log.New(io.Discard, "", 0),
		meters:      keyed.NewStore[meterState](nil),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func idPrefix(kind, namespace string) string {
	if namespace == "" {
		return kind
	}
	return kind + "-" + namespace
}

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() config.Config {
	return p.cfg
}

func (p *Pipeline) record(list []events.Event) {
	if len(list) == 0 {
		return
	}
	p.mu.Lock()
	p.events = append(p.events, list...)
	if limit := p.cfg.EventRetention; limit > 0 {
		if over := len(p.events) - limit; over > 0 {
			p.events = append([]events.Event(nil), p.events[over:]...)
		}
	}
	p.mu.Unlock()
}
