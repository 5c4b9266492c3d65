package apihttp

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	events "meter-insights/internal/events/domain"
	outageapp "meter-insights/internal/outage/application"
	outage "meter-insights/internal/outage/domain"
	"meter-insights/internal/pipeline"
	"meter-insights/internal/routing"
)

const timeLayout = time.RFC3339

// Handlers serves read views over a running pipeline.
type Handlers struct {
	pipeline *pipeline.Pipeline
	logger   *log.Logger
	now      func() time.Time
}

// Option customizes the handlers.
type Option func(*Handlers)

// WithNow overrides the clock used for report timestamps.
func WithNow(now func() time.Time) Option {
	return func(h *Handlers) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandlers constructs the API handlers.
func NewHandlers(p *pipeline.Pipeline, logger *log.Logger, opts ...Option) (*Handlers, error) {
	if p == nil {
		return nil, errors.New("api: nil pipeline")
	}
	if logger == nil {
		logger = log.Default()
	}
	h := &Handlers{
		pipeline: p,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register mounts every route on mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/events", h.Events)
	mux.HandleFunc("/api/v1/queues", h.Queues)
	mux.HandleFunc("/api/v1/incidents", h.Incidents)
	mux.HandleFunc("/api/v1/incidents/{id}", h.Incident)
	mux.HandleFunc("/api/v1/workorders", h.WorkOrders)
	mux.HandleFunc("/api/v1/summary", h.Summary)
	mux.HandleFunc("/api/v1/feeders/load", h.FeederLoad)
	mux.HandleFunc("/api/v1/sweep", h.Sweep)
	mux.HandleFunc("/api/v1/exports/events.csv", h.ExportEventsCSV)
	mux.HandleFunc("/api/v1/exports/report.xlsx", h.ExportReportXLSX)
	mux.HandleFunc("/api/v1/exports/report.pdf", h.ExportReportPDF)
}

// Events handles GET /api/v1/events.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	list := h.pipeline.Events(filter)
	if list == nil {
		list = []events.Event{}
	}
	writeJSON(w, list)
}

// Queues handles GET /api/v1/queues.
func (h *Handlers) Queues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	queues := h.pipeline.Queues(filter)
	if filter.Destination != "" {
		writeJSON(w, nonNilItems(queues.Queue(filter.Destination)))
		return
	}
	writeJSON(w, map[string][]routing.Item{
		string(events.DestinationOperations): nonNilItems(queues.Operations),
		string(events.DestinationCommercial): nonNilItems(queues.Commercial),
		string(events.DestinationCustomer):   nonNilItems(queues.Customer),
	})
}

// Incidents handles GET /api/v1/incidents.
func (h *Handlers) Incidents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	query := outageapp.Query{FeederID: r.URL.Query().Get("feeder_id")}
	switch status := outage.Status(r.URL.Query().Get("status")); status {
	case "", outage.StatusOpen, outage.StatusClosed:
		query.Status = status
	default:
		http.Error(w, "status must be open or closed", http.StatusBadRequest)
		return
	}
	list := h.pipeline.Incidents(query)
	if list == nil {
		list = []outage.Incident{}
	}
	writeJSON(w, list)
}

// Incident handles GET /api/v1/incidents/{id}.
func (h *Handlers) Incident(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	inc, err := h.pipeline.Incident(r.PathValue("id"))
	if errors.Is(err, outage.ErrNotFound) {
		http.Error(w, "incident not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "query incident error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, inc)
}

// WorkOrders handles GET /api/v1/workorders.
func (h *Handlers) WorkOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]any{
		"orders":  h.pipeline.WorkOrders(),
		"summary": h.pipeline.OrderSummary(),
	})
}

// Summary handles GET /api/v1/summary.
func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, h.pipeline.Summary(filter))
}

// FeederLoad handles GET /api/v1/feeders/load.
func (h *Handlers) FeederLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	loads := h.pipeline.FeederLoad()
	if loads == nil {
		loads = []pipeline.FeederLoad{}
	}
	writeJSON(w, loads)
}

// Sweep handles POST /api/v1/sweep and closes incidents whose window has elapsed.
func (h *Handlers) Sweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	closed := h.pipeline.Sweep(r.Context())
	if closed == nil {
		closed = []outage.Incident{}
	}
	h.logger.Printf("api: sweep closed=%d", len(closed))
	writeJSON(w, map[string]any{"closed": closed})
}

func parseFilter(r *http.Request) (routing.Filter, error) {
	q := r.URL.Query()
	filter := routing.Filter{
		MeterID:     q.Get("meter_id"),
		Destination: events.Destination(q.Get("destination")),
		Type:        events.Type(q.Get("type")),
	}
	if value := q.Get("min_severity"); value != "" {
		sev, err := events.ParseSeverity(value)
		if err != nil {
			return routing.Filter{}, errors.New("min_severity must be low, medium, high or critical")
		}
		filter.MinSeverity = sev
	}
	if value := q.Get("feeder_id"); value != "" {
		for _, id := range strings.Split(value, ",") {
			if id = strings.TrimSpace(id); id != "" {
				filter.FeederIDs = append(filter.FeederIDs, id)
			}
		}
	}
	if filter.Destination != "" && !validDestination(filter.Destination) {
		return routing.Filter{}, errors.New("destination must be operations, commercial or customer")
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return routing.Filter{}, errors.New("unknown event type")
	}
	var err error
	if filter.Since, err = parseOptionalTime(r, "since"); err != nil {
		return routing.Filter{}, err
	}
	if filter.Until, err = parseOptionalTime(r, "until"); err != nil {
		return routing.Filter{}, err
	}
	if !filter.Since.IsZero() && !filter.Until.IsZero() && !filter.Until.After(filter.Since) {
		return routing.Filter{}, errors.New("until must be after since")
	}
	return filter, nil
}

func parseOptionalTime(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}

func validDestination(d events.Destination) bool {
	for _, known := range events.Destinations {
		if d == known {
			return true
		}
	}
	return false
}

func nonNilItems(items []routing.Item) []routing.Item {
	if items == nil {
		return []routing.Item{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}
