package application

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	events "meter-insights/internal/events/domain"
	"meter-insights/internal/keyed"
	outage "meter-insights/internal/outage/domain"
)

// DefaultWindow is the default outage clustering window.
const DefaultWindow = 15 * time.Minute

const defaultClosedRetention = 1000

// Change describes what an observation did to a feeder's incident.
type Change string

const (
	ChangeIgnored  Change = "ignored"
	ChangeStale    Change = "stale"
	ChangeOpened   Change = "opened"
	ChangeExtended Change = "extended"
	ChangeClosed   Change = "closed"
)

// Update is the result of observing one event.
type Update struct {
	Change   Change
	Incident *outage.Incident
	// Closed is set when the event arrived after the open incident's window
	// and the old incident was closed before the new one opened.
	Closed *outage.Incident
}

// Query filters incidents.
type Query struct {
	FeederID string
	Status   outage.Status
}

type feederState struct {
	open *outage.Incident
}

// Aggregator clusters interruption events by feeder and time window.
type Aggregator struct {
	window    time.Duration
	policy    outage.Policy
	retention int
	idPrefix  string
	feeders   *keyed.Store[feederState]
	seq       atomic.Uint64

	mu     sync.RWMutex
	closed []outage.Incident
}

// Option configures the aggregator.
type Option func(*Aggregator)

// WithPolicy overrides the cause/priority policy.
func WithPolicy(policy outage.Policy) Option {
	return func(a *Aggregator) {
		if policy.FeederLevelMeters > 0 {
			a.policy = policy
		}
	}
}

// WithClosedRetention bounds how many closed incidents are kept for queries.
func WithClosedRetention(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.retention = n
		}
	}
}

// WithIDPrefix overrides the incident id prefix.
func WithIDPrefix(prefix string) Option {
	return func(a *Aggregator) {
		if prefix != "" {
			a.idPrefix = prefix
		}
	}
}

// NewAggregator constructs an aggregator with outage window w.
func NewAggregator(w time.Duration, opts ...Option) (*Aggregator, error) {
	if w <= 0 {
		return nil, errors.New("outage aggregator: window must be positive")
	}
	a := &Aggregator{
		window:    w,
		policy:    outage.DefaultPolicy(),
		retention: defaultClosedRetention,
		idPrefix:  "INC",
		feeders:   keyed.NewStore[feederState](nil),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Window returns the clustering window.
func (a *Aggregator) Window() time.Duration {
	return a.window
}

// Observe merges an interruption event into its feeder's incident. Other
// event types are ignored.
func (a *Aggregator) Observe(evt events.Event) Update {
	if evt.Type != events.TypeInterruption || evt.FeederID == "" {
		return Update{Change: ChangeIgnored}
	}
	var out Update
	a.feeders.Do(evt.FeederID, func(st *feederState) {
		out = a.observe(st, evt)
	})
	return out
}

func (a *Aggregator) observe(st *feederState, evt events.Event) Update {
	ts := evt.Timestamp
	if st.open == nil {
		if evt.Late {
			return Update{Change: ChangeStale}
		}
		st.open = a.newIncident(evt)
		return Update{Change: ChangeOpened, Incident: snapshot(st.open)}
	}

	inc := st.open
	switch {
	case ts.After(inc.WindowEnd):
		if evt.Late {
			return Update{Change: ChangeStale}
		}
		closed := a.close(inc, inc.WindowEnd)
		st.open = a.newIncident(evt)
		return Update{Change: ChangeOpened, Incident: snapshot(st.open), Closed: &closed}
	case ts.Before(inc.WindowStart.Add(-a.window)):
		return Update{Change: ChangeStale}
	}

	added := inc.AddMeter(evt.MeterID)
	if evt.Late && !added {
		return Update{Change: ChangeIgnored, Incident: snapshot(inc)}
	}
	inc.SourceEventIDs = append(inc.SourceEventIDs, evt.ID)
	if evt.Voltage > inc.MaxVoltage {
		inc.MaxVoltage = evt.Voltage
	}
	if !evt.Late {
		if end := ts.Add(a.window); end.After(inc.WindowEnd) {
			inc.WindowEnd = end
		}
		if ts.Before(inc.WindowStart) {
			inc.WindowStart = ts
		}
	}
	inc.Revision++
	inc.Derive(a.policy)
	return Update{Change: ChangeExtended, Incident: snapshot(inc)}
}

// Sweep closes every open incident whose window ended before now.
func (a *Aggregator) Sweep(now time.Time) []outage.Incident {
	var closed []outage.Incident
	a.feeders.Range(func(_ string, st *feederState) {
		if st.open == nil || !now.After(st.open.WindowEnd) {
			return
		}
		closed = append(closed, a.close(st.open, st.open.WindowEnd))
		st.open = nil
	})
	return closed
}

// Flush closes every open incident, used on shutdown. ClosedAt is now
// clamped to the incident window.
func (a *Aggregator) Flush(now time.Time) []outage.Incident {
	var closed []outage.Incident
	a.feeders.Range(func(_ string, st *feederState) {
		if st.open == nil {
			return
		}
		at := now
		if st.open.WindowEnd.Before(at) {
			at = st.open.WindowEnd
		}
		if at.Before(st.open.WindowStart) {
			at = st.open.WindowStart
		}
		closed = append(closed, a.close(st.open, at))
		st.open = nil
	})
	return closed
}

// Open returns the open incident for a feeder.
func (a *Aggregator) Open(feederID string) (outage.Incident, bool) {
	var (
		out outage.Incident
		ok  bool
	)
	a.feeders.Peek(feederID, func(st *feederState) {
		if st.open != nil {
			out, ok = st.open.Clone(), true
		}
	})
	return out, ok
}

// OpenCount returns how many feeders have an open incident.
func (a *Aggregator) OpenCount() int {
	count := 0
	a.feeders.Range(func(_ string, st *feederState) {
		if st.open != nil {
			count++
		}
	})
	return count
}

// Incidents returns incidents matching q ordered by window start, then id.
func (a *Aggregator) Incidents(q Query) []outage.Incident {
	var out []outage.Incident
	if q.Status == "" || q.Status == outage.StatusClosed {
		a.mu.RLock()
		for _, inc := range a.closed {
			if q.FeederID == "" || inc.FeederID == q.FeederID {
				out = append(out, inc.Clone())
			}
		}
		a.mu.RUnlock()
	}
	if q.Status == "" || q.Status == outage.StatusOpen {
		collect := func(_ string, st *feederState) {
			if st.open != nil {
				out = append(out, st.open.Clone())
			}
		}
		if q.FeederID != "" {
			a.feeders.Peek(q.FeederID, func(st *feederState) { collect(q.FeederID, st) })
		} else {
			a.feeders.Range(collect)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].WindowStart.Equal(out[j].WindowStart) {
			return out[i].WindowStart.Before(out[j].WindowStart)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get returns an incident by id.
func (a *Aggregator) Get(id string) (outage.Incident, error) {
	for _, inc := range a.Incidents(Query{}) {
		if inc.ID == id {
			return inc, nil
		}
	}
	return outage.Incident{}, fmt.Errorf("%w: %s", outage.ErrNotFound, id)
}

func (a *Aggregator) newIncident(evt events.Event) *outage.Incident {
	inc := &outage.Incident{
		ID:               fmt.Sprintf("%s-%06d", a.idPrefix, a.seq.Add(1)),
		FeederID:         evt.FeederID,
		Region:           evt.Region,
		Status:           outage.StatusOpen,
		WindowStart:      evt.Timestamp,
		WindowEnd:        evt.Timestamp.Add(a.window),
		AffectedMeterIDs: []string{evt.MeterID},
		MaxVoltage:       evt.Voltage,
		SourceEventIDs:   []string{evt.ID},
		Revision:         1,
	}
	inc.Derive(a.policy)
	return inc
}

func (a *Aggregator) close(inc *outage.Incident, at time.Time) outage.Incident {
	inc.Status = outage.StatusClosed
	inc.ClosedAt = at
	inc.Revision++
	closed := inc.Clone()

	a.mu.Lock()
	a.closed = append(a.closed, closed)
	if over := len(a.closed) - a.retention; over > 0 {
		a.closed = append([]outage.Incident(nil), a.closed[over:]...)
	}
	a.mu.Unlock()
	return closed.Clone()
}

func snapshot(inc *outage.Incident) *outage.Incident {
	clone := inc.Clone()
	return &clone
}
