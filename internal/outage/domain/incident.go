package outage

import (
	"errors"
	"sort"
	"time"

	events "meter-insights/internal/events/domain"
)

// ErrNotFound indicates a missing incident.
var ErrNotFound = errors.New("outage: incident not found")

// Status is the incident lifecycle state.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Probable causes derived from the affected meter pattern.
const (
	CauseFeeder      = "feeder-level outage, dispatch crew"
	CauseIsolated    = "isolated meter fault, verify service drop"
	CauseTransformer = "transformer outage, inspect distribution transformer"
	CausePartial     = "partial feeder outage, inspect secondary circuit"
)

// Policy configures how incidents are characterised.
type Policy struct {
	FeederLevelMeters int     `yaml:"feeder_level_meters"`
	DeadVoltage       float64 `yaml:"dead_voltage"`
}

// DefaultPolicy returns the default characterisation thresholds.
func DefaultPolicy() Policy {
	return Policy{FeederLevelMeters: 5, DeadVoltage: 10}
}

// Incident aggregates interruption events on one feeder within a rolling window.
type Incident struct {
	ID               string          `json:"incident_id"`
	FeederID         string          `json:"feeder_id"`
	Region           string          `json:"region"`
	Status           Status          `json:"status"`
	WindowStart      time.Time       `json:"window_start"`
	WindowEnd        time.Time       `json:"window_end"`
	ClosedAt         time.Time       `json:"closed_at,omitempty"`
	AffectedMeterIDs []string        `json:"affected_meter_ids"`
	MaxVoltage       float64         `json:"max_voltage"`
	ProbableCause    string          `json:"probable_cause"`
	Priority         events.Severity `json:"priority"`
	SourceEventIDs   []string        `json:"source_event_ids"`
	Revision         int             `json:"revision"`
}

// Affected returns the number of distinct affected meters.
func (i Incident) Affected() int {
	return len(i.AffectedMeterIDs)
}

// IsOpen reports whether the incident still accepts events.
func (i Incident) IsOpen() bool {
	return i.Status == StatusOpen
}

// HasMeter reports whether meterID is in the affected set.
func (i Incident) HasMeter(meterID string) bool {
	idx := sort.SearchStrings(i.AffectedMeterIDs, meterID)
	return idx < len(i.AffectedMeterIDs) && i.AffectedMeterIDs[idx] == meterID
}

// AddMeter inserts meterID into the sorted affected set; it reports false when already present.
func (i *Incident) AddMeter(meterID string) bool {
	idx := sort.SearchStrings(i.AffectedMeterIDs, meterID)
	if idx < len(i.AffectedMeterIDs) && i.AffectedMeterIDs[idx] == meterID {
		return false
	}
	i.AffectedMeterIDs = append(i.AffectedMeterIDs, "")
	copy(i.AffectedMeterIDs[idx+1:], i.AffectedMeterIDs[idx:])
	i.AffectedMeterIDs[idx] = meterID
	return true
}

// Derive recomputes probable cause and priority from the affected set.
func (i *Incident) Derive(p Policy) {
	i.ProbableCause = ProbableCause(i.Affected(), i.MaxVoltage, p)
	i.Priority = PriorityFor(i.Affected(), p)
}

// Clone returns a deep copy safe to hand to callers.
func (i Incident) Clone() Incident {
	i.AffectedMeterIDs = append([]string(nil), i.AffectedMeterIDs...)
	i.SourceEventIDs = append([]string(nil), i.SourceEventIDs...)
	return i
}

// ProbableCause derives the likely cause from the affected count and voltage pattern.
func ProbableCause(affected int, maxVoltage float64, p Policy) string {
	switch {
	case affected >= p.FeederLevelMeters:
		return CauseFeeder
	case affected <= 1:
		return CauseIsolated
	case maxVoltage < p.DeadVoltage:
		return CauseTransformer
	default:
		return CausePartial
	}
}

// PriorityFor scales incident priority with the affected meter count.
func PriorityFor(affected int, p Policy) events.Severity {
	switch {
	case affected >= p.FeederLevelMeters:
		return events.SeverityCritical
	case affected >= 2:
		return events.SeverityHigh
	default:
		return events.SeverityMedium
	}
}
