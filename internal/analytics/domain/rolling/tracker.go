package rolling

import (
	"math"

	"meter-insights/internal/keyed"
)

// DefaultWindowSize is used when a tracker is built with a non-positive size.
const DefaultWindowSize = 8

// Metric names tracked per meter.
const (
	MetricActivePower = "active_power"
	MetricVoltage     = "voltage"
)

// Stats describes a rolling window and the score of a value against it.
// Mean and StdDev are population statistics of the baseline window.
type Stats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	ZScore float64 `json:"z_score"`
}

// Key builds the tracker key for a meter metric.
func Key(meterID, metric string) string {
	return meterID + "/" + metric
}

type window struct {
	values []float64
	next   int
	full   bool
}

func (w *window) len() int {
	if w.full {
		return len(w.values)
	}
	return w.next
}

func (w *window) push(value float64) {
	w.values[w.next] = value
	w.next++
	if w.next == len(w.values) {
		w.next = 0
		w.full = true
	}
}

// stats computes mean and population stddev with a two-pass sum.
func (w *window) stats() (int, float64, float64) {
	n := w.len()
	if n == 0 {
		return 0, 0, 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += w.values[i]
	}
	mean := sum / float64(n)
	if n < 2 {
		return n, mean, 0
	}
	sq := 0.0
	for i := 0; i < n; i++ {
		d := w.values[i] - mean
		sq += d * d
	}
	return n, mean, math.Sqrt(sq / float64(n))
}

func (w *window) score(value float64) Stats {
	n, mean, std := w.stats()
	out := Stats{Count: n, Mean: mean, StdDev: std}
	if n < 2 || std == 0 || math.IsNaN(std) || math.IsInf(std, 0) {
		out.StdDev = finiteOrZero(std)
		return out
	}
	out.ZScore = finiteOrZero((value - mean) / std)
	return out
}

// Tracker keeps a bounded window of recent values per key.
type Tracker struct {
	size    int
	windows *keyed.Store[window]
}

// NewTracker constructs a tracker with window size n.
func NewTracker(n int) *Tracker {
	if n <= 0 {
		n = DefaultWindowSize
	}
	return &Tracker{
		size: n,
		windows: keyed.NewStore(func(string) *window {
			return &window{values: make([]float64, n)}
		}),
	}
}

// Size returns the window capacity.
func (t *Tracker) Size() int {
	return t.size
}

// Update scores value against the current window, then appends it and evicts
// the oldest value when the window is full.
func (t *Tracker) Update(key string, value float64) Stats {
	var out Stats
	t.windows.Do(key, func(w *window) {
		out = w.score(value)
		w.push(value)
	})
	return out
}

// Peek scores value against the current window without mutating it.
func (t *Tracker) Peek(key string, value float64) Stats {
	var out Stats
	t.windows.Peek(key, func(w *window) {
		out = w.score(value)
	})
	return out
}

// Snapshot returns the statistics of the current window.
func (t *Tracker) Snapshot(key string) Stats {
	var out Stats
	t.windows.Peek(key, func(w *window) {
		n, mean, std := w.stats()
		out = Stats{Count: n, Mean: mean, StdDev: std}
	})
	return out
}

// Len returns the number of tracked keys.
func (t *Tracker) Len() int {
	return t.windows.Len()
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
