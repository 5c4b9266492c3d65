package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "meter_insights_"

	resultAccepted = "accepted"
	resultLate     = "late"
	resultRejected = "rejected"
	resultSuccess  = "success"
	resultError    = "error"
	labelUnknown   = "unknown"
)

var (
	registerOnce sync.Once

	readingsTotal   *prometheus.CounterVec
	rejectedTotal   *prometheus.CounterVec
	ingestLatency   *prometheus.HistogramVec
	eventsTotal     *prometheus.CounterVec
	incidentsTotal  *prometheus.CounterVec
	openIncidents   prometheus.Gauge
	workOrdersTotal *prometheus.CounterVec
	synthesisFailed prometheus.Counter
	sinkErrors      *prometheus.CounterVec
	exportTotal     *prometheus.CounterVec
	exportLatency   *prometheus.HistogramVec
)

// Init registers pipeline metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		readingsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_total",
				Help: "Total readings by ingest result",
			},
			[]string{"result"},
		)
		rejectedTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_rejected_total",
				Help: "Total rejected readings by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Per-reading pipeline latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
			},
			[]string{"result"},
		)
		eventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_total",
				Help: "Total classified events by type and severity",
			},
			[]string{"type", "severity"},
		)
		incidentsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "incident_changes_total",
				Help: "Total outage incident lifecycle changes",
			},
			[]string{"change"},
		)
		openIncidents = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "open_incidents",
				Help: "Currently open outage incidents",
			},
		)
		workOrdersTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "work_orders_total",
				Help: "Total work order synthesis outcomes by order type",
			},
			[]string{"type", "outcome"},
		)
		synthesisFailed = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "work_order_synthesis_failed_total",
				Help: "Total work orders that could not be synthesized",
			},
		)
		sinkErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sink_errors_total",
				Help: "Total downstream sink errors by sink",
			},
			[]string{"sink"},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total report exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			readingsTotal,
			rejectedTotal,
			ingestLatency,
			eventsTotal,
			incidentsTotal,
			openIncidents,
			workOrdersTotal,
			synthesisFailed,
			sinkErrors,
			exportTotal,
			exportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveReading records the ingest result and latency of one reading.
func ObserveReading(result string, duration time.Duration) {
	if result == "" {
		result = resultAccepted
	}
	if readingsTotal != nil {
		readingsTotal.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncRejected increments the rejected reading counter.
func IncRejected(reason string) {
	if reason == "" {
		reason = labelUnknown
	}
	if rejectedTotal != nil {
		rejectedTotal.WithLabelValues(reason).Inc()
	}
}

// IncEvent increments the classified event counter.
func IncEvent(eventType, severity string) {
	if eventType == "" {
		eventType = labelUnknown
	}
	if severity == "" {
		severity = labelUnknown
	}
	if eventsTotal != nil {
		eventsTotal.WithLabelValues(eventType, severity).Inc()
	}
}

// IncIncident increments incident lifecycle counters.
func IncIncident(change string) {
	if change == "" {
		change = labelUnknown
	}
	if incidentsTotal != nil {
		incidentsTotal.WithLabelValues(change).Inc()
	}
}

// SetOpenIncidents sets the open incident gauge.
func SetOpenIncidents(n int) {
	if openIncidents != nil {
		openIncidents.Set(float64(n))
	}
}

// IncWorkOrder increments work order outcome counters.
func IncWorkOrder(orderType, outcome string) {
	if orderType == "" {
		orderType = labelUnknown
	}
	if outcome == "" {
		outcome = labelUnknown
	}
	if workOrdersTotal != nil {
		workOrdersTotal.WithLabelValues(orderType, outcome).Inc()
	}
}

// IncSynthesisFailed increments the synthesis failure counter.
func IncSynthesisFailed() {
	if synthesisFailed != nil {
		synthesisFailed.Inc()
	}
}

// IncSinkError increments downstream sink errors.
func IncSinkError(sink string) {
	if sink == "" {
		sink = labelUnknown
	}
	if sinkErrors != nil {
		sinkErrors.WithLabelValues(sink).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = labelUnknown
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ReadingAccepted = resultAccepted
	ReadingLate     = resultLate
	ReadingRejected = resultRejected

	ResultSuccess = resultSuccess
	ResultError   = resultError
)
