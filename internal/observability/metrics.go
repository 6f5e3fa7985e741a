// Package observability exposes Prometheus self-metrics for the telemetry
// pipeline itself: buffered entries, flush outcomes, alert activity.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all the metric collectors for the pipeline. All methods
// are safe to call on a nil receiver so components can run unmetered.
type Metrics struct {
	registry *prometheus.Registry

	EntriesLogged    *prometheus.CounterVec
	EntriesDropped   prometheus.Counter
	FlushesTotal     *prometheus.CounterVec
	AlertsFired      *prometheus.CounterVec
	AlertsSuppressed prometheus.Counter
	BufferDepth      prometheus.Gauge
	HistoryDepth     prometheus.Gauge
}

// NewMetrics initializes and registers all Prometheus metrics used by the pipeline.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		EntriesLogged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_entries_logged_total",
			Help: "Count of log entries accepted into the buffer, partitioned by level.",
		}, []string{"level"}),
		EntriesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_entries_dropped_total",
			Help: "Count of log entries dropped by the re-merge cap during sustained outages.",
		}),
		FlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_flushes_total",
			Help: "Count of flush attempts, partitioned by outcome.",
		}, []string{"outcome"}),
		AlertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_alerts_fired_total",
			Help: "Count of threshold alerts created, partitioned by severity.",
		}, []string{"severity"}),
		AlertsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_alerts_suppressed_total",
			Help: "Count of alerts suppressed by the deduplication window.",
		}),
		BufferDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telemetry_buffer_depth",
			Help: "Current number of entries in the log buffer.",
		}),
		HistoryDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telemetry_snapshot_history_depth",
			Help: "Current number of snapshots in the metrics history.",
		}),
	}

	collectors := []prometheus.Collector{
		m.EntriesLogged, m.EntriesDropped, m.FlushesTotal,
		m.AlertsFired, m.AlertsSuppressed, m.BufferDepth, m.HistoryDepth,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Handler returns an HTTP handler serving the pipeline metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveEntry records an accepted entry. Nil-safe.
func (m *Metrics) ObserveEntry(level string) {
	if m == nil {
		return
	}
	m.EntriesLogged.WithLabelValues(level).Inc()
}

// ObserveDropped records entries dropped by the re-merge cap. Nil-safe.
func (m *Metrics) ObserveDropped(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.EntriesDropped.Add(float64(count))
}

// ObserveFlush records a flush outcome. Nil-safe.
func (m *Metrics) ObserveFlush(outcome string) {
	if m == nil {
		return
	}
	m.FlushesTotal.WithLabelValues(outcome).Inc()
}

// ObserveAlert records a fired alert. Nil-safe.
func (m *Metrics) ObserveAlert(severity string) {
	if m == nil {
		return
	}
	m.AlertsFired.WithLabelValues(severity).Inc()
}

// ObserveSuppressed records a deduplicated alert. Nil-safe.
func (m *Metrics) ObserveSuppressed() {
	if m == nil {
		return
	}
	m.AlertsSuppressed.Inc()
}

// SetBufferDepth updates the buffer depth gauge. Nil-safe.
func (m *Metrics) SetBufferDepth(depth int) {
	if m == nil {
		return
	}
	m.BufferDepth.Set(float64(depth))
}

// SetHistoryDepth updates the snapshot history gauge. Nil-safe.
func (m *Metrics) SetHistoryDepth(depth int) {
	if m == nil {
		return
	}
	m.HistoryDepth.Set(float64(depth))
}
