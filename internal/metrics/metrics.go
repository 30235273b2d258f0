// Package metrics exposes Prometheus instruments for the tick collector.
// All recording methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ticklake"

// Metrics holds the collector's instruments.
type Metrics struct {
	ticksFetched  *prometheus.CounterVec
	ticksWritten  *prometheus.CounterVec
	gapSkips      *prometheus.CounterVec
	flushes       *prometheus.CounterVec
	fetchRetries  *prometheus.CounterVec
	restartPauses prometheus.Counter
	transitions   *prometheus.CounterVec
	cursor        *prometheus.GaugeVec
	registry      *prometheus.Registry
}

// New creates and registers the instruments on a fresh registry that also
// carries the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		ticksFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_fetched_total",
			Help: "Ticks returned by the upstream source.",
		}, []string{"kind"}),
		ticksWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_written_total",
			Help: "Ticks appended to the warehouse.",
		}, []string{"kind"}),
		gapSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "gap_skips_total",
			Help: "Empty fetch windows skipped.",
		}, []string{"kind"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "flushes_total",
			Help: "Batch flushes by result.",
		}, []string{"kind", "result"}),
		fetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "fetch_retries_total",
			Help: "Fetches retried after an upstream failure.",
		}, []string{"kind"}),
		restartPauses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "restart_pauses_total",
			Help: "Pauses taken around scheduled upstream restarts.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "queue_transitions_total",
			Help: "Ticker moves between queue documents.",
		}, []string{"from", "to"}),
		cursor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cursor_timestamp_seconds",
			Help: "Current retrieval cursor as a Unix timestamp.",
		}, []string{"kind"}),
		registry: reg,
	}
	reg.MustRegister(m.ticksFetched, m.ticksWritten, m.gapSkips, m.flushes,
		m.fetchRetries, m.restartPauses, m.transitions, m.cursor)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TicksFetched counts ticks returned by the source.
func (m *Metrics) TicksFetched(kind string, n int) {
	if m != nil {
		m.ticksFetched.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *Metrics) GapSkip(kind string) {
	if m != nil {
		m.gapSkips.WithLabelValues(kind).Inc()
	}
}

// Flush records a flush attempt of n rows.
func (m *Metrics) Flush(kind string, n int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.flushes.WithLabelValues(kind, "error").Inc()
		return
	}
	m.flushes.WithLabelValues(kind, "ok").Inc()
	m.ticksWritten.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) FetchRetry(kind string) {
	if m != nil {
		m.fetchRetries.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) RestartPause() {
	if m != nil {
		m.restartPauses.Inc()
	}
}

func (m *Metrics) Transition(from, to string) {
	if m != nil {
		m.transitions.WithLabelValues(from, to).Inc()
	}
}

// Cursor records the cursor position for kind as Unix seconds.
func (m *Metrics) Cursor(kind string, unix int64) {
	if m != nil {
		m.cursor.WithLabelValues(kind).Set(float64(unix))
	}
}
