// Package metrics holds the agent's own Prometheus instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Source labels for SourceFailed.
const (
	SourceHost           = "host"
	SourceRuntime        = "runtime"
	SourceAccelerator    = "accelerator"
	SourceContainerStats = "container_stats"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	registry         *prometheus.Registry
	snapshotDuration prometheus.Histogram
	sourceFailures   *prometheus.CounterVec
	actions          *prometheus.CounterVec
	streamSends      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		snapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dockctl",
			Name:      "snapshot_duration_seconds",
			Help:      "Time spent building one telemetry snapshot.",
			Buckets:   []float64{0.25, 0.5, 1, 1.5, 2, 3, 5, 10, 30},
		}),
		sourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dockctl",
			Name:      "source_failures_total",
			Help:      "Telemetry source failures by source.",
		}, []string{"source"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dockctl",
			Name:      "container_actions_total",
			Help:      "Container lifecycle actions by action and result.",
		}, []string{"action", "result"}),
		streamSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dockctl",
			Name:      "stream_sends_total",
			Help:      "Snapshots pushed to the backend stream by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.snapshotDuration,
		m.sourceFailures,
		m.actions,
		m.streamSends,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveSnapshot(d time.Duration) {
	if m == nil {
		return
	}
	m.snapshotDuration.Observe(d.Seconds())
}

func (m *Metrics) SourceFailed(source string) {
	if m == nil {
		return
	}
	m.sourceFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) ActionApplied(action string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.actions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) StreamSent(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.streamSends.WithLabelValues(result).Inc()
}
