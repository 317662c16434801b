package core

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sliink/eventd/internal/model"
)

// Stage names used as the stage label of the latency histogram
const (
	StageSync    = "sync"
	StageTrigger = "trigger"
)

// LatencyRecorder receives stage timings from the pipeline
type LatencyRecorder interface {
	RecordLatency(stage, kind string, d time.Duration)
}

// Metrics owns the daemon's collectors on a private registry. Every method
// is safe for concurrent use.
type Metrics struct {
	registry      *prometheus.Registry
	events        *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	sourceErrors  *prometheus.CounterVec
	hookErrors    *prometheus.CounterVec
	recoveries    prometheus.Counter
	loopState     *prometheus.GaugeVec
}

// NewMetrics registers all collectors on a fresh registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventd",
			Name:      "events_total",
			Help:      "Events fully processed, by kind.",
		}, []string{"kind"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "eventd",
			Name:      "stage_duration_seconds",
			Help:      "Latency of the sync and trigger stages.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"stage", "kind"}),
		sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventd",
			Name:      "source_errors_total",
			Help:      "Failed source scans, by source id.",
		}, []string{"source"}),
		hookErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventd",
			Name:      "hook_errors_total",
			Help:      "Failed hook invocations, by hook name.",
		}, []string{"hook"}),
		recoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventd",
			Name:      "recoveries_total",
			Help:      "Times the loop entered RECOVERING.",
		}),
		loopState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "eventd",
			Name:      "loop_state",
			Help:      "1 for the current loop state, 0 otherwise.",
		}, []string{"state"}),
	}

	m.registry.MustRegister(
		m.events,
		m.stageDuration,
		m.sourceErrors,
		m.hookErrors,
		m.recoveries,
		m.loopState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordEvent increments the counter for kind
func (m *Metrics) RecordEvent(kind string) {
	m.events.WithLabelValues(kind).Inc()
}

// RecordLatency observes one stage duration
func (m *Metrics) RecordLatency(stage, kind string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage, kind).Observe(d.Seconds())
}

// RecordSourceError counts one failed scan of sourceID
func (m *Metrics) RecordSourceError(sourceID string) {
	m.sourceErrors.WithLabelValues(sourceID).Inc()
}

// RecordHookError counts one failed call of the named hook
func (m *Metrics) RecordHookError(hook string) {
	m.hookErrors.WithLabelValues(hook).Inc()
}

// RecordRecovery counts one loop restart
func (m *Metrics) RecordRecovery() {
	m.recoveries.Inc()
}

// SetLoopState marks state as current and zeroes the others
func (m *Metrics) SetLoopState(state model.LoopState) {
	for _, s := range model.AllLoopStates {
		value := 0.0
		if s == state {
			value = 1
		}
		m.loopState.WithLabelValues(string(s)).Set(value)
	}
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
