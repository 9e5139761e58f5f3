// Package metrics exposes Prometheus instrumentation for text preparation,
// synthesis calls and background jobs.
//
// All recording methods are safe to call on a nil *Metrics, so components can
// be built without instrumentation in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maauso/chatterbox-tts-api/internal/textprep"
)

const namespace = "chatterbox"

// Synthesis call outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeCacheHit = "cache_hit"
)

// Metrics holds the service collectors and the registry they belong to.
type Metrics struct {
	registry *prometheus.Registry

	substitutions  prometheus.Counter
	removedControl prometheus.Counter
	unmapped       prometheus.Counter
	chunkChars     *prometheus.HistogramVec
	synthCalls     *prometheus.CounterVec
	jobsRunning    prometheus.Gauge
	jobsFinished   *prometheus.CounterVec
}

// New creates a Metrics instance backed by a fresh registry that also carries
// the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		substitutions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "textprep",
			Name:      "substitutions_total",
			Help:      "Characters replaced by the normalization table.",
		}),
		removedControl: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "textprep",
			Name:      "removed_control_characters_total",
			Help:      "Control, format and unassigned code points dropped during normalization.",
		}),
		unmapped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "textprep",
			Name:      "unmapped_texts_total",
			Help:      "Normalized texts that still contain non-ASCII code points.",
		}),
		chunkChars: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "textprep",
			Name:      "chunk_characters",
			Help:      "Chunk length in code points, by the boundary that ended the chunk.",
			Buckets:   []float64{25, 50, 100, 200, 300, 500, 750, 1000, 2000},
		}, []string{"boundary"}),
		synthCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "synth",
			Name:      "requests_total",
			Help:      "Synthesis requests by outcome.",
		}, []string{"outcome"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "running",
			Help:      "Generation jobs currently being processed.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Generation jobs that reached a terminal status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.substitutions,
		m.removedControl,
		m.unmapped,
		m.chunkChars,
		m.synthCalls,
		m.jobsRunning,
		m.jobsFinished,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveNormalization records what a normalization run changed.
func (m *Metrics) ObserveNormalization(res textprep.Result) {
	if m == nil {
		return
	}
	total := 0
	for _, n := range res.Substitutions {
		total += n
	}
	m.substitutions.Add(float64(total))
	m.removedControl.Add(float64(res.RemovedControl))
	if len(res.Unmapped) > 0 {
		m.unmapped.Inc()
	}
}

// ObserveChunks records the size of every chunk by its boundary kind.
func (m *Metrics) ObserveChunks(chunks []textprep.Chunk) {
	if m == nil {
		return
	}
	for _, c := range chunks {
		m.chunkChars.WithLabelValues(c.Boundary.String()).Observe(float64(c.CharacterCount))
	}
}

// SynthesisCall counts one synthesis request with the given outcome.
func (m *Metrics) SynthesisCall(outcome string) {
	if m == nil {
		return
	}
	m.synthCalls.WithLabelValues(outcome).Inc()
}

// JobStarted marks a job as running.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.jobsRunning.Inc()
}

// JobFinished marks a running job as done with the given terminal status.
func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.jobsRunning.Dec()
	m.jobsFinished.WithLabelValues(status).Inc()
}
