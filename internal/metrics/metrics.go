/*
Package metrics exposes triage and learning-loop counters through Prometheus.

Metrics live in a private registry so tests and multiple pipelines in one
process never collide. A CLI run has no scrape endpoint; instead the registry
can be written to a node-exporter textfile with WriteTextfile.

All methods are safe on a nil *Metrics, which disables recording.
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "mailtriage"

// Metrics holds the collectors for one triage process.
type Metrics struct {
	registry *prometheus.Registry

	drafts           *prometheus.CounterVec
	outcomes         *prometheus.CounterVec
	advisoryFailures *prometheus.CounterVec
	fallbacks        *prometheus.CounterVec
	advisoryQueued   prometheus.Counter
	draftsUnrecorded prometheus.Counter
	confidence       prometheus.Histogram
	editPercentage   prometheus.Histogram
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		drafts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drafts_total",
			Help:      "Messages triaged, by action policy and matched pattern.",
		}, []string{"policy", "pattern"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Scored sent replies, by outcome.",
		}, []string{"outcome"}),
		advisoryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "learning_advisory_failures_total",
			Help:      "Failed advisory learning steps, by step.",
		}, []string{"step"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_fallbacks_total",
			Help:      "Reads served from built-in defaults because the store was unavailable.",
		}, []string{"kind"}),
		advisoryQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "learning_advisory_queued_total",
			Help:      "Advisory learning jobs handed to the background worker.",
		}),
		draftsUnrecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drafts_unrecorded_total",
			Help:      "Drafts returned without a history record because the store was unavailable.",
		}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confidence_score",
			Help:      "Distribution of confidence scores.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		editPercentage: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "edit_percentage",
			Help:      "Distribution of draft-to-sent edit percentages.",
			Buckets:   []float64{0, 10, 30, 50, 75, 100},
		}),
	}

	reg.MustRegister(
		m.drafts,
		m.outcomes,
		m.advisoryFailures,
		m.fallbacks,
		m.advisoryQueued,
		m.draftsUnrecorded,
		m.confidence,
		m.editPercentage,
		collectors.NewGoCollector(),
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveDraft records one triaged message.
func (m *Metrics) ObserveDraft(policy, pattern string, confidence int) {
	if m == nil {
		return
	}
	if pattern == "" {
		pattern = "none"
	}
	m.drafts.WithLabelValues(policy, pattern).Inc()
	m.confidence.Observe(float64(confidence))
}

// ObserveOutcome records one scored reply.
func (m *Metrics) ObserveOutcome(outcome string, editPercentage float64) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
	m.editPercentage.Observe(editPercentage)
}

// AdvisoryFailure counts a failed advisory learning step.
func (m *Metrics) AdvisoryFailure(step string) {
	if m == nil {
		return
	}
	m.advisoryFailures.WithLabelValues(step).Inc()
}

// AdvisoryQueued counts a job handed to the background learning worker.
func (m *Metrics) AdvisoryQueued() {
	if m == nil {
		return
	}
	m.advisoryQueued.Inc()
}

// DraftNotRecorded counts a draft that could not be written to history.
func (m *Metrics) DraftNotRecorded() {
	if m == nil {
		return
	}
	m.draftsUnrecorded.Inc()
}

// Fallback counts a read served from the built-in defaults.
func (m *Metrics) Fallback(kind string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(kind).Inc()
}

// WriteTextfile writes the registry in the text exposition format to path,
// atomically, for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
