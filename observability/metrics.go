// Package observability exposes Prometheus metrics for the service.
package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// QueueDepthFunc reports the current number of ready queue entries.
type QueueDepthFunc func(ctx context.Context) (int, error)

// CircuitStateFunc reports the current LLM circuit breaker state.
type CircuitStateFunc func() string

// Metrics holds every counter/gauge registered for the service.
type Metrics struct {
	registry *prometheus.Registry

	PostsIngested   prometheus.Counter
	PostsSkipped    prometheus.Counter
	IngestErrors    prometheus.Counter
	SummariesOK     prometheus.Counter
	SummariesFailed prometheus.Counter
	SuggestionsMade prometheus.Counter
}

// New registers every metric against a fresh registry. queueDepth and
// circuitState may be nil to skip those gauges (e.g. in tests).
func New(queueDepth QueueDepthFunc, circuitState CircuitStateFunc) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		PostsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plume", Subsystem: "ingest", Name: "posts_ingested_total",
			Help: "Number of new posts persisted by the ingestor.",
		}),
		PostsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plume", Subsystem: "ingest", Name: "posts_skipped_total",
			Help: "Number of feed entries skipped as duplicates.",
		}),
		IngestErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plume", Subsystem: "ingest", Name: "errors_total",
			Help: "Number of feed fetch/parse errors.",
		}),
		SummariesOK: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plume", Subsystem: "queue", Name: "summaries_completed_total",
			Help: "Number of summaries successfully generated and persisted.",
		}),
		SummariesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plume", Subsystem: "queue", Name: "summaries_failed_total",
			Help: "Number of content hashes archived to summary_failures after exhausting retries.",
		}),
		SuggestionsMade: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plume", Subsystem: "suggest", Name: "matches_total",
			Help: "Number of posts marked as suggestions.",
		}),
	}
	reg.MustRegister(m.PostsIngested, m.PostsSkipped, m.IngestErrors, m.SummariesOK, m.SummariesFailed, m.SuggestionsMade)

	if queueDepth != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "plume", Subsystem: "queue", Name: "depth",
			Help: "Number of summary_queue entries ready to be claimed.",
		}, func() float64 {
			depth, err := queueDepth(context.Background())
			if err != nil {
				return -1
			}
			return float64(depth)
		}))
	}
	if circuitState != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "plume", Subsystem: "llm", Name: "circuit_open",
			Help: "1 if the LLM circuit breaker is open, 0 otherwise.",
		}, func() float64 {
			if circuitState() == "open" {
				return 1
			}
			return 0
		}))
	}

	return m
}

// Handler returns the HTTP handler serving the Prometheus exposition
// format for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
