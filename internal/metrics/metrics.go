// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datachat_http_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "datachat_http_request_duration_seconds",
			Help: "Duration of API requests",
		},
		[]string{"method", "endpoint"},
	)
	WorkflowNodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datachat_workflow_node_duration_seconds",
			Help:    "Duration of workflow node executions",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"node", "status"},
	)
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datachat_llm_requests_total",
			Help: "Total number of LLM completions",
		},
		[]string{"provider", "model", "status"},
	)
	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datachat_llm_request_duration_seconds",
			Help:    "Duration of LLM completions",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)
	StreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datachat_stream_errors_total",
			Help: "Error lines written to answer streams",
		},
		[]string{"kind"},
	)
	SchemaCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datachat_schema_cache_hits_total",
			Help: "Total number of schema cache hits",
		},
	)
	SchemaCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datachat_schema_cache_misses_total",
			Help: "Total number of schema cache misses",
		},
	)
	ChunksIndexedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datachat_chunks_indexed_total",
			Help: "Document chunks embedded and stored",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(WorkflowNodeDuration)
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(StreamErrorsTotal)
	prometheus.MustRegister(SchemaCacheHitsTotal)
	prometheus.MustRegister(SchemaCacheMissesTotal)
	prometheus.MustRegister(ChunksIndexedTotal)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveNode matches graph.NodeObserver.
func ObserveNode(node string, took time.Duration, err error) {
	WorkflowNodeDuration.WithLabelValues(node, status(err)).Observe(took.Seconds())
}

// ObserveLLM matches llm.Factory.Observe.
func ObserveLLM(provider, model string, took time.Duration, err error) {
	LLMRequestsTotal.WithLabelValues(provider, model, status(err)).Inc()
	LLMRequestDuration.WithLabelValues(provider).Observe(took.Seconds())
}
