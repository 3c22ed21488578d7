package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		},
		[]string{"routing_key", "queue"},
	)

	// LLMCallLatency covers both team suggestion and persona turns.
	LLMCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_latency_ms",
			Help:    "LLM backend call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10),
		},
		[]string{"backend", "purpose", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	SlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of queries above the slow-query threshold",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
		},
	)

	EmailsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_ingested_total",
			Help: "Emails handled by the ingestion worker",
		},
		[]string{"status"}, // stored, duplicate, failed
	)

	DetectorRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_runs_total",
			Help: "Classifier detector executions",
		},
		[]string{"detector", "outcome"}, // phishing, clean, error
	)

	TeamSuggestions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "team_suggestions_total",
			Help: "Team suggestions produced",
		},
		[]string{"source"}, // llm, keyword
	)

	TeamAssignments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "team_assignments_total",
			Help: "Operator team assignments",
		},
		[]string{"team"},
	)

	AgenticTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentic_tasks_total",
			Help: "Discussion tasks by terminal status",
		},
		[]string{"status"},
	)

	SSEClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_clients",
			Help: "Currently connected event stream clients",
		},
	)

	SSEDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sse_events_dropped_total",
			Help: "Events dropped for slow subscribers",
		},
	)
)

func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

func RecordLLMCallLatency(backend, purpose, status string, duration time.Duration) {
	LLMCallLatency.WithLabelValues(backend, purpose, status).Observe(float64(duration.Milliseconds()))
}

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func IncrementSlowQuery(duration time.Duration) {
	SlowQueryDuration.Observe(duration.Seconds())
}

func IncrementEmailsIngested(status string) {
	EmailsIngested.WithLabelValues(status).Inc()
}

func IncrementDetectorRun(detector, outcome string) {
	DetectorRuns.WithLabelValues(detector, outcome).Inc()
}

func IncrementTeamSuggestion(source string) {
	TeamSuggestions.WithLabelValues(source).Inc()
}

func IncrementTeamAssignment(team string) {
	TeamAssignments.WithLabelValues(team).Inc()
}

func IncrementAgenticTask(status string) {
	AgenticTasks.WithLabelValues(status).Inc()
}
