// Package metrics provides Prometheus metrics for the oak service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LookupRequestsTotal tracks outbound registry requests by operation and outcome
	LookupRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oak",
			Subsystem: "lookup",
			Name:      "requests_total",
			Help:      "Total number of registry lookup requests",
		},
		[]string{"operation", "status_code"},
	)

	// LookupRequestDuration tracks outbound registry request duration
	LookupRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "oak",
			Subsystem: "lookup",
			Name:      "request_duration_seconds",
			Help:      "Duration of registry lookup requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	// RateLimitWaitTime tracks how long lookups waited for the request budget
	RateLimitWaitTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "oak",
			Subsystem: "lookup",
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting for the lookup rate limit",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60},
		},
	)

	// CacheLookupsTotal tracks cache hits and misses by key kind
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oak",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of lookup cache reads by result",
		},
		[]string{"kind", "result"},
	)

	// RunsTotal tracks finalized discovery and import runs
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oak",
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Total number of finalized runs by kind and status",
		},
		[]string{"kind", "status"},
	)

	// RunDuration tracks run duration in seconds
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "oak",
			Subsystem: "import",
			Name:      "run_duration_seconds",
			Help:      "Duration of discovery and import runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		},
		[]string{"kind"},
	)

	// PersonsWritten tracks persons created or updated
	PersonsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oak",
			Subsystem: "import",
			Name:      "persons_written_total",
			Help:      "Total number of persons created or updated",
		},
		[]string{"action"},
	)

	// RelationshipsCreated tracks relationship edge pairs created by type
	RelationshipsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oak",
			Subsystem: "import",
			Name:      "relationships_created_total",
			Help:      "Total number of bidirectional relationships created",
		},
		[]string{"type"},
	)

	// QueueJobsProcessed tracks jobs processed from the queue
	QueueJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oak",
			Subsystem: "queue",
			Name:      "jobs_processed_total",
			Help:      "Total number of jobs processed from the queue",
		},
		[]string{"status"},
	)

	// QueueJobsInFlight tracks jobs currently being processed
	QueueJobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "oak",
			Subsystem: "queue",
			Name:      "jobs_in_flight",
			Help:      "Number of jobs currently being processed",
		},
	)

	// DLQJobsTotal tracks jobs sent to the dead letter queue
	DLQJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oak",
			Subsystem: "queue",
			Name:      "dlq_jobs_total",
			Help:      "Total number of jobs sent to the dead letter queue",
		},
		[]string{"job_type"},
	)

	// KafkaMessagesPublished tracks domain events published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oak",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of Kafka messages published",
		},
		[]string{"topic", "status"},
	)

	// EventsDropped tracks domain events discarded because the emit buffer was full
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oak",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Total number of domain events dropped before publishing",
		},
		[]string{"event_type"},
	)

	// GraphWritesTotal tracks graph projection writes by kind and outcome
	GraphWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oak",
			Subsystem: "graph",
			Name:      "writes_total",
			Help:      "Total number of graph projection writes",
		},
		[]string{"kind", "status"},
	)
)

// RecordLookup records an outbound registry request
func RecordLookup(operation, statusCode string, durationSeconds float64) {
	LookupRequestsTotal.WithLabelValues(operation, statusCode).Inc()
	LookupRequestDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordCache records a cache read
func RecordCache(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(kind, result).Inc()
}

// RecordRun records a finalized run
func RecordRun(kind, status string, durationSeconds float64) {
	RunsTotal.WithLabelValues(kind, status).Inc()
	RunDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordQueueJob records a queue job processing metric
func RecordQueueJob(status string) {
	QueueJobsProcessed.WithLabelValues(status).Inc()
}

// RecordDLQJob records a dead letter queue job
func RecordDLQJob(jobType string) {
	DLQJobsTotal.WithLabelValues(jobType).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}

// RecordEventDropped records a domain event that was never published
func RecordEventDropped(eventType string) {
	EventsDropped.WithLabelValues(eventType).Inc()
}

// RecordGraphWrite records a graph projection write
func RecordGraphWrite(kind, status string) {
	GraphWritesTotal.WithLabelValues(kind, status).Inc()
}
