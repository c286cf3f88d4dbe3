// Package metrics defines the Prometheus collectors shared across the
// ingestion and query paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenttrail_events_ingested_total",
			Help: "Total number of events normalized and written",
		},
		[]string{"category"},
	)

	LinesFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agenttrail_writer_lines_flushed_total",
			Help: "Total buffered lines durably appended",
		},
	)

	FlushFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agenttrail_writer_flush_failures_total",
			Help: "Total flush attempts that failed with an I/O error",
		},
	)

	LinesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agenttrail_writer_lines_dropped_total",
			Help: "Total buffered lines dropped after a failed flush",
		},
	)

	// Query metrics
	ParseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agenttrail_query_parse_errors_total",
			Help: "Total malformed JSONL lines skipped during reads",
		},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agenttrail_query_duration_seconds",
			Help:    "Duration of query-side operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agenttrail_cache_hits_total",
			Help: "Total result cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agenttrail_cache_misses_total",
			Help: "Total result cache misses",
		},
	)

	// Admission metrics
	AdmissionRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenttrail_admission_rejections_total",
			Help: "Total requests rejected by the admission limiter",
		},
		[]string{"client"},
	)
)
