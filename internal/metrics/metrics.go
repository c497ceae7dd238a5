// Package metrics holds the Prometheus collectors for the event pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total events handed to the broker, by topic",
		},
		[]string{"topic"},
	)

	PublishFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_publish_failures_total",
			Help: "Total events that failed to serialize or send, by topic",
		},
		[]string{"topic"},
	)

	EventsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_consumed_total",
			Help: "Total inbound events recorded, by event type",
		},
		[]string{"event_type"},
	)

	ConsumerFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_failures_total",
			Help: "Total inbound messages that could not be processed, by failure policy",
		},
		[]string{"policy"},
	)

	ConsumerProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "consumer_processing_duration_seconds",
			Help:    "Duration of processing one inbound message",
			Buckets: prometheus.DefBuckets,
		},
	)

	StatsCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stats_cache_hits_total",
			Help: "Total day-count reads served from the cache",
		},
	)

	StatsCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stats_cache_misses_total",
			Help: "Total day-count reads that fell back to the store",
		},
	)

	FetchRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planet_fetch_runs_total",
			Help: "Total planet fetch runs, by outcome (ok, skipped, failed)",
		},
		[]string{"outcome"},
	)

	BreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "planet_fetch_breaker_state",
			Help: "Circuit breaker state of the planet source (0 closed, 1 half-open, 2 open)",
		},
	)
)

// HTTP metrics, recorded by the server middleware.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"handler", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "method"},
	)
)

// Register registers all collectors with r.
func Register(r prometheus.Registerer) {
	r.MustRegister(
		EventsPublishedTotal,
		PublishFailuresTotal,
		EventsConsumedTotal,
		ConsumerFailuresTotal,
		ConsumerProcessingDuration,
		StatsCacheHitsTotal,
		StatsCacheMissesTotal,
		FetchRunsTotal,
		BreakerState,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}
