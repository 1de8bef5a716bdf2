package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quillpost_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quillpost_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// PostsPublished counts scheduled posts promoted to published.
	PostsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quillpost_posts_published_total",
		Help: "Total number of scheduled posts published by the publisher",
	})

	// PublisherTicks counts publisher ticks by outcome (ok, error, skipped).
	PublisherTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quillpost_publisher_ticks_total",
		Help: "Total number of publisher ticks by outcome",
	}, []string{"outcome"})

	// PublisherTickDuration records how long a publisher tick takes.
	PublisherTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quillpost_publisher_tick_seconds",
		Help:    "Publisher tick duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// MailsSent counts outgoing mails by kind and result.
	MailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quillpost_mails_sent_total",
		Help: "Total number of mails handed to the mail transport",
	}, []string{"kind", "result"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
