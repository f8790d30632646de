package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Domain events accepted by the bus, by routing key.",
	}, []string{"routing_key"})

	EventPublishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_publish_failures_total",
		Help: "Domain events the bus refused after retry, by routing key.",
	}, []string{"routing_key"})

	EventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_dropped_total",
		Help: "Events dropped by a consumer after its retry budget, by queue and reason.",
	}, []string{"queue", "reason"})

	ConsumerRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_retries_total",
		Help: "Event redeliveries requested by a consumer, by queue.",
	}, []string{"queue"})

	CacheInvalidationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_invalidation_failures_total",
		Help: "Cache purge attempts that failed and were left to TTL expiry.",
	})
)

// Register installs all counters on the default registry. Call once per
// process before serving /metrics.
func Register() {
	prometheus.MustRegister(
		EventsPublished,
		EventPublishFailures,
		EventsDropped,
		ConsumerRetries,
		CacheInvalidationFailures,
	)
}
