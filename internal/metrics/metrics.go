// Package metrics provides Prometheus metrics for the marketplace services
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_http_requests_total",
		Help: "Total number of HTTP requests by route and status",
	}, []string{"method", "route", "status"})
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketplace_http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// Search metrics
	SearchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_search_requests_total",
		Help: "Total number of searches by mode (recency, ranked, keyword_only)",
	}, []string{"mode"})
	SearchFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_search_fallback_total",
		Help: "Searches ranked keyword-only because the query could not be embedded",
	})
	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketplace_search_duration_seconds",
		Help:    "Duration of ranked searches in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	SearchCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_search_cache_total",
		Help: "Search cache lookups by result (hit, miss)",
	}, []string{"result"})

	// Embedding metrics
	EmbeddingRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_embedding_requests_total",
		Help: "Embedding backend calls by provider and result",
	}, []string{"provider", "result"})
	EmbeddingsRefreshed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_embeddings_refreshed_total",
		Help: "Stale item vectors recomputed",
	})
	EmbeddingsStale = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketplace_embeddings_stale",
		Help: "Items waiting for a fresh vector, as of the last sweep",
	})
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "marketplace_circuit_breaker_open",
		Help: "1 while the named circuit breaker is open",
	}, []string{"name"})

	// Marketplace metrics
	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_order_transitions_total",
		Help: "Order state transitions by target status",
	}, []string{"status"})
	MessagesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_messages_sent_total",
		Help: "Total number of conversation messages sent",
	})

	// Event metrics
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_events_published_total",
		Help: "Events published by topic and result",
	}, []string{"topic", "result"})
	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_events_consumed_total",
		Help: "Events consumed by type and result",
	}, []string{"event_type", "result"})

	RateLimitHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_rate_limit_hits_total",
		Help: "Requests rejected by the rate limiter",
	})
)

// Handler exposes the default registry for scraping
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
