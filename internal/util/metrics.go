package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_runs_total",
		Help: "Total number of sync runs by type and terminal status",
	}, []string{"type", "status"})

	SyncProductsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_products_processed_total",
		Help: "Total number of products processed by sync runs",
	})

	SyncProductErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_product_errors_total",
		Help: "Total number of per-product failures swallowed during sync runs",
	})

	SyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_duration_seconds",
		Help:    "Duration of sync runs",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
	}, []string{"type"})

	ShopifyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopify_requests_total",
		Help: "Total Shopify Admin API requests by HTTP status",
	}, []string{"status"})

	ShopifyRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shopify_request_duration_seconds",
		Help:    "Latency of Shopify Admin API requests",
		Buckets: prometheus.DefBuckets,
	})

	ShopifyRateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopify_rate_limit_waits_total",
		Help: "Total number of 429 backoff sleeps",
	})

	FeedsGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feeds_generated_total",
		Help: "Total number of feed files generated",
	})

	FeedRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_rows_total",
		Help: "Total number of rows written across all generated feeds",
	})

	FeedGenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_generation_duration_seconds",
		Help:    "Latency of feed generation",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	})

	FeedGenerationFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_generation_failed_total",
		Help: "Total number of failed feed generations",
	}, []string{"reason"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
