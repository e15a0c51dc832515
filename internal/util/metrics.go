package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProductScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "product_scans_total",
		Help: "Total number of product scans by result",
	}, []string{"source", "result"})

	ScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "product_scan_duration_seconds",
		Help:    "Duration of single product fetches",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	PriceChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "price_changes_total",
		Help: "Total number of recorded price changes",
	}, []string{"source"})

	BatchRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batch_runs_total",
		Help: "Total number of batch runs by result",
	}, []string{"source", "result"})

	DiscoveryRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discovery_runs_total",
		Help: "Total number of sitemap discovery runs by result",
	}, []string{"source", "result"})

	SitemapProducts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sitemap_products",
		Help: "Number of products found in the last sitemap refresh",
	}, []string{"source"})

	FetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_retries_total",
		Help: "Total number of HTTP fetch retries by reason",
	}, []string{"source", "reason"})

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
