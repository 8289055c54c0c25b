package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Redirects counts resolutions by outcome: redirect, expired, not_found or
	// rate_limited.
	Redirects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkdash_redirects_total",
			Help: "Total number of short code resolutions by outcome",
		},
		[]string{"outcome"},
	)

	// ClickAccountingFailures counts swallowed accounting writes by step:
	// counter or event.
	ClickAccountingFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkdash_click_accounting_failures_total",
			Help: "Total number of click accounting writes that failed",
		},
		[]string{"step"},
	)

	ClickAccountingInflight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "linkdash_click_accounting_inflight",
			Help: "Number of click accounting tasks currently running",
		},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "linkdash_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	LinksCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linkdash_links_created_total",
			Help: "Total number of short links created",
		},
	)

	LinksDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linkdash_links_deleted_total",
			Help: "Total number of short links deleted",
		},
	)
)

func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}
