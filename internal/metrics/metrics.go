// Package metrics exposes Prometheus collectors for the resolver service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	resolveRequestsTotal        *prometheus.CounterVec
	resolveDurationSeconds      *prometheus.HistogramVec
	cacheEventsTotal            *prometheus.CounterVec
	scrapeAttemptsTotal         *prometheus.CounterVec
	credentialTransitionsTotal  *prometheus.CounterVec
	admissionRejectionsTotal    *prometheus.CounterVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec
	backgroundTaskFailuresTotal *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		resolveRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolver_requests_total",
				Help: "Total number of resolve requests, labeled by platform and outcome.",
			},
			[]string{"platform", "outcome"},
		)

		resolveDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resolver_request_duration_seconds",
				Help:    "Histogram of resolve latencies, labeled by platform and cache result.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"platform", "cached"},
		)

		cacheEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolver_cache_events_total",
				Help: "Total cache events, labeled by event (hit, miss, degraded).",
			},
			[]string{"event"},
		)

		scrapeAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolver_scrape_attempts_total",
				Help: "Total scrape attempts, labeled by platform, mode and outcome.",
			},
			[]string{"platform", "mode", "outcome"},
		)

		credentialTransitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolver_credential_transitions_total",
				Help: "Total credential status transitions, labeled by platform and new status.",
			},
			[]string{"platform", "status"},
		)

		admissionRejectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolver_admission_rejections_total",
				Help: "Total admission rejections, labeled by reason.",
			},
			[]string{"reason"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		backgroundTaskFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolver_background_task_failures_total",
				Help: "Total background task failures, labeled by task.",
			},
			[]string{"task"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveResolve records one finished resolve request.
func ObserveResolve(platform, outcome string, cached bool, duration time.Duration) {
	resolveRequestsTotal.WithLabelValues(platform, outcome).Inc()
	resolveDurationSeconds.WithLabelValues(platform, strconv.FormatBool(cached)).Observe(duration.Seconds())
}

// ObserveCacheEvent increments the cache event counter.
func ObserveCacheEvent(event string) {
	cacheEventsTotal.WithLabelValues(event).Inc()
}

// ObserveScrapeAttempt records one scrape attempt. Mode is "anonymous" or
// "credentialed".
func ObserveScrapeAttempt(platform, mode, outcome string) {
	scrapeAttemptsTotal.WithLabelValues(platform, mode, outcome).Inc()
}

// ObserveCredentialTransition records a credential status change.
func ObserveCredentialTransition(platform, status string) {
	credentialTransitionsTotal.WithLabelValues(platform, status).Inc()
}

// ObserveAdmissionRejection increments the rejection counter for a reason.
func ObserveAdmissionRejection(reason string) {
	admissionRejectionsTotal.WithLabelValues(reason).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveBackgroundTaskFailure increments the failure counter for a task.
func ObserveBackgroundTaskFailure(task string) {
	backgroundTaskFailuresTotal.WithLabelValues(task).Inc()
}
