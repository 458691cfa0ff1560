// Package metrics exposes Prometheus collectors for the cookie crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal             *prometheus.CounterVec
	crawlerFetchRetriesTotal      *prometheus.CounterVec
	crawlerRobotsTotal            *prometheus.CounterVec
	crawlerPageDurationSeconds    *prometheus.HistogramVec
	cookiesClassifiedTotal        *prometheus.CounterVec
	fingerprintDetectionsTotal    *prometheus.CounterVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec
	analysesTotal                 *prometheus.CounterVec
	activeWorkers                 prometheus.Gauge
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cookiecrawler_pages_total",
				Help: "Total number of pages visited, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		crawlerFetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cookiecrawler_fetch_retries_total",
				Help: "Total number of page fetch retries, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerRobotsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cookiecrawler_robots_total",
				Help: "Total robots.txt lookups, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerPageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cookiecrawler_page_duration_seconds",
				Help:    "Histogram of page fetch and extraction latencies.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"status"},
		)

		cookiesClassifiedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cookiecrawler_cookies_classified_total",
				Help: "Total cookies classified, labeled by category and method.",
			},
			[]string{"category", "method"},
		)

		fingerprintDetectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cookiecrawler_fingerprint_detections_total",
				Help: "Total fingerprinting techniques detected, labeled by technique.",
			},
			[]string{"technique"},
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

		analysesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cookiecrawler_analyses_total",
				Help: "Total number of analyses processed, labeled by status.",
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cookiecrawler_active_workers",
				Help: "Number of workers currently running an analysis.",
			},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cookiecrawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObservePage records one visited page and how long it took.
func ObservePage(site, status string, duration time.Duration) {
	Init()
	crawlerPagesTotal.WithLabelValues(SanitizeSite(site), status).Inc()
	crawlerPageDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// ObserveRetry increments the retry counter for a site.
func ObserveRetry(site string) {
	Init()
	crawlerFetchRetriesTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveRobots records a robots.txt lookup outcome.
func ObserveRobots(outcome string) {
	Init()
	crawlerRobotsTotal.WithLabelValues(outcome).Inc()
}

// ObserveClassification records one classified cookie.
func ObserveClassification(category, method string) {
	Init()
	cookiesClassifiedTotal.WithLabelValues(category, method).Inc()
}

// ObserveFingerprint records a detected technique.
func ObserveFingerprint(technique string) {
	Init()
	fingerprintDetectionsTotal.WithLabelValues(technique).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveAnalysis increments the analysis counter for the given status.
func ObserveAnalysis(status string) {
	Init()
	analysesTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
