// Package metrics exposes Prometheus collectors for the keyword crawler.
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
	crawlerBytesTotal             prometheus.Counter
	crawlerFetchRetriesTotal      *prometheus.CounterVec
	crawlerJobsTotal              *prometheus.CounterVec
	crawlerKeywordsCreatedTotal   prometheus.Counter
	crawlerCandidatesTotal        *prometheus.CounterVec
	crawlerStaleDomainsResetTotal prometheus.Counter
	crawlerActiveWorkers          prometheus.Gauge
	crawlerRateLimitDelaysSeconds prometheus.Histogram
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyword_crawler_pages_total",
				Help: "Total number of pages fetched, labeled by section role and outcome.",
			},
			[]string{"role", "outcome"},
		)

		crawlerBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "keyword_crawler_bytes_total",
				Help: "Total number of body bytes fetched.",
			},
		)

		crawlerFetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyword_crawler_fetch_retries_total",
				Help: "Total number of fetch retries, labeled by failure kind.",
			},
			[]string{"kind"},
		)

		crawlerJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyword_crawler_jobs_total",
				Help: "Total number of crawl jobs finished, labeled by status.",
			},
			[]string{"status"},
		)

		crawlerKeywordsCreatedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "keyword_crawler_keywords_created_total",
				Help: "Total number of keywords added to the master index.",
			},
		)

		crawlerCandidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyword_crawler_candidates_total",
				Help: "Keyword candidates seen by the reconciler, labeled by method and result.",
			},
			[]string{"method", "result"},
		)

		crawlerStaleDomainsResetTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "keyword_crawler_stale_domains_reset_total",
				Help: "Total number of stale in-progress domains returned to pending.",
			},
		)

		crawlerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "keyword_crawler_active_workers",
				Help: "Number of workers currently processing a domain.",
			},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "keyword_crawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 1.5, 2, 5, 10},
			},
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
	return promhttp.Handler()
}

// ObservePage counts a fetched page by role and outcome ("ok" or a failure kind).
func ObservePage(role, outcome string, bytesFetched int) {
	crawlerPagesTotal.WithLabelValues(role, outcome).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.Add(float64(bytesFetched))
	}
}

// ObserveFetchRetry counts a retried fetch.
func ObserveFetchRetry(kind string) {
	crawlerFetchRetriesTotal.WithLabelValues(kind).Inc()
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	crawlerJobsTotal.WithLabelValues(status).Inc()
}

// ObserveKeywordsCreated adds n newly created master keywords.
func ObserveKeywordsCreated(n int) {
	if n > 0 {
		crawlerKeywordsCreatedTotal.Add(float64(n))
	}
}

// ObserveCandidate counts one reconciled candidate. accepted is false when the
// exclusion filter discarded it.
func ObserveCandidate(method string, accepted bool) {
	result := "accepted"
	if !accepted {
		result = "discarded"
	}
	crawlerCandidatesTotal.WithLabelValues(method, result).Inc()
}

// ObserveStaleReset adds n domains returned to pending by the stale reset.
func ObserveStaleReset(n int64) {
	if n > 0 {
		crawlerStaleDomainsResetTotal.Add(float64(n))
	}
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	crawlerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	crawlerActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	crawlerRateLimitDelaysSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
