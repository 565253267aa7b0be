// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal              *prometheus.CounterVec
	fetchDurationSeconds    *prometheus.HistogramVec
	recordsTotal            *prometheus.CounterVec
	retriesTotal            prometheus.Counter
	rateLimitCooldownsTotal prometheus.Counter
	partitionsTotal         *prometheus.CounterVec
	activeWorkers           prometheus.Gauge
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	rateLimitDelaysSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init registers the Prometheus collectors. It is safe to call multiple
// times; every observation helper calls it lazily.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "starcrawler_pages_total",
				Help: "Total search result pages fetched, labeled by language.",
			},
			[]string{"language"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "starcrawler_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by language.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"language"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "starcrawler_records_total",
				Help: "Total records processed, labeled by outcome (unique, duplicate, malformed).",
			},
			[]string{"outcome"},
		)

		retriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "starcrawler_retries_total",
				Help: "Total transient fetch retries.",
			},
		)

		rateLimitCooldownsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "starcrawler_rate_limit_cooldowns_total",
				Help: "Total rate limit cooldown waits served.",
			},
		)

		partitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "starcrawler_partitions_total",
				Help: "Total partitions retired, labeled by outcome (completed, abandoned).",
			},
			[]string{"outcome"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "starcrawler_active_workers",
				Help: "Number of workers currently processing a page.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "starcrawler_rate_limit_delays_seconds",
				Help:    "Histogram of proactive rate gate wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)
	})
}

// SanitizeLanguage normalizes a language label; empty becomes "unknown".
func SanitizeLanguage(language string) string {
	language = strings.TrimSpace(language)
	if language == "" {
		return "unknown"
	}
	return language
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage records one fetched page for a language.
func ObservePage(language string, duration time.Duration) {
	Init()
	lang := SanitizeLanguage(language)
	pagesTotal.WithLabelValues(lang).Inc()
	fetchDurationSeconds.WithLabelValues(lang).Observe(duration.Seconds())
}

// ObserveRecords adds n records under the given outcome label.
func ObserveRecords(outcome string, n int) {
	if n <= 0 {
		return
	}
	Init()
	recordsTotal.WithLabelValues(outcome).Add(float64(n))
}

// ObserveRetry counts one transient retry.
func ObserveRetry() {
	Init()
	retriesTotal.Inc()
}

// ObserveCooldown counts one served rate limit cooldown.
func ObserveCooldown() {
	Init()
	rateLimitCooldownsTotal.Inc()
}

// ObservePartition counts one retired partition for the given outcome.
func ObservePartition(outcome string) {
	Init()
	partitionsTotal.WithLabelValues(outcome).Inc()
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

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a proactive rate gate wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}
