// Package metrics exposes Prometheus collectors for the scraper service.
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
	scrapeRunsTotal         *prometheus.CounterVec
	recordsExtractedTotal   *prometheus.CounterVec
	sourceFailuresTotal     *prometheus.CounterVec
	runDurationSeconds      prometheus.Histogram
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDurationSecs *prometheus.HistogramVec
	politenessDelaysSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapeRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_runs_total",
				Help: "Total number of scrape runs, labeled by terminal status.",
			},
			[]string{"status"},
		)

		recordsExtractedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_records_total",
				Help: "Total number of architecture records extracted, labeled by source.",
			},
			[]string{"source"},
		)

		sourceFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_source_failures_total",
				Help: "Total number of per-source scrape failures, labeled by source.",
			},
			[]string{"source"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scraper_run_duration_seconds",
				Help:    "Histogram of end-to-end scrape run durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		politenessDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_politeness_delays_seconds",
				Help:    "Histogram of politeness wait durations between page loads.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records one finished run with its terminal status and duration.
func ObserveRun(status string, duration time.Duration) {
	scrapeRunsTotal.WithLabelValues(status).Inc()
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveRecords counts extracted records for a source.
func ObserveRecords(source string, count int) {
	if count > 0 {
		recordsExtractedTotal.WithLabelValues(source).Add(float64(count))
	}
}

// ObserveSourceFailure counts one failed source scrape.
func ObserveSourceFailure(source string) {
	sourceFailuresTotal.WithLabelValues(source).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecs.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObservePolitenessDelay records the duration of a politeness wait.
func ObservePolitenessDelay(domain string, duration time.Duration) {
	politenessDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
