// Package metrics exposes Prometheus collectors for the curation pipeline.
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
	linksExtractedTotal        *prometheus.CounterVec
	linksInsertedTotal         *prometheus.CounterVec
	crawlTotal                 *prometheus.CounterVec
	summaryTotal               *prometheus.CounterVec
	llmAttemptsTotal           *prometheus.CounterVec
	tagsUpsertedTotal          *prometheus.CounterVec
	inFlight                   *prometheus.GaugeVec
	stageDurationSeconds       *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		linksExtractedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_links_extracted_total",
				Help: "Unique links extracted from the corpus, labeled by source mode.",
			},
			[]string{"mode"},
		)

		linksInsertedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_links_inserted_total",
				Help: "Links written to the store, labeled by result (inserted or existing).",
			},
			[]string{"result"},
		)

		crawlTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_crawl_total",
				Help: "Scrape outcomes, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		summaryTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_summary_total",
				Help: "Summarization outcomes, labeled by status.",
			},
			[]string{"status"},
		)

		llmAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_llm_attempts_total",
				Help: "Language model calls, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		tagsUpsertedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_tags_upserted_total",
				Help: "Tag names resolved through upsert, labeled by the stage that requested them.",
			},
			[]string{"source"},
		)

		inFlight = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "curator_in_flight",
				Help: "Links currently being processed, labeled by stage.",
			},
			[]string{"stage"},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "curator_stage_duration_seconds",
				Help:    "Wall time of each pipeline stage.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"stage"},
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

// ObserveExtracted adds n unique links found in the given mode (markdown or ndjson).
func ObserveExtracted(mode string, n int) {
	Init()
	linksExtractedTotal.WithLabelValues(mode).Add(float64(n))
}

// ObserveInserted records the outcome of a bulk insert.
func ObserveInserted(inserted, existing int) {
	Init()
	linksInsertedTotal.WithLabelValues("inserted").Add(float64(inserted))
	linksInsertedTotal.WithLabelValues("existing").Add(float64(existing))
}

// ObserveCrawl increments the scrape outcome counter.
func ObserveCrawl(site string, status string) {
	Init()
	crawlTotal.WithLabelValues(SanitizeSite(site), status).Inc()
}

// ObserveSummary increments the summarization outcome counter.
func ObserveSummary(status string) {
	Init()
	summaryTotal.WithLabelValues(status).Inc()
}

// ObserveLLMAttempt counts one language model call.
func ObserveLLMAttempt(provider string, err error) {
	Init()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	llmAttemptsTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveTagsUpserted counts tag names resolved for a stage.
func ObserveTagsUpserted(source string, n int) {
	Init()
	tagsUpsertedTotal.WithLabelValues(source).Add(float64(n))
}

// TrackInFlight increments the in-flight gauge for stage and returns the matching decrement.
func TrackInFlight(stage string) func() {
	Init()
	g := inFlight.WithLabelValues(stage)
	g.Inc()
	return g.Dec
}

// ObserveStage records how long a stage took.
func ObserveStage(stage string, d time.Duration) {
	Init()
	stageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
