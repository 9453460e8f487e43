// Package metrics exposes Prometheus collectors for the ingestion service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal               *prometheus.CounterVec
	fetchRetriesTotal          *prometheus.CounterVec
	documentsProcessedTotal    *prometheus.CounterVec
	sessionsTotal              prometheus.Counter
	sessionDurationSeconds     prometheus.Histogram
	similarityScanSize         prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call more than
// once.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexharvest_fetches_total",
				Help: "Total page fetches, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexharvest_fetch_retries_total",
				Help: "Fetch attempts that failed and were retried, labeled by site.",
			},
			[]string{"site"},
		)

		documentsProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexharvest_documents_processed_total",
				Help: "Total pipeline decisions, labeled by action.",
			},
			[]string{"action"},
		)

		sessionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lexharvest_sessions_total",
				Help: "Total completed crawl sessions.",
			},
		)

		sessionDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lexharvest_session_duration_seconds",
				Help:    "Histogram of crawl session durations.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
		)

		similarityScanSize = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lexharvest_similarity_scan_documents",
				Help:    "Corpus size scanned per similarity comparison.",
				Buckets: []float64{10, 100, 1000, 10000, 100000},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests, labeled by method and code.",
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

// SanitizeSite reduces a URL to a lowercase hostname label. Invalid URLs
// become "unknown".
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

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch increments the fetch counter for the given URL and outcome.
func ObserveFetch(site, outcome string) {
	fetchesTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObserveFetchRetry counts a failed attempt that will be retried.
func ObserveFetchRetry(site string) {
	fetchRetriesTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveDecision increments the decision counter for the given action.
func ObserveDecision(action string) {
	documentsProcessedTotal.WithLabelValues(action).Inc()
}

// ObserveSession records a completed session and its duration.
func ObserveSession(duration time.Duration) {
	sessionsTotal.Inc()
	sessionDurationSeconds.Observe(duration.Seconds())
}

// ObserveSimilarityScan records the corpus size of one similarity scan.
func ObserveSimilarityScan(corpusSize int) {
	similarityScanSize.Observe(float64(corpusSize))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware records request counts and latencies for an HTTP handler chain.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := routePattern(r)
		ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unknown"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
