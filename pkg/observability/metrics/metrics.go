package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hospital_analytics"

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	reportComputations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "report_computations_total",
		Help:      "Reports computed, by report and outcome.",
	}, []string{"report", "outcome"})

	reportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "report_duration_seconds",
		Help:      "Time spent computing a report.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"report"})

	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "report_cache_requests_total",
		Help:      "Report cache lookups by result (hit, miss, error).",
	}, []string{"result"})

	feedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_events_total",
		Help:      "Clinical events received from the feed, by outcome.",
	}, []string{"outcome"})

	feedbackSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feedback_submissions_total",
		Help:      "Feedback submissions by outcome.",
	}, []string{"outcome"})

	snapshotJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "report_snapshots_total",
		Help:      "Report snapshot jobs by final status.",
	}, []string{"status"})
)

const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"

	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Init pre-creates the per-report series so they are exported as zero before
// the first request.
func Init(reports []string) {
	for _, r := range reports {
		for _, outcome := range []string{OutcomeOK, OutcomeInvalid, OutcomeError} {
			reportComputations.WithLabelValues(r, outcome)
		}
	}
	for _, result := range []string{CacheHit, CacheMiss, CacheError} {
		cacheRequests.WithLabelValues(result)
	}
}

func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func ObserveReport(report, outcome string, elapsed time.Duration) {
	reportComputations.WithLabelValues(report, outcome).Inc()
	reportDuration.WithLabelValues(report).Observe(elapsed.Seconds())
}

func ObserveCache(result string) {
	cacheRequests.WithLabelValues(result).Inc()
}

func ObserveFeedEvents(outcome string, n int) {
	feedEvents.WithLabelValues(outcome).Add(float64(n))
}

func ObserveSubmission(outcome string) {
	feedbackSubmissions.WithLabelValues(outcome).Inc()
}

func ObserveSnapshot(status string) {
	snapshotJobs.WithLabelValues(status).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
