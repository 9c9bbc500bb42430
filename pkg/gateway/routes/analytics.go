package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/hospital-analytics/pkg/analytics/views"
	"github.com/synaptica-ai/hospital-analytics/pkg/cache"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/logger"
	"github.com/synaptica-ai/hospital-analytics/pkg/observability/metrics"
)

// ReportRunner computes named reports; views.Service implements it.
type ReportRunner interface {
	Run(ctx context.Context, name string, params views.Params) (views.Report, error)
}

// dashboardRoutes maps the dashboard's endpoints onto reports.
var dashboardRoutes = []struct {
	path   string
	report string
}{
	{"/api/feedback/subcategory-ethnicity", "subcategory-ethnicity"},
	{"/api/feedback/analysis", "feedback-analysis"},
	{"/api/feedback/age-subcategory", "age-subcategory"},
	{"/api/feedback/age-sex", "age-sex"},
	{"/api/feedback/options", "options"},
	{"/api/analysis/admission-issues", "admission-issues"},
	{"/api/analysis/admission-subcategories", "admission-subcategories"},
	{"/api/analysis/event-summary", "event-summary"},
	{"/api/analysis/feedback-impact", "feedback-impact"},
	{"/api/analysis/elderly-visits", "elderly-visits"},
	{"/api/analysis/pregnant-visits", "pregnant-visits"},
	{"/api/analysis/final-results", "final-results"},
	{"/api/analysis/sentiment-comparison", "sentiment-comparison"},
}

type AnalyticsHandler struct {
	runner ReportRunner
	cache  cache.ReportCache
}

func NewAnalyticsHandler(runner ReportRunner, reports cache.ReportCache) *AnalyticsHandler {
	if reports == nil {
		reports = cache.Nop{}
	}
	return &AnalyticsHandler{runner: runner, cache: reports}
}

func (h *AnalyticsHandler) Register(r *mux.Router) {
	for _, route := range dashboardRoutes {
		report := route.report
		r.HandleFunc(route.path, func(w http.ResponseWriter, req *http.Request) {
			h.serveReport(w, req, report)
		}).Methods(http.MethodGet)
	}
	r.HandleFunc("/api/reports", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/api/reports/{name}", func(w http.ResponseWriter, req *http.Request) {
		h.serveReport(w, req, mux.Vars(req)["name"])
	}).Methods(http.MethodGet)
}

func (h *AnalyticsHandler) handleList(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"reports": views.ReportNames()})
}

func queryParams(r *http.Request) views.Params {
	params := views.Params{}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return params
}

func (h *AnalyticsHandler) serveReport(w http.ResponseWriter, r *http.Request, name string) {
	ctx := r.Context()
	log := logger.FromContext(ctx).WithField("report", name)
	params := queryParams(r)
	key := cache.Key(name, params.Canonical())

	cached, hit, err := h.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.ObserveCache(metrics.CacheError)
		log.WithError(err).Warn("Report cache unavailable")
	case hit:
		metrics.ObserveCache(metrics.CacheHit)
		w.Header().Set("X-Cache", "HIT")
		respondRaw(w, http.StatusOK, cached)
		return
	default:
		metrics.ObserveCache(metrics.CacheMiss)
	}

	start := time.Now()
	report, err := h.runner.Run(ctx, name, params)
	if err != nil {
		if errors.Is(err, views.ErrUnknownReport) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		if errors.Is(err, views.ErrInvalidQuery) {
			metrics.ObserveReport(name, metrics.OutcomeInvalid, time.Since(start))
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		metrics.ObserveReport(name, metrics.OutcomeError, time.Since(start))
		log.WithError(err).Error("Failed to compute report")
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	metrics.ObserveReport(name, metrics.OutcomeOK, time.Since(start))

	body, err := json.Marshal(report.Data)
	if err != nil {
		log.WithError(err).Error("Failed to encode report")
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := h.cache.Set(ctx, key, body); err != nil {
		log.WithError(err).Warn("Failed to cache report")
	}
	w.Header().Set("X-Cache", "MISS")
	respondRaw(w, http.StatusOK, body)
}
