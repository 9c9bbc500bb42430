package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/hospital-analytics/pkg/analytics/views"
	"github.com/synaptica-ai/hospital-analytics/pkg/cache"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/logger"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
	"github.com/synaptica-ai/hospital-analytics/pkg/gateway/auth"
	"github.com/synaptica-ai/hospital-analytics/pkg/gateway/middleware"
	"github.com/synaptica-ai/hospital-analytics/pkg/snapshot"
	"github.com/synaptica-ai/hospital-analytics/pkg/store/memstore"
)

func init() {
	logger.Discard()
}

func seededStore(t *testing.T) *memstore.Store {
	st := memstore.New()
	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.InsertFeedback(context.Background(), &models.FeedbackRecord{
		ID: "f1", PatientName: "A", Age: 34, Sex: "Female", Ethnicity: "Asian",
		Category: "Communication", Subcategory: "Communication Barrier", Timestamp: at,
	}))
	return st
}

func serve(r *mux.Router, method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

type countingRunner struct {
	calls int
	err   error
}

func (c *countingRunner) Run(_ context.Context, name string, params views.Params) (views.Report, error) {
	c.calls++
	if c.err != nil {
		return views.Report{}, c.err
	}
	return views.Report{Name: name, Params: params, Data: map[string]string{"sex": params.Get("sex")}}, nil
}

func TestAnalyticsDashboardRoute(t *testing.T) {
	r := mux.NewRouter()
	NewAnalyticsHandler(views.NewService(seededStore(t)), nil).Register(r)

	rec := serve(r, http.MethodGet, "/api/feedback/analysis", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []views.FeedbackAnalysisRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Communication", rows[0].ID.Category)

	rec = serve(r, http.MethodGet, "/api/feedback/subcategory-ethnicity?gender=robot", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "robot")
}

func TestAnalyticsStoreFailureIsInternal(t *testing.T) {
	st := seededStore(t)
	st.Fail(errors.New("connection refused"))
	r := mux.NewRouter()
	NewAnalyticsHandler(views.NewService(st), nil).Register(r)

	rec := serve(r, http.MethodGet, "/api/feedback/analysis", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestAnalyticsCachesByParams(t *testing.T) {
	runner := &countingRunner{}
	r := mux.NewRouter()
	NewAnalyticsHandler(runner, cache.NewMemory(time.Minute)).Register(r)

	first := serve(r, http.MethodGet, "/api/reports/age-sex?sex=Male", "")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := serve(r, http.MethodGet, "/api/reports/age-sex?sex=Male", "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	serve(r, http.MethodGet, "/api/reports/age-sex?sex=Female", "")
	assert.Equal(t, 2, runner.calls)
}

func TestAnalyticsUnknownReport(t *testing.T) {
	r := mux.NewRouter()
	NewAnalyticsHandler(views.NewService(memstore.New()), nil).Register(r)

	rec := serve(r, http.MethodGet, "/api/reports/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown report")

	rec = serve(r, http.MethodGet, "/api/reports/age-sex?scheme=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(r, http.MethodGet, "/api/reports", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["reports"], "final-results")
}

func TestChatIntent(t *testing.T) {
	r := mux.NewRouter()
	NewChatHandler().Register(r)

	rec := serve(r, http.MethodPost, "/api/chat/intent", `{"question":"How has patient sentiment changed?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Matched bool `json:"matched"`
		Intent  struct {
			Report string `json:"report"`
		} `json:"intent"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Matched)
	assert.Equal(t, "sentiment-comparison", resp.Intent.Report)

	rec = serve(r, http.MethodPost, "/api/chat/intent", `{"question":"what is the weather"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"matched":false}`, rec.Body.String())

	rec = serve(r, http.MethodPost, "/api/chat/intent", `{"question":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	st := memstore.New()
	r := mux.NewRouter()
	NewHealthHandler(st, time.Second).Register(r)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ready", "").Code)

	st.Fail(errors.New("down"))
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodGet, "/ready", "").Code)
}

type staticValidator struct{}

func (staticValidator) ValidateToken(context.Context, string) (*auth.Principal, error) {
	return &auth.Principal{Subject: "analyst-7"}, nil
}

func TestSnapshotLifecycle(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	require.NoError(t, st.ReplaceOutcomeComparisons(ctx, []models.OutcomeComparison{
		{Subcategory: "Transport Issues", Ethnicity: "White", Before: 4, After: 2},
	}))
	m := snapshot.NewMaterializer(snapshot.NewMemoryRepository(), views.NewService(st), 1, time.Second)

	r := mux.NewRouter()
	r.Use(middleware.Authenticate(staticValidator{}))
	NewSnapshotHandler(m).Register(r)

	create := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/analysis/snapshots", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer token")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}
	get := func(target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Authorization", "Bearer token")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := create(`{"report":"final-results"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var snap models.ReportSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, models.SnapshotQueued, snap.Status)
	m.Wait()

	rec = get("/api/analysis/snapshots/" + snap.ID.String())
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, models.SnapshotCompleted, snap.Status)
	assert.Equal(t, "analyst-7", snap.RequestedBy)

	assert.Equal(t, http.StatusBadRequest, create(`{"report":"nope"}`).Code)
	assert.Equal(t, http.StatusBadRequest, get("/api/analysis/snapshots/not-a-uuid").Code)
	assert.Equal(t, http.StatusNotFound, get("/api/analysis/snapshots/00000000-0000-0000-0000-000000000001").Code)
	assert.Equal(t, http.StatusBadRequest, get("/api/analysis/snapshots?limit=-1").Code)

	rec = get("/api/analysis/snapshots?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Snapshots []models.ReportSnapshot `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Snapshots, 1)
}
