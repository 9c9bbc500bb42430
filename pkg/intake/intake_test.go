package intake

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
	"github.com/synaptica-ai/hospital-analytics/pkg/cache"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/logger"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
	"github.com/synaptica-ai/hospital-analytics/pkg/deid"
	"github.com/synaptica-ai/hospital-analytics/pkg/store"
	"github.com/synaptica-ai/hospital-analytics/pkg/store/memstore"
)

func init() {
	logger.Discard()
}

func str(s string) *string { return &s }
func num(n int) *int       { return &n }

func validSubmission() models.FeedbackSubmission {
	return models.FeedbackSubmission{
		PatientID:   "p-1",
		PatientName: str("Ada"),
		Age:         num(34),
		Sex:         str("Female"),
		Ethnicity:   str("Asian"),
		Category:    str("Communication"),
		Subcategory: str("Communication Barrier"),
	}
}

func formOptions() models.FormOptions {
	return models.FormOptions{
		Sex:         models.Sexes,
		Ethnicity:   models.Ethnicities,
		Category:    models.Categories,
		Subcategory: models.Subcategories,
	}
}

func TestValidate(t *testing.T) {
	v := NewValidator(formOptions())

	tests := []struct {
		name   string
		mutate func(*models.FeedbackSubmission)
		valid  bool
	}{
		{"complete", func(*models.FeedbackSubmission) {}, true},
		{"age zero is present", func(s *models.FeedbackSubmission) { s.Age = num(0) }, true},
		{"age 120", func(s *models.FeedbackSubmission) { s.Age = num(120) }, true},
		{"age above range", func(s *models.FeedbackSubmission) { s.Age = num(121) }, false},
		{"negative age", func(s *models.FeedbackSubmission) { s.Age = num(-1) }, false},
		{"missing age", func(s *models.FeedbackSubmission) { s.Age = nil }, false},
		{"missing name", func(s *models.FeedbackSubmission) { s.PatientName = nil }, false},
		{"blank name", func(s *models.FeedbackSubmission) { s.PatientName = str("  ") }, false},
		{"missing subcategory", func(s *models.FeedbackSubmission) { s.Subcategory = nil }, false},
		{"unknown ethnicity", func(s *models.FeedbackSubmission) { s.Ethnicity = str("Martian") }, false},
		{"lowercase sex", func(s *models.FeedbackSubmission) { s.Sex = str("female") }, false},
		{"padded enum", func(s *models.FeedbackSubmission) { s.Category = str(" Communication ") }, true},
		{"no patient id", func(s *models.FeedbackSubmission) { s.PatientID = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := validSubmission()
			tt.mutate(&sub)
			err := v.Validate(sub)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
		})
	}
}

type recordingPublisher struct {
	events []string
	data   []map[string]interface{}
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, eventType, _ string, data map[string]interface{}) error {
	p.events = append(p.events, eventType)
	p.data = append(p.data, data)
	return p.err
}

type failingStore struct {
	store.RecordStore
}

func (failingStore) InsertFeedback(context.Context, *models.FeedbackRecord) error {
	return store.Unavailable("insert feedback", errors.New("disk full"))
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	pub := &recordingPublisher{}
	reports := cache.NewMemory(time.Minute)
	require.NoError(t, reports.Set(ctx, cache.Key("age-sex", ""), []byte("{}")))

	svc := NewService(NewValidator(formOptions()), st, pub, reports)
	svc.now = func() time.Time { return time.Date(2024, 2, 1, 12, 0, 0, 0, time.FixedZone("X", 3600)) }

	rec, err := svc.Submit(ctx, validSubmission())
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, time.UTC, rec.Timestamp.Location())
	assert.Equal(t, 11, rec.Timestamp.Hour())

	stored, err := st.FindFeedback(ctx, store.FeedbackFilter{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, *rec, stored[0])

	_, hit, _ := reports.Get(ctx, cache.Key("age-sex", ""))
	assert.False(t, hit, "submission must invalidate cached reports")

	assert.Equal(t, []string{EventFeedbackSubmitted}, pub.events)
	assert.Equal(t, rec.ID, pub.data[0]["feedback_id"])
}

func TestSubmitPublishesPseudonym(t *testing.T) {
	st := memstore.New()
	pub := &recordingPublisher{}
	pseudo := deid.NewPseudonymizer("salt")
	svc := NewService(NewValidator(formOptions()), st, pub, nil, WithPseudonymizer(pseudo))

	rec, err := svc.Submit(context.Background(), validSubmission())
	require.NoError(t, err)
	assert.Equal(t, "p-1", rec.PatientID)
	require.Len(t, pub.data, 1)
	assert.Equal(t, pseudo.Pseudonym("p-1"), pub.data[0]["patient_id"])
}

func TestSubmitKeepsRecordWhenPublishFails(t *testing.T) {
	st := memstore.New()
	svc := NewService(NewValidator(formOptions()), st, &recordingPublisher{err: errors.New("broker down")}, nil)

	_, err := svc.Submit(context.Background(), validSubmission())
	require.NoError(t, err)
	stored, _ := st.FindFeedback(context.Background(), store.FeedbackFilter{})
	assert.Len(t, stored, 1)
}

func TestSubmitStoreFailure(t *testing.T) {
	svc := NewService(NewValidator(formOptions()), failingStore{memstore.New()}, nil, nil)

	_, err := svc.Submit(context.Background(), validSubmission())
	require.Error(t, err)
	assert.False(t, IsValidationError(err))
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func newRouter(st store.RecordStore) *mux.Router {
	router := mux.NewRouter()
	svc := NewService(NewValidator(formOptions()), st, nil, nil)
	NewHTTPHandler(svc, 1<<20).Register(router)
	return router
}

func TestHandleSubmit(t *testing.T) {
	router := newRouter(memstore.New())

	body := `{"Patient_Name":"Ada","Age":0,"Sex":"Female","Ethnicity":"Asian","Category":"None","Subcategory":"None"}`
	req := httptest.NewRequest(http.MethodPost, "/api/feedback/submit", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Message  string                `json:"message"`
		Feedback models.FeedbackRecord `json:"feedback"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Feedback submitted successfully", resp.Message)
	assert.Equal(t, "Ada", resp.Feedback.PatientName)
	assert.Equal(t, 0, resp.Feedback.Age)
}

func TestHandleSubmitRejects(t *testing.T) {
	router := newRouter(memstore.New())

	for name, body := range map[string]string{
		"malformed":     `{"Age":`,
		"missing field": `{"Patient_Name":"Ada","Age":30,"Sex":"Female","Ethnicity":"Asian","Category":"None"}`,
		"bad age":       `{"Patient_Name":"Ada","Age":130,"Sex":"Female","Ethnicity":"Asian","Category":"None","Subcategory":"None"}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/feedback/submit", strings.NewReader(body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/feedback/submit", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleSubmitStoreFailure(t *testing.T) {
	router := newRouter(failingStore{memstore.New()})

	body := `{"Patient_Name":"Ada","Age":30,"Sex":"Female","Ethnicity":"Asian","Category":"None","Subcategory":"None"}`
	req := httptest.NewRequest(http.MethodPost, "/api/feedback/submit", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk full")
}
