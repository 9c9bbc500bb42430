package views

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/hospital-analytics/pkg/analytics/derive"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
	"github.com/synaptica-ai/hospital-analytics/pkg/store"
	"github.com/synaptica-ai/hospital-analytics/pkg/store/memstore"
)

var reference = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	t     *testing.T
	store *memstore.Store
	svc   *Service
	seq   int
}

func newFixture(t *testing.T) *fixture {
	st := memstore.New()
	return &fixture{
		t:     t,
		store: st,
		svc:   NewService(st, WithClock(func() time.Time { return reference })),
	}
}

func (f *fixture) feedback(patient string, age int, sex, ethnicity, category, subcategory string, at time.Time) {
	f.seq++
	require.NoError(f.t, f.store.InsertFeedback(context.Background(), &models.FeedbackRecord{
		ID:          fmt.Sprintf("f%d", f.seq),
		PatientID:   patient,
		PatientName: "Patient " + patient,
		Age:         age,
		Sex:         sex,
		Ethnicity:   ethnicity,
		Category:    category,
		Subcategory: subcategory,
		Timestamp:   at,
	}))
}

func (f *fixture) event(patient, eventType, reason string, at time.Time) {
	f.seq++
	require.NoError(f.t, f.store.InsertEvents(context.Background(), []models.Event{{
		EventID:     fmt.Sprintf("e%d", f.seq),
		PatientID:   patient,
		EventType:   eventType,
		AdmittedFor: reason,
		Timestamp:   at,
	}}))
}

func TestSubcategoryEthnicityIsZeroFilled(t *testing.T) {
	f := newFixture(t)
	f.feedback("p1", 30, "Male", "Asian", "Communication", "Communication Barrier", reference)
	f.feedback("p2", 40, "Female", "Asian", "Communication", "Communication Barrier", reference)
	f.feedback("p3", 40, "Female", "Black", "Healthcare Access", "Transport Issues", reference)

	rows, err := f.svc.SubcategoryEthnicity(context.Background(), SubcategoryEthnicityQuery{Sex: "female"})
	require.NoError(t, err)

	require.Len(t, rows, len(models.Subcategories))
	for _, row := range rows {
		assert.Len(t, row.EthnicityData, len(models.Ethnicities))
	}
	assert.Equal(t, "Communication Barrier", rows[0].Subcategory)
	assert.Equal(t, EthnicityCount{Ethnicity: "Asian", Count: 1}, rows[0].EthnicityData[1])
	assert.Equal(t, 1, rows[4].Total)

	_, err = f.svc.SubcategoryEthnicity(context.Background(), SubcategoryEthnicityQuery{Sex: "other"})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestSubcategoryEthnicityOnEmptyStore(t *testing.T) {
	f := newFixture(t)
	rows, err := f.svc.SubcategoryEthnicity(context.Background(), SubcategoryEthnicityQuery{})
	require.NoError(t, err)
	require.Len(t, rows, len(models.Subcategories))
	for _, row := range rows {
		assert.Zero(t, row.Total)
	}
}

func TestFeedbackAnalysisGroupsByCategoryAndEthnicity(t *testing.T) {
	f := newFixture(t)
	f.feedback("p1", 30, "Male", "White", "Communication", "Communication Barrier", reference)
	f.feedback("p2", 30, "Male", "White", "Communication", "Communication Barrier", reference)
	f.feedback("p3", 30, "Male", "White", "Communication", "Delayed Diagnosis", reference)
	f.feedback("p4", 30, "Male", "Black", "Diagnosis Issues", "Delayed Diagnosis", reference)

	rows, err := f.svc.FeedbackAnalysis(context.Background())
	require.NoError(t, err)

	want := []FeedbackAnalysisRow{
		{
			ID:            CategoryEthnicityKey{Category: "Diagnosis Issues", Ethnicity: "Black"},
			Subcategories: []SubcategoryCount{{Subcategory: "Delayed Diagnosis", Count: 1}},
		},
		{
			ID: CategoryEthnicityKey{Category: "Communication", Ethnicity: "White"},
			Subcategories: []SubcategoryCount{
				{Subcategory: "Communication Barrier", Count: 2},
				{Subcategory: "Delayed Diagnosis", Count: 1},
			},
		},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("feedback analysis mismatch (-want +got):\n%s", diff)
	}
}

func TestAgeSubcategory(t *testing.T) {
	f := newFixture(t)
	f.feedback("p1", 18, "Male", "White", "Communication", "Transport Issues", reference)
	f.feedback("p2", 60, "Female", "White", "Communication", "Transport Issues", reference)
	f.feedback("p3", 61, "Female", "White", "Communication", "Delayed Diagnosis", reference)

	rows, err := f.svc.AgeSubcategory(context.Background(), AgeSubcategoryQuery{Subcategory: "all"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Delayed Diagnosis", rows[0].Subcategory)
	assert.Equal(t, AgeCount{AgeRange: "61+", Count: 1}, rows[0].AgeData[4])
	assert.Equal(t, []AgeCount{
		{AgeRange: "0-18", Count: 1},
		{AgeRange: "19-30", Count: 0},
		{AgeRange: "31-45", Count: 0},
		{AgeRange: "46-60", Count: 1},
		{AgeRange: "61+", Count: 0},
	}, rows[1].AgeData)

	rows, err = f.svc.AgeSubcategory(context.Background(), AgeSubcategoryQuery{Subcategory: "Postpartum Infections"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	for _, a := range rows[0].AgeData {
		assert.Zero(t, a.Count)
	}

	_, err = f.svc.AgeSubcategory(context.Background(), AgeSubcategoryQuery{Scheme: "nope"})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestAgeSexScenario(t *testing.T) {
	f := newFixture(t)
	f.feedback("p1", 17, "Male", "White", "None", "None", reference)
	f.feedback("p2", 45, "Female", "White", "None", "None", reference)
	f.feedback("p3", 45, "Female", "White", "None", "None", reference)

	view, err := f.svc.AgeSex(context.Background(), AgeSexQuery{})
	require.NoError(t, err)

	assert.Equal(t, derive.SchemeStandard.Name, view.Scheme)
	assert.Equal(t, derive.SchemeStandard.Labels(), []string{
		view.Table.Rows[0].Key, view.Table.Rows[1].Key, view.Table.Rows[2].Key,
		view.Table.Rows[3].Key, view.Table.Rows[4].Key,
	})
	assert.Equal(t, []int{1, 0}, view.Table.Rows[0].Counts())
	assert.Equal(t, []int{0, 2}, view.Table.Rows[2].Counts())
	for _, i := range []int{1, 3, 4} {
		assert.Equal(t, []int{0, 0}, view.Table.Rows[i].Counts())
	}
	assert.Equal(t, 3, view.Summary.TotalRecords)
	assert.Equal(t, "31-45", view.Summary.HighestRow)
	assert.Equal(t, "Female", view.Summary.HighestColumn)
}

func seedAdmissions(f *fixture) {
	f.feedback("p1", 60, "Female", "Asian", "Diagnosis Issues", "Delayed Diagnosis", reference)
	f.feedback("p1", 60, "Female", "Asian", "Communication", "Communication Barrier", reference)
	f.feedback("p2", 50, "Male", "Black", "Diagnosis Issues", "Delayed Diagnosis", reference)
	f.feedback("p3", 25, "Male", "", "Healthcare Access", "Transport Issues", reference)
	f.feedback("p9", 25, "Male", "White", "Healthcare Access", "Transport Issues", reference)

	f.event("p1", "admitted", "Cardiology", reference)
	f.event("p2", "Admitted", "Cardiology", reference)
	f.event("p3", "admitted", "", reference)
	f.event("p9", "discharged", "Cardiology", reference)
	f.event("", "admitted", "Orthopedics", reference)
}

func TestAdmissionIssues(t *testing.T) {
	f := newFixture(t)
	seedAdmissions(f)

	view, err := f.svc.AdmissionIssues(context.Background(), AdmissionQuery{})
	require.NoError(t, err)

	require.Len(t, view.DetailedAnalysis, 2)
	cardio := view.DetailedAnalysis[0]
	assert.Equal(t, "Cardiology", cardio.AdmittedFor)
	assert.Equal(t, 3, cardio.TotalIssues)
	assert.Equal(t, 2, cardio.UniquePatients)
	assert.Equal(t, AdmissionIssue{
		Category: "Diagnosis Issues", Subcategory: "Delayed Diagnosis", Demographic: "Asian", Count: 1,
	}, cardio.MostCommonIssues[0])

	unknown := view.DetailedAnalysis[1]
	assert.Equal(t, models.Unknown, unknown.AdmittedFor)
	assert.Equal(t, models.Unknown, unknown.MostCommonIssues[0].Demographic)

	assert.Equal(t, 4, view.Summary.TotalRecords)
	assert.Equal(t, 2, view.Summary.AdmissionTypes)
	require.Len(t, view.Summary.TopIssues, 2)
	assert.Equal(t, cardio.MostCommonIssues, view.Summary.TopIssues[0].MainProblems)
}

func TestAdmissionIssuesAgeGroupUsesAdmissionScheme(t *testing.T) {
	f := newFixture(t)
	seedAdmissions(f)

	view, err := f.svc.AdmissionIssues(context.Background(), AdmissionQuery{AgeGroup: "46-60"})
	require.NoError(t, err)
	require.Len(t, view.DetailedAnalysis, 1)
	assert.Equal(t, 1, view.DetailedAnalysis[0].TotalIssues, "age 60 belongs to 60+ under the admission scheme")

	view, err = f.svc.AdmissionIssues(context.Background(), AdmissionQuery{AgeGroup: "60+", Sex: "Female"})
	require.NoError(t, err)
	require.Len(t, view.DetailedAnalysis, 1)
	assert.Equal(t, 2, view.DetailedAnalysis[0].TotalIssues)

	_, err = f.svc.AdmissionIssues(context.Background(), AdmissionQuery{AgeGroup: "61+"})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestAdmissionIssuesWithoutAdmissions(t *testing.T) {
	f := newFixture(t)
	view, err := f.svc.AdmissionIssues(context.Background(), AdmissionQuery{})
	require.NoError(t, err)
	assert.NotNil(t, view.DetailedAnalysis)
	assert.NotNil(t, view.Summary.TopIssues)
	assert.Zero(t, view.Summary.TotalRecords)

	out, err := json.Marshal(view)
	require.NoError(t, err)
	assert.JSONEq(t, `{"detailed_analysis":[],"summary":{"total_records":0,"admission_types":0,"top_issues":[]}}`, string(out))
}

func TestAdmissionSubcategories(t *testing.T) {
	f := newFixture(t)
	seedAdmissions(f)

	view, err := f.svc.AdmissionSubcategories(context.Background(), AdmissionQuery{})
	require.NoError(t, err)

	assert.Equal(t, models.Subcategories, view.Subcategories)
	assert.Equal(t, []string{"Cardiology", models.Unknown}, view.AdmissionReasons)
	assert.Equal(t, []int{1, 2, 0, 0, 0, 0}, view.Data[0].Subcategories)
	assert.Equal(t, 3, view.Data[0].Total)
	assert.Equal(t, []int{0, 0, 0, 0, 1, 0}, view.Data[1].Subcategories)
}

func TestEventSummaryHourly(t *testing.T) {
	f := newFixture(t)
	day1 := time.Date(2024, 3, 4, 9, 5, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	for i := 0; i < 3; i++ {
		f.event("", "admitted", "", day1.Add(time.Duration(i)*time.Minute))
	}
	f.event("", "admitted", "", day2)
	f.event("", "admitted", "", day2.Add(time.Hour))
	f.event("", "discharged", "", day2.Add(2*time.Hour))

	view, err := f.svc.EventSummary(context.Background(), EventSummaryQuery{EventType: "admitted", Granularity: "hourly"})
	require.NoError(t, err)

	assert.Equal(t, []EventSlot{
		{Label: "9:00 - 10:00", AvgCount: 2},
		{Label: "10:00 - 11:00", AvgCount: 1},
	}, view.Data)
	require.NotNil(t, view.Highest)
	assert.Equal(t, "9:00 - 10:00", *view.Highest)
	assert.Equal(t, "10:00 - 11:00", *view.Lowest)
}

func TestEventSummaryDaily(t *testing.T) {
	f := newFixture(t)
	monday := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	f.event("", "admitted", "", monday)
	f.event("", "admitted", "", monday.Add(time.Hour))
	f.event("", "admitted", "", monday.AddDate(0, 0, 7))
	f.event("", "admitted", "", monday.AddDate(0, 0, 6))

	view, err := f.svc.EventSummary(context.Background(), EventSummaryQuery{Granularity: "daily"})
	require.NoError(t, err)

	assert.Equal(t, []EventSlot{
		{Label: "Sunday", AvgCount: 1},
		{Label: "Monday", AvgCount: 1.5},
	}, view.Data)
	assert.Equal(t, "Monday", *view.Highest)
	assert.Equal(t, "Sunday", *view.Lowest)

	_, err = f.svc.EventSummary(context.Background(), EventSummaryQuery{Granularity: "monthly"})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestEventSummaryEmpty(t *testing.T) {
	f := newFixture(t)
	view, err := f.svc.EventSummary(context.Background(), EventSummaryQuery{EventType: "admitted"})
	require.NoError(t, err)

	out, err := json.Marshal(view)
	require.NoError(t, err)
	assert.JSONEq(t, `{"granularity":"hourly","data":[],"highest":null,"lowest":null}`, string(out))
}

func TestWeekOfYearStartsOnSunday(t *testing.T) {
	assert.Equal(t, 0, weekOfYear(time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, weekOfYear(time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, weekOfYear(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestFeedbackImpactEqualDailyAverages(t *testing.T) {
	f := newFixture(t)
	start := reference.AddDate(0, 0, -10)
	for d := 0; d < 10; d++ {
		for i := 0; i < 10; i++ {
			f.event("", "admitted", "", start.AddDate(0, 0, d).Add(time.Duration(i)*time.Minute))
		}
	}
	for d := 0; d < 8; d++ {
		for i := 0; i < 10; i++ {
			f.event("", "admitted", "", reference.AddDate(0, 0, d).Add(time.Duration(i)*time.Minute))
		}
	}

	view, err := f.svc.FeedbackImpact(context.Background(), FeedbackImpactQuery{EventType: "admitted", ReferenceDate: "2024-01-01"})
	require.NoError(t, err)

	assert.Equal(t, derive.NewPercent(10), view.Summary.BeforeDate.AvgEventsPerDay)
	assert.Equal(t, derive.NewPercent(10), view.Summary.AfterDate.AvgEventsPerDay)
	assert.Equal(t, "0.00", view.Summary.Improvement.Events.String())
	assert.Len(t, view.EventsBefore, 10)
	assert.Len(t, view.EventsAfter, 8)
	assert.False(t, view.Summary.Improvement.Feedback.Valid)

	_, err = f.svc.FeedbackImpact(context.Background(), FeedbackImpactQuery{ReferenceDate: "01/02/2024"})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestFeedbackImpactBoundaryAndEngagement(t *testing.T) {
	f := newFixture(t)
	f.event("p1", "admitted", "", reference.Add(-time.Hour))
	f.event("p2", "admitted", "", reference)
	f.feedback("p2", 30, "Male", "White", "None", "None", reference)

	view, err := f.svc.FeedbackImpact(context.Background(), FeedbackImpactQuery{})
	require.NoError(t, err)

	assert.Equal(t, 1, view.Summary.BeforeDate.TotalEvents)
	assert.Equal(t, 1, view.Summary.AfterDate.TotalEvents)
	assert.Equal(t, 1, view.Summary.AfterDate.TotalFeedback)
	assert.Equal(t, derive.NewPercent(0), view.Summary.BeforeDate.EngagementPercent)
	assert.Equal(t, derive.NewPercent(100), view.Summary.AfterDate.EngagementPercent)
	assert.Equal(t, derive.NewPercent(100), view.Summary.Improvement.Engagement)
}

func TestVisitTrend(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.ReplaceVisitSeries(context.Background(), models.CohortElderly, []models.VisitPoint{
		{Month: "Jan", Before: 10, After: 6},
		{Month: "Feb", Before: 30, After: 14},
	}))

	view, err := f.svc.VisitTrend(context.Background(), "Elderly")
	require.NoError(t, err)

	assert.Equal(t, 40, view.Stats.TotalBefore)
	assert.Equal(t, derive.NewPercent(20), view.Stats.AvgBefore)
	assert.Equal(t, 30, view.Stats.HighestBefore)
	assert.Equal(t, 20, view.Stats.TotalAfter)
	assert.Equal(t, derive.NewPercent(50), view.Stats.Improvement)
	assert.Equal(t, derive.NewPercent(-50), view.Stats.Change)

	out, err := json.Marshal(view.Visits[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"Month":"Jan","Elderly_Visits_Before":10,"Elderly_Visits_After":6}`, string(out))

	empty, err := f.svc.VisitTrend(context.Background(), models.CohortPregnant)
	require.NoError(t, err)
	assert.False(t, empty.Stats.AvgBefore.Valid)
	assert.False(t, empty.Stats.Improvement.Valid)

	_, err = f.svc.VisitTrend(context.Background(), "teenagers")
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestFinalResults(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.ReplaceOutcomeComparisons(context.Background(), []models.OutcomeComparison{
		{Subcategory: "Transport Issues", Ethnicity: "White", Before: 10, After: 5},
		{Subcategory: "Delayed Diagnosis", Ethnicity: "Black", Before: 8, After: 8},
		{Subcategory: "Transport Issues", Ethnicity: "Black", Before: 10, After: 5},
	}))

	view, err := f.svc.FinalResults(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Delayed Diagnosis", "Transport Issues"}, view.Subcategories)
	assert.Equal(t, []OutcomeRow{
		{Ethnicity: "Black", Before: 10, After: 5},
		{Ethnicity: "White", Before: 10, After: 5},
	}, view.GroupedData["Transport Issues"])
	assert.Equal(t, OutcomeStats{TotalBefore: 20, TotalAfter: 10, Improvement: derive.NewPercent(50)}, view.Statistics["Transport Issues"])
	assert.Equal(t, derive.NewPercent(0), view.Statistics["Delayed Diagnosis"].Improvement)
}

func TestSentimentComparison(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.InsertSentiments(context.Background(), []models.SentimentRecord{
		{Sentiment: "Negative", Rating: 2, Polarity: -0.5, Timestamp: reference.AddDate(0, 0, -3)},
		{Sentiment: "Neutral", Rating: 4, Polarity: 0.5, Timestamp: reference.AddDate(0, 0, -2)},
		{Sentiment: "Positive", Rating: 4, Polarity: 0.5, Timestamp: reference},
		{Sentiment: "Positive", Rating: 5, Polarity: 1, Timestamp: reference.AddDate(0, 0, 1)},
	}))

	view, err := f.svc.SentimentComparison(context.Background(), SentimentQuery{ReferenceDate: "2024-01-01"})
	require.NoError(t, err)

	assert.Equal(t, []SentimentCount{{"Positive", 0}, {"Neutral", 1}, {"Negative", 1}}, view.Before.Sentiments)
	assert.Equal(t, []SentimentCount{{"Positive", 2}, {"Neutral", 0}, {"Negative", 0}}, view.After.Sentiments)
	assert.Equal(t, derive.NewPercent(3), view.Before.Stats.AverageRating)
	assert.Equal(t, derive.NewPercent(4.5), view.After.Stats.AverageRating)
	assert.Equal(t, derive.NewPercent(50), view.Improvements.Rating)
	assert.False(t, view.Improvements.Polarity.Valid, "zero baseline polarity is not computable")
}

func TestSentimentImprovementFromUnroundedMeans(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.InsertSentiments(context.Background(), []models.SentimentRecord{
		{Sentiment: "Negative", Rating: 1, Polarity: 0.1, Timestamp: reference.AddDate(0, 0, -3)},
		{Sentiment: "Neutral", Rating: 1, Polarity: 0.1, Timestamp: reference.AddDate(0, 0, -2)},
		{Sentiment: "Neutral", Rating: 2, Polarity: 0.2, Timestamp: reference.AddDate(0, 0, -1)},
		{Sentiment: "Positive", Rating: 1, Polarity: 0.2, Timestamp: reference},
		{Sentiment: "Positive", Rating: 2, Polarity: 0.2, Timestamp: reference.AddDate(0, 0, 1)},
		{Sentiment: "Positive", Rating: 2, Polarity: 0.2, Timestamp: reference.AddDate(0, 0, 2)},
	}))

	view, err := f.svc.SentimentComparison(context.Background(), SentimentQuery{ReferenceDate: "2024-01-01"})
	require.NoError(t, err)

	assert.Equal(t, derive.NewPercent(1.33), view.Before.Stats.AverageRating)
	assert.Equal(t, derive.NewPercent(1.67), view.After.Stats.AverageRating)
	assert.Equal(t, derive.NewPercent(25), view.Improvements.Rating)
	assert.Equal(t, derive.NewPercent(50), view.Improvements.Polarity)
}

func TestStoreFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.store.Fail(errors.New("connection reset"))

	_, err := f.svc.FeedbackImpact(context.Background(), FeedbackImpactQuery{})
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidQuery)

	_, err = f.svc.Run(context.Background(), "subcategory-ethnicity", nil)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	f.feedback("p1", 17, "Male", "White", "None", "None", reference)

	report, err := f.svc.Run(context.Background(), "age-sex", Params{"gender": "all"})
	require.NoError(t, err)
	assert.Equal(t, "age-sex", report.Name)
	assert.Equal(t, reference, report.GeneratedAt)
	assert.IsType(t, AgeSexView{}, report.Data)

	_, err = f.svc.Run(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownReport)
	assert.NotErrorIs(t, err, ErrInvalidQuery)

	assert.Contains(t, ReportNames(), "sentiment-comparison")
	assert.True(t, HasReport("options"))
}

func TestParamsCanonical(t *testing.T) {
	p := Params{"sex": "Male", "ageGroup": "19-30", "subcategory": " "}
	assert.Equal(t, "ageGroup=19-30&sex=Male", p.Canonical())
	assert.Equal(t, "Male", p.Get("gender", "sex"))
}
