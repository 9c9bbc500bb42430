package importer

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
	"github.com/synaptica-ai/hospital-analytics/pkg/intake"
)

func validator() *intake.Validator {
	return intake.NewValidator(models.FormOptions{
		Sex:         models.Sexes,
		Ethnicity:   models.Ethnicities,
		Category:    models.Categories,
		Subcategory: models.Subcategories,
	})
}

func TestReadFeedback(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	input := "Patient_Name,Age,Sex,Ethnicity,Category,Subcategory,timestamp\n" +
		"Ada,34,Female,Asian,Communication,Communication Barrier,2024-01-02 08:30:00\n" +
		",,,,,,\n" +
		"Ben, 61 ,Male,White,Healthcare Access,Transport Issues,\n"

	records, err := ReadFeedback(strings.NewReader(input), validator(), now)
	require.NoError(t, err)

	want := []models.FeedbackRecord{
		{PatientName: "Ada", Age: 34, Sex: "Female", Ethnicity: "Asian", Category: "Communication",
			Subcategory: "Communication Barrier", Timestamp: time.Date(2024, 1, 2, 8, 30, 0, 0, time.UTC)},
		{PatientName: "Ben", Age: 61, Sex: "Male", Ethnicity: "White", Category: "Healthcare Access",
			Subcategory: "Transport Issues", Timestamp: now},
	}
	if diff := cmp.Diff(want, records, cmpopts.IgnoreFields(models.FeedbackRecord{}, "ID")); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	assert.NotEmpty(t, records[0].ID)
}

func TestReadFeedbackRejectsRow(t *testing.T) {
	input := "Patient_Name,Age,Sex,Ethnicity,Category,Subcategory\n" +
		"Ada,34,Female,Asian,Communication,Communication Barrier\n" +
		"Ben,34,Robot,Asian,Communication,Communication Barrier\n"

	_, err := ReadFeedback(strings.NewReader(input), validator(), time.Now())
	require.Error(t, err)
	var rowErr RowError
	require.True(t, errors.As(err, &rowErr))
	assert.Equal(t, 3, rowErr.Line)
	assert.True(t, intake.IsValidationError(err))
}

func TestReadFeedbackMissingColumns(t *testing.T) {
	_, err := ReadFeedback(strings.NewReader("Patient_Name,Age\n"), validator(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Sex")

	_, err = ReadFeedback(strings.NewReader(""), validator(), time.Now())
	require.Error(t, err)
}

func TestReadEvents(t *testing.T) {
	input := "event_id,patient_id,event_type,timestamp,admitted_for\n" +
		"e1,p1, Admitted ,2024-01-01T09:15:00Z,Delayed Diagnosis\n" +
		",p2,discharged,2024-01-01T10:00:00+02:00,\n"

	events, err := ReadEvents(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, models.Event{
		EventID: "e1", PatientID: "p1", EventType: "admitted", AdmittedFor: "Delayed Diagnosis",
		Timestamp: time.Date(2024, 1, 1, 9, 15, 0, 0, time.UTC),
	}, events[0])
	assert.NotEmpty(t, events[1].EventID)
	assert.Equal(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), events[1].Timestamp)

	_, err = ReadEvents(strings.NewReader("event_id,patient_id,event_type,timestamp\ne1,p1,admitted,yesterday\n"))
	require.Error(t, err)
}

func TestReadSeries(t *testing.T) {
	points, err := ReadVisits(strings.NewReader("Month,Visits_Before,Visits_After\nJan,10,8\nFeb,12,9\n"), models.CohortElderly)
	require.NoError(t, err)
	assert.Equal(t, []models.VisitPoint{
		{Cohort: models.CohortElderly, Month: "Jan", Seq: 0, Before: 10, After: 8},
		{Cohort: models.CohortElderly, Month: "Feb", Seq: 1, Before: 12, After: 9},
	}, points)

	rows, err := ReadOutcomes(strings.NewReader("Subcategory,Ethnicity,Before,After\nTransport Issues,White,4,2\n"))
	require.NoError(t, err)
	assert.Equal(t, []models.OutcomeComparison{{Subcategory: "Transport Issues", Ethnicity: "White", Before: 4, After: 2}}, rows)

	sentiments, err := ReadSentiments(strings.NewReader("sentiment,rating,polarity,timestamp\nPositive,4.5,0.8,2024-02-01\n"))
	require.NoError(t, err)
	require.Len(t, sentiments, 1)
	assert.Equal(t, 4.5, sentiments[0].Rating)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), sentiments[0].Timestamp)

	_, err = ReadOutcomes(strings.NewReader("Subcategory,Ethnicity,Before,After\nTransport Issues,White,four,2\n"))
	require.Error(t, err)
}
