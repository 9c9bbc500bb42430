// Package importer reads the hospital's CSV exports into record models.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
	"github.com/synaptica-ai/hospital-analytics/pkg/intake"
)

// RowError locates a rejected CSV row. Line counts the header as line 1.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime accepts RFC3339 and the common spreadsheet layouts. Values
// without a zone are read as UTC.
func ParseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", v)
}

// table is a CSV body addressed by header name.
type table struct {
	columns map[string]int
	rows    [][]string
}

func readTable(r io.Reader, required ...string) (*table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty csv: missing header")
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	missing := lo.Filter(required, func(name string, _ int) bool {
		_, ok := columns[strings.ToLower(name)]
		return !ok
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}
	return &table{columns: columns, rows: rows}, nil
}

func (t *table) get(row []string, name string) string {
	i, ok := t.columns[strings.ToLower(name)]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (t *table) each(fn func(row []string) error) error {
	for i, row := range t.rows {
		if lo.EveryBy(row, func(cell string) bool { return strings.TrimSpace(cell) == "" }) {
			continue
		}
		if err := fn(row); err != nil {
			return RowError{Line: i + 2, Err: err}
		}
	}
	return nil
}

func atoi(name, v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", name, v)
	}
	return n, nil
}

func atof(name, v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", name, v)
	}
	return f, nil
}

// ReadFeedback parses the feedback export
// (Patient_Name,Age,Sex,Ethnicity,Category,Subcategory[,timestamp,patient_id]).
// Every row must pass validator; rows without a timestamp take now.
func ReadFeedback(r io.Reader, validator *intake.Validator, now time.Time) ([]models.FeedbackRecord, error) {
	t, err := readTable(r, "Patient_Name", "Age", "Sex", "Ethnicity", "Category", "Subcategory")
	if err != nil {
		return nil, err
	}

	var records []models.FeedbackRecord
	err = t.each(func(row []string) error {
		age, err := atoi("Age", t.get(row, "Age"))
		if err != nil {
			return err
		}
		sub := models.FeedbackSubmission{
			PatientID:   t.get(row, "patient_id"),
			PatientName: lo.ToPtr(t.get(row, "Patient_Name")),
			Age:         &age,
			Sex:         lo.ToPtr(t.get(row, "Sex")),
			Ethnicity:   lo.ToPtr(t.get(row, "Ethnicity")),
			Category:    lo.ToPtr(t.get(row, "Category")),
			Subcategory: lo.ToPtr(t.get(row, "Subcategory")),
		}
		if err := validator.Validate(sub); err != nil {
			return err
		}

		at := now.UTC()
		if raw := t.get(row, "timestamp"); raw != "" {
			if at, err = ParseTime(raw); err != nil {
				return err
			}
		}
		records = append(records, models.FeedbackRecord{
			ID:          uuid.NewString(),
			PatientID:   sub.PatientID,
			PatientName: *sub.PatientName,
			Age:         age,
			Sex:         *sub.Sex,
			Ethnicity:   *sub.Ethnicity,
			Category:    *sub.Category,
			Subcategory: *sub.Subcategory,
			Timestamp:   at,
		})
		return nil
	})
	return records, err
}

// ReadEvents parses the clinical event export
// (event_id,patient_id,event_type,timestamp[,admitted_for]).
func ReadEvents(r io.Reader) ([]models.Event, error) {
	t, err := readTable(r, "event_id", "patient_id", "event_type", "timestamp")
	if err != nil {
		return nil, err
	}

	var events []models.Event
	err = t.each(func(row []string) error {
		eventType := strings.ToLower(t.get(row, "event_type"))
		if eventType == "" {
			return errors.New("event_type is required")
		}
		at, err := ParseTime(t.get(row, "timestamp"))
		if err != nil {
			return err
		}
		id := t.get(row, "event_id")
		if id == "" {
			id = uuid.NewString()
		}
		events = append(events, models.Event{
			EventID:     id,
			PatientID:   t.get(row, "patient_id"),
			EventType:   eventType,
			AdmittedFor: t.get(row, "admitted_for"),
			Timestamp:   at,
		})
		return nil
	})
	return events, err
}

// ReadVisits parses a cohort's monthly series (Month,Visits_Before,Visits_After)
// keeping file order.
func ReadVisits(r io.Reader, cohort string) ([]models.VisitPoint, error) {
	t, err := readTable(r, "Month", "Visits_Before", "Visits_After")
	if err != nil {
		return nil, err
	}

	var points []models.VisitPoint
	err = t.each(func(row []string) error {
		before, err := atoi("Visits_Before", t.get(row, "Visits_Before"))
		if err != nil {
			return err
		}
		after, err := atoi("Visits_After", t.get(row, "Visits_After"))
		if err != nil {
			return err
		}
		points = append(points, models.VisitPoint{
			Cohort: cohort,
			Month:  t.get(row, "Month"),
			Seq:    len(points),
			Before: before,
			After:  after,
		})
		return nil
	})
	return points, err
}

// ReadOutcomes parses the before/after comparison (Subcategory,Ethnicity,Before,After).
func ReadOutcomes(r io.Reader) ([]models.OutcomeComparison, error) {
	t, err := readTable(r, "Subcategory", "Ethnicity", "Before", "After")
	if err != nil {
		return nil, err
	}

	var rows []models.OutcomeComparison
	err = t.each(func(row []string) error {
		before, err := atoi("Before", t.get(row, "Before"))
		if err != nil {
			return err
		}
		after, err := atoi("After", t.get(row, "After"))
		if err != nil {
			return err
		}
		rows = append(rows, models.OutcomeComparison{
			Subcategory: t.get(row, "Subcategory"),
			Ethnicity:   t.get(row, "Ethnicity"),
			Before:      before,
			After:       after,
		})
		return nil
	})
	return rows, err
}

// ReadSentiments parses scored feedback (sentiment,rating,polarity,timestamp).
func ReadSentiments(r io.Reader) ([]models.SentimentRecord, error) {
	t, err := readTable(r, "sentiment", "rating", "polarity", "timestamp")
	if err != nil {
		return nil, err
	}

	var records []models.SentimentRecord
	err = t.each(func(row []string) error {
		rating, err := atof("rating", t.get(row, "rating"))
		if err != nil {
			return err
		}
		polarity, err := atof("polarity", t.get(row, "polarity"))
		if err != nil {
			return err
		}
		at, err := ParseTime(t.get(row, "timestamp"))
		if err != nil {
			return err
		}
		records = append(records, models.SentimentRecord{
			Sentiment: t.get(row, "sentiment"),
			Rating:    rating,
			Polarity:  polarity,
			Timestamp: at,
		})
		return nil
	})
	return records, err
}
