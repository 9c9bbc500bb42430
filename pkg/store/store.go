// Package store defines the record store contract consumed by the analytics
// views and the shared filter semantics every backend must honour.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
)

var (
	// ErrUnavailable wraps transient backend failures.
	ErrUnavailable = errors.New("record store unavailable")
	ErrNotFound    = errors.New("record not found")
	ErrDuplicate   = errors.New("duplicate record")
)

// RecordStore is the read/write surface over feedback, clinical events and
// the pre-aggregated series. Filter pushdown is an optimization: every
// backend returns exactly the records the filter matches.
type RecordStore interface {
	FindFeedback(ctx context.Context, filter FeedbackFilter) ([]models.FeedbackRecord, error)
	DistinctSubcategories(ctx context.Context, filter FeedbackFilter) ([]string, error)
	InsertFeedback(ctx context.Context, record *models.FeedbackRecord) error
	FindEvents(ctx context.Context, filter EventFilter) ([]models.Event, error)
	InsertEvents(ctx context.Context, events []models.Event) error
	VisitSeries(ctx context.Context, cohort string) ([]models.VisitPoint, error)
	OutcomeComparisons(ctx context.Context) ([]models.OutcomeComparison, error)
	FindSentiments(ctx context.Context) ([]models.SentimentRecord, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// SeriesWriter is implemented by backends that accept the pre-aggregated
// series through the import tooling.
type SeriesWriter interface {
	ReplaceVisitSeries(ctx context.Context, cohort string, points []models.VisitPoint) error
	ReplaceOutcomeComparisons(ctx context.Context, rows []models.OutcomeComparison) error
	InsertSentiments(ctx context.Context, records []models.SentimentRecord) error
}

// FeedbackFilter selects feedback records. Zero values match everything.
// Sex and Subcategory compare exactly; the age range is inclusive and a nil
// bound is unbounded.
type FeedbackFilter struct {
	Sex         string
	Subcategory string
	MinAge      *int
	MaxAge      *int
	PatientIDs  []string
}

func (f FeedbackFilter) Matches(r models.FeedbackRecord) bool {
	if f.Sex != "" && r.Sex != f.Sex {
		return false
	}
	if f.Subcategory != "" && r.Subcategory != f.Subcategory {
		return false
	}
	if f.MinAge != nil && r.Age < *f.MinAge {
		return false
	}
	if f.MaxAge != nil && r.Age > *f.MaxAge {
		return false
	}
	if len(f.PatientIDs) > 0 {
		found := false
		for _, id := range f.PatientIDs {
			if id != "" && id == r.PatientID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// AgeRange builds the inclusive bounds of a bucket. A negative max is
// treated as open-ended.
func AgeRange(min, max int) (*int, *int) {
	lo := min
	if max < 0 {
		return &lo, nil
	}
	hi := max
	return &lo, &hi
}

// EventFilter selects clinical events. EventType compares case-insensitively.
// From is inclusive and To exclusive.
type EventFilter struct {
	EventType string
	From      *time.Time
	To        *time.Time
}

func (f EventFilter) Matches(e models.Event) bool {
	if f.EventType != "" && !strings.EqualFold(strings.TrimSpace(e.EventType), strings.TrimSpace(f.EventType)) {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && !e.Timestamp.Before(*f.To) {
		return false
	}
	return true
}

// Unavailable wraps err with ErrUnavailable and the failing operation.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

// WithEventIDs returns a copy of events where every blank or whitespace
// event_id is replaced by a fresh UUID. Backends deduplicate on event_id, so
// an event must never be written without one.
func WithEventIDs(events []models.Event) []models.Event {
	out := make([]models.Event, len(events))
	for i, e := range events {
		e.EventID = strings.TrimSpace(e.EventID)
		if e.EventID == "" {
			e.EventID = uuid.NewString()
		}
		out[i] = e
	}
	return out
}

// ValidCohort reports whether cohort names a stored visit series.
func ValidCohort(cohort string) bool {
	return cohort == models.CohortElderly || cohort == models.CohortPregnant
}
