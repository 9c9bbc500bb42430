// Package memstore is an in-memory RecordStore used by tests and by the
// service when STORE_DRIVER=memory.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
	"github.com/synaptica-ai/hospital-analytics/pkg/store"
)

type Store struct {
	mu          sync.RWMutex
	feedback    []models.FeedbackRecord
	events      []models.Event
	visits      map[string][]models.VisitPoint
	outcomes    []models.OutcomeComparison
	sentiments  []models.SentimentRecord
	feedbackIDs map[string]struct{}
	eventIDs    map[string]struct{}

	// failWith, when set, is returned by every read.
	failWith error
}

func New() *Store {
	return &Store{
		visits:      make(map[string][]models.VisitPoint),
		feedbackIDs: make(map[string]struct{}),
		eventIDs:    make(map[string]struct{}),
	}
}

// Fail makes every subsequent read return err wrapped as unavailable. Passing
// nil restores normal operation.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *Store) readErr(op string) error {
	if s.failWith != nil {
		return store.Unavailable(op, s.failWith)
	}
	return nil
}

func (s *Store) FindFeedback(_ context.Context, filter store.FeedbackFilter) ([]models.FeedbackRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.readErr("find feedback"); err != nil {
		return nil, err
	}
	out := make([]models.FeedbackRecord, 0)
	for _, r := range s.feedback {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) DistinctSubcategories(ctx context.Context, filter store.FeedbackFilter) ([]string, error) {
	records, err := s.FindFeedback(ctx, filter)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, r := range records {
		if _, ok := seen[r.Subcategory]; ok {
			continue
		}
		seen[r.Subcategory] = struct{}{}
		out = append(out, r.Subcategory)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) InsertFeedback(_ context.Context, record *models.FeedbackRecord) error {
	if record == nil {
		return fmt.Errorf("nil feedback record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.feedbackIDs[record.ID]; dup && record.ID != "" {
		return fmt.Errorf("feedback %s: %w", record.ID, store.ErrDuplicate)
	}
	s.feedbackIDs[record.ID] = struct{}{}
	s.feedback = append(s.feedback, *record)
	return nil
}

func (s *Store) FindEvents(_ context.Context, filter store.EventFilter) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.readErr("find events"); err != nil {
		return nil, err
	}
	out := make([]models.Event, 0)
	for _, e := range s.events {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// InsertEvents skips events whose ID is already stored, so redelivered feed
// messages are harmless.
func (s *Store) InsertEvents(_ context.Context, events []models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range store.WithEventIDs(events) {
		if _, dup := s.eventIDs[e.EventID]; dup {
			continue
		}
		s.eventIDs[e.EventID] = struct{}{}
		s.events = append(s.events, e)
	}
	return nil
}

func (s *Store) VisitSeries(_ context.Context, cohort string) ([]models.VisitPoint, error) {
	if !store.ValidCohort(cohort) {
		return nil, fmt.Errorf("cohort %q: %w", cohort, store.ErrNotFound)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.readErr("visit series"); err != nil {
		return nil, err
	}
	return append([]models.VisitPoint{}, s.visits[cohort]...), nil
}

func (s *Store) OutcomeComparisons(context.Context) ([]models.OutcomeComparison, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.readErr("outcome comparisons"); err != nil {
		return nil, err
	}
	return append([]models.OutcomeComparison{}, s.outcomes...), nil
}

func (s *Store) FindSentiments(context.Context) ([]models.SentimentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.readErr("find sentiments"); err != nil {
		return nil, err
	}
	return append([]models.SentimentRecord{}, s.sentiments...), nil
}

func (s *Store) ReplaceVisitSeries(_ context.Context, cohort string, points []models.VisitPoint) error {
	if !store.ValidCohort(cohort) {
		return fmt.Errorf("cohort %q: %w", cohort, store.ErrNotFound)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visits[cohort] = append([]models.VisitPoint(nil), points...)
	return nil
}

func (s *Store) ReplaceOutcomeComparisons(_ context.Context, rows []models.OutcomeComparison) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append([]models.OutcomeComparison(nil), rows...)
	return nil
}

func (s *Store) InsertSentiments(_ context.Context, records []models.SentimentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentiments = append(s.sentiments, records...)
	return nil
}

func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readErr("ping")
}

func (s *Store) Close(context.Context) error {
	return nil
}

var (
	_ store.RecordStore  = (*Store)(nil)
	_ store.SeriesWriter = (*Store)(nil)
)
