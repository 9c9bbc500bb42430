// Package pgstore implements store.RecordStore on PostgreSQL through gorm.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
	"github.com/synaptica-ai/hospital-analytics/pkg/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&models.FeedbackRecord{},
		&models.Event{},
		&models.VisitPoint{},
		&models.OutcomeComparison{},
		&models.SentimentRecord{},
	)
}

func (s *Store) feedbackQuery(ctx context.Context, filter store.FeedbackFilter) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.FeedbackRecord{})
	if filter.Sex != "" {
		query = query.Where("sex = ?", filter.Sex)
	}
	if filter.Subcategory != "" {
		query = query.Where("subcategory = ?", filter.Subcategory)
	}
	if filter.MinAge != nil {
		query = query.Where("age >= ?", *filter.MinAge)
	}
	if filter.MaxAge != nil {
		query = query.Where("age <= ?", *filter.MaxAge)
	}
	if len(filter.PatientIDs) > 0 {
		query = query.Where("patient_id IN ?", filter.PatientIDs)
	}
	return query
}

func (s *Store) FindFeedback(ctx context.Context, filter store.FeedbackFilter) ([]models.FeedbackRecord, error) {
	records := make([]models.FeedbackRecord, 0)
	if err := s.feedbackQuery(ctx, filter).Order("timestamp ASC").Find(&records).Error; err != nil {
		return nil, store.Unavailable("find feedback", err)
	}
	return records, nil
}

func (s *Store) DistinctSubcategories(ctx context.Context, filter store.FeedbackFilter) ([]string, error) {
	out := make([]string, 0)
	err := s.feedbackQuery(ctx, filter).
		Distinct("subcategory").
		Order("subcategory ASC").
		Pluck("subcategory", &out).Error
	if err != nil {
		return nil, store.Unavailable("distinct subcategories", err)
	}
	return out, nil
}

func (s *Store) InsertFeedback(ctx context.Context, record *models.FeedbackRecord) error {
	if record == nil {
		return fmt.Errorf("nil feedback record")
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("feedback %s: %w", record.ID, store.ErrDuplicate)
		}
		return store.Unavailable("insert feedback", err)
	}
	return nil
}

func (s *Store) FindEvents(ctx context.Context, filter store.EventFilter) ([]models.Event, error) {
	query := s.db.WithContext(ctx).Model(&models.Event{})
	if t := strings.TrimSpace(filter.EventType); t != "" {
		query = query.Where("LOWER(event_type) = LOWER(?)", t)
	}
	if filter.From != nil {
		query = query.Where("timestamp >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("timestamp < ?", filter.To.UTC())
	}
	events := make([]models.Event, 0)
	if err := query.Order("timestamp ASC").Find(&events).Error; err != nil {
		return nil, store.Unavailable("find events", err)
	}
	return events, nil
}

// InsertEvents ignores events whose event_id already exists.
func (s *Store) InsertEvents(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	events = store.WithEventIDs(events)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		CreateInBatches(&events, 500).Error
	if err != nil {
		return store.Unavailable("insert events", err)
	}
	return nil
}

func (s *Store) VisitSeries(ctx context.Context, cohort string) ([]models.VisitPoint, error) {
	if !store.ValidCohort(cohort) {
		return nil, fmt.Errorf("cohort %q: %w", cohort, store.ErrNotFound)
	}
	points := make([]models.VisitPoint, 0)
	err := s.db.WithContext(ctx).Where("cohort = ?", cohort).Order("seq ASC").Find(&points).Error
	if err != nil {
		return nil, store.Unavailable("visit series", err)
	}
	return points, nil
}

func (s *Store) OutcomeComparisons(ctx context.Context) ([]models.OutcomeComparison, error) {
	rows := make([]models.OutcomeComparison, 0)
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, store.Unavailable("outcome comparisons", err)
	}
	return rows, nil
}

func (s *Store) FindSentiments(ctx context.Context) ([]models.SentimentRecord, error) {
	records := make([]models.SentimentRecord, 0)
	if err := s.db.WithContext(ctx).Order("timestamp ASC").Find(&records).Error; err != nil {
		return nil, store.Unavailable("find sentiments", err)
	}
	return records, nil
}

func (s *Store) ReplaceVisitSeries(ctx context.Context, cohort string, points []models.VisitPoint) error {
	if !store.ValidCohort(cohort) {
		return fmt.Errorf("cohort %q: %w", cohort, store.ErrNotFound)
	}
	rows := make([]models.VisitPoint, len(points))
	for i, p := range points {
		p.Cohort = cohort
		if p.Seq == 0 {
			p.Seq = i + 1
		}
		rows[i] = p
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cohort = ?", cohort).Delete(&models.VisitPoint{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return store.Unavailable("replace visit series", err)
	}
	return nil
}

func (s *Store) ReplaceOutcomeComparisons(ctx context.Context, rows []models.OutcomeComparison) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.OutcomeComparison{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return store.Unavailable("replace outcome comparisons", err)
	}
	return nil
}

func (s *Store) InsertSentiments(ctx context.Context, records []models.SentimentRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&records, 500).Error; err != nil {
		return store.Unavailable("insert sentiments", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return store.Unavailable("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return store.Unavailable("ping", err)
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var (
	_ store.RecordStore  = (*Store)(nil)
	_ store.SeriesWriter = (*Store)(nil)
)
