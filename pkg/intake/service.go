// Package intake accepts patient feedback submissions from the dashboard form.
package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/hospital-analytics/pkg/cache"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/kafka"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/logger"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
	"github.com/synaptica-ai/hospital-analytics/pkg/deid"
	"github.com/synaptica-ai/hospital-analytics/pkg/observability/metrics"
	"github.com/synaptica-ai/hospital-analytics/pkg/store"
)

const EventFeedbackSubmitted = "feedback.submitted"

type Service struct {
	validator *Validator
	store     store.RecordStore
	publisher kafka.Publisher
	cache     cache.ReportCache
	pseudo    *deid.Pseudonymizer
	now       func() time.Time
}

type Option func(*Service)

// WithPseudonymizer replaces patient IDs in published events with pseudonyms.
func WithPseudonymizer(p *deid.Pseudonymizer) Option {
	return func(s *Service) {
		s.pseudo = p
	}
}

// NewService wires the intake path. publisher and reports may be nil.
func NewService(validator *Validator, st store.RecordStore, publisher kafka.Publisher, reports cache.ReportCache, opts ...Option) *Service {
	if reports == nil {
		reports = cache.Nop{}
	}
	s := &Service{
		validator: validator,
		store:     st,
		publisher: publisher,
		cache:     reports,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Submit(ctx context.Context, sub models.FeedbackSubmission) (*models.FeedbackRecord, error) {
	if err := s.validator.Validate(sub); err != nil {
		metrics.ObserveSubmission(metrics.OutcomeInvalid)
		return nil, err
	}

	record := &models.FeedbackRecord{
		ID:          uuid.New().String(),
		PatientID:   strings.TrimSpace(sub.PatientID),
		PatientName: strings.TrimSpace(*sub.PatientName),
		Age:         *sub.Age,
		Sex:         strings.TrimSpace(*sub.Sex),
		Ethnicity:   strings.TrimSpace(*sub.Ethnicity),
		Category:    strings.TrimSpace(*sub.Category),
		Subcategory: strings.TrimSpace(*sub.Subcategory),
		Timestamp:   s.now().UTC(),
	}

	if err := s.store.InsertFeedback(ctx, record); err != nil {
		metrics.ObserveSubmission(metrics.OutcomeError)
		return nil, fmt.Errorf("persisting feedback: %w", err)
	}
	metrics.ObserveSubmission(metrics.OutcomeOK)

	log := logger.FromContext(ctx).WithField("feedback_id", record.ID)
	if err := s.cache.Invalidate(ctx); err != nil {
		log.WithError(err).Warn("Failed to invalidate report cache")
	}

	if s.publisher != nil {
		patientRef := record.PatientID
		if s.pseudo != nil {
			patientRef = s.pseudo.Pseudonym(patientRef)
		}
		payload := map[string]interface{}{
			"feedback_id": record.ID,
			"patient_id":  patientRef,
			"category":    record.Category,
			"subcategory": record.Subcategory,
			"timestamp":   record.Timestamp,
		}
		// The record is already stored; a failed notification is not a failed submission.
		if err := s.publisher.PublishEvent(ctx, EventFeedbackSubmitted, "feedback-form", payload); err != nil {
			log.WithError(err).Error("Failed to publish feedback event")
		}
	}

	log.Info("Feedback submitted")
	return record, nil
}
