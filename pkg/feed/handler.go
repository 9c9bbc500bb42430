// Package feed stores clinical events delivered by the hospital's event bus.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/hospital-analytics/pkg/cache"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/logger"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
	"github.com/synaptica-ai/hospital-analytics/pkg/observability/metrics"
	"github.com/synaptica-ai/hospital-analytics/pkg/store"
)

const MessageType = "clinical.event"

// ErrMalformed marks a message that will never decode; callers should not
// retry it.
var ErrMalformed = errors.New("malformed clinical event")

type Handler struct {
	store store.RecordStore
	cache cache.ReportCache
	now   func() time.Time
}

func NewHandler(st store.RecordStore, reports cache.ReportCache) *Handler {
	if reports == nil {
		reports = cache.Nop{}
	}
	return &Handler{store: st, cache: reports, now: time.Now}
}

// batch accepts either {"events": [...]} or a single event as the message data.
type batch struct {
	Events []models.Event `json:"events"`
}

// Decode extracts the events carried by msg.
func Decode(msg models.BusMessage) ([]models.Event, error) {
	if len(msg.Data) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrMalformed)
	}
	raw, err := json.Marshal(msg.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if _, ok := msg.Data["events"]; ok {
		var b batch
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return b.Events, nil
	}

	var e models.Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return []models.Event{e}, nil
}

// Normalize fills a missing ID and timestamp, trims identifiers and
// lowercases the event type. Events without a type are rejected.
func (h *Handler) Normalize(e models.Event) (models.Event, error) {
	e.EventType = strings.ToLower(strings.TrimSpace(e.EventType))
	if e.EventType == "" {
		return e, fmt.Errorf("%w: event_type required", ErrMalformed)
	}
	e.EventID = strings.TrimSpace(e.EventID)
	if e.EventID == "" {
		e.EventID = uuid.New().String()
	}
	e.PatientID = strings.TrimSpace(e.PatientID)
	e.AdmittedFor = strings.TrimSpace(e.AdmittedFor)
	if e.Timestamp.IsZero() {
		e.Timestamp = h.now()
	}
	e.Timestamp = e.Timestamp.UTC()
	return e, nil
}

// Handle persists the events of one bus message. Messages of other types are
// ignored. Malformed events are dropped individually; a store failure fails
// the whole message so it is redelivered.
func (h *Handler) Handle(ctx context.Context, msg models.BusMessage) error {
	log := logger.FromContext(ctx).WithField("message_id", msg.ID)
	if msg.Type != "" && msg.Type != MessageType {
		log.WithField("type", msg.Type).Debug("Ignoring non-event message")
		return nil
	}

	decoded, err := Decode(msg)
	if err != nil {
		metrics.ObserveFeedEvents(metrics.OutcomeInvalid, 1)
		log.WithError(err).Warn("Dropping undecodable event message")
		return nil
	}

	events := make([]models.Event, 0, len(decoded))
	for _, e := range decoded {
		n, err := h.Normalize(e)
		if err != nil {
			metrics.ObserveFeedEvents(metrics.OutcomeInvalid, 1)
			log.WithError(err).Warn("Dropping invalid event")
			continue
		}
		events = append(events, n)
	}
	if len(events) == 0 {
		return nil
	}

	if err := h.store.InsertEvents(ctx, events); err != nil {
		metrics.ObserveFeedEvents(metrics.OutcomeError, len(events))
		return fmt.Errorf("storing %d events: %w", len(events), err)
	}
	metrics.ObserveFeedEvents(metrics.OutcomeOK, len(events))

	if err := h.cache.Invalidate(ctx); err != nil {
		log.WithError(err).Warn("Failed to invalidate report cache")
	}
	log.WithField("events", len(events)).Debug("Stored clinical events")
	return nil
}
