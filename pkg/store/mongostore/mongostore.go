// Package mongostore implements store.RecordStore on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/synaptica-ai/hospital-analytics/pkg/common/logger"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
	"github.com/synaptica-ai/hospital-analytics/pkg/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	feedbackCollectionName   = "feedbacks"
	eventsCollectionName     = "events"
	outcomesCollectionName   = "final_results"
	sentimentsCollectionName = "sentiments"
)

var visitCollections = map[string]string{
	models.CohortElderly:  "elderly_visits",
	models.CohortPregnant: "pregnant_visits",
}

// Case-insensitive matching for free-text event types.
var collation = options.Collation{Locale: "en", Strength: 2}

type Store struct {
	client     *mongo.Client
	db         *mongo.Database
	feedback   *mongo.Collection
	events     *mongo.Collection
	outcomes   *mongo.Collection
	sentiments *mongo.Collection
}

func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:     client,
		db:         db,
		feedback:   db.Collection(feedbackCollectionName),
		events:     db.Collection(eventsCollectionName),
		outcomes:   db.Collection(outcomesCollectionName),
		sentiments: db.Collection(sentimentsCollectionName),
	}
}

// Initialize creates the indexes the analytics queries rely on.
func (s *Store) Initialize(ctx context.Context) error {
	if _, err := s.feedback.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "Sex", Value: 1}, {Key: "Subcategory", Value: 1}},
			Options: options.Index().SetName("FeedbackSexSubcategory"),
		},
		{
			Keys:    bson.D{{Key: "Age", Value: 1}},
			Options: options.Index().SetName("FeedbackAge"),
		},
		{
			Keys:    bson.D{{Key: "patient_id", Value: 1}},
			Options: options.Index().SetName("FeedbackPatient").SetSparse(true),
		},
	}); err != nil {
		return fmt.Errorf("creating feedback indexes: %w", err)
	}

	if _, err := s.events.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}},
			Options: options.Index().SetName("UniqueEvent").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "event_type", Value: 1}, {Key: "timestamp", Value: 1}},
			Options: options.Index().SetName("EventTypeTimestamp").SetCollation(&collation),
		},
	}); err != nil {
		return fmt.Errorf("creating event indexes: %w", err)
	}
	return nil
}

func feedbackSelector(filter store.FeedbackFilter) bson.M {
	selector := bson.M{}
	if filter.Sex != "" {
		selector["Sex"] = filter.Sex
	}
	if filter.Subcategory != "" {
		selector["Subcategory"] = filter.Subcategory
	}
	age := bson.M{}
	if filter.MinAge != nil {
		age["$gte"] = *filter.MinAge
	}
	if filter.MaxAge != nil {
		age["$lte"] = *filter.MaxAge
	}
	if len(age) > 0 {
		selector["Age"] = age
	}
	if len(filter.PatientIDs) > 0 {
		selector["patient_id"] = bson.M{"$in": filter.PatientIDs}
	}
	return selector
}

func eventSelector(filter store.EventFilter) bson.M {
	selector := bson.M{}
	if t := strings.TrimSpace(filter.EventType); t != "" {
		selector["event_type"] = t
	}
	ts := bson.M{}
	if filter.From != nil {
		ts["$gte"] = filter.From.UTC()
	}
	if filter.To != nil {
		ts["$lt"] = filter.To.UTC()
	}
	if len(ts) > 0 {
		selector["timestamp"] = ts
	}
	return selector
}

func (s *Store) FindFeedback(ctx context.Context, filter store.FeedbackFilter) ([]models.FeedbackRecord, error) {
	cursor, err := s.feedback.Find(ctx, feedbackSelector(filter))
	if err != nil {
		return nil, store.Unavailable("find feedback", err)
	}
	records := make([]models.FeedbackRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, store.Unavailable("decode feedback", err)
	}
	return records, nil
}

func (s *Store) DistinctSubcategories(ctx context.Context, filter store.FeedbackFilter) ([]string, error) {
	values, err := s.feedback.Distinct(ctx, "Subcategory", feedbackSelector(filter))
	if err != nil {
		return nil, store.Unavailable("distinct subcategories", err)
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if sub, ok := v.(string); ok {
			out = append(out, sub)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) InsertFeedback(ctx context.Context, record *models.FeedbackRecord) error {
	if record == nil {
		return fmt.Errorf("nil feedback record")
	}
	if _, err := s.feedback.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("feedback %s: %w", record.ID, store.ErrDuplicate)
		}
		return store.Unavailable("insert feedback", err)
	}
	return nil
}

func (s *Store) FindEvents(ctx context.Context, filter store.EventFilter) ([]models.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}).SetCollation(&collation)
	cursor, err := s.events.Find(ctx, eventSelector(filter), opts)
	if err != nil {
		return nil, store.Unavailable("find events", err)
	}
	events := make([]models.Event, 0)
	if err := cursor.All(ctx, &events); err != nil {
		return nil, store.Unavailable("decode events", err)
	}
	return events, nil
}

// InsertEvents upserts by event_id so redelivered feed messages do not
// duplicate events. Events without an ID get a fresh one.
func (s *Store) InsertEvents(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	res, err := s.events.BulkWrite(ctx, eventWrites(events), options.BulkWrite().SetOrdered(false))
	if err != nil {
		return store.Unavailable("insert events", err)
	}
	logger.Log.WithFields(map[string]interface{}{
		"upserted": res.UpsertedCount,
		"matched":  res.MatchedCount,
	}).Debug("events written")
	return nil
}

func eventWrites(events []models.Event) []mongo.WriteModel {
	writes := make([]mongo.WriteModel, 0, len(events))
	for _, e := range store.WithEventIDs(events) {
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"event_id": e.EventID}).
			SetReplacement(e).
			SetUpsert(true))
	}
	return writes
}

func (s *Store) VisitSeries(ctx context.Context, cohort string) ([]models.VisitPoint, error) {
	name, ok := visitCollections[cohort]
	if !ok {
		return nil, fmt.Errorf("cohort %q: %w", cohort, store.ErrNotFound)
	}
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(name).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, store.Unavailable("visit series", err)
	}
	points := make([]models.VisitPoint, 0)
	if err := cursor.All(ctx, &points); err != nil {
		return nil, store.Unavailable("decode visit series", err)
	}
	for i := range points {
		points[i].Cohort = cohort
	}
	return points, nil
}

func (s *Store) OutcomeComparisons(ctx context.Context) ([]models.OutcomeComparison, error) {
	cursor, err := s.outcomes.Find(ctx, bson.M{})
	if err != nil {
		return nil, store.Unavailable("outcome comparisons", err)
	}
	rows := make([]models.OutcomeComparison, 0)
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, store.Unavailable("decode outcome comparisons", err)
	}
	return rows, nil
}

func (s *Store) FindSentiments(ctx context.Context) ([]models.SentimentRecord, error) {
	cursor, err := s.sentiments.Find(ctx, bson.M{})
	if err != nil {
		return nil, store.Unavailable("find sentiments", err)
	}
	records := make([]models.SentimentRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, store.Unavailable("decode sentiments", err)
	}
	return records, nil
}

func (s *Store) ReplaceVisitSeries(ctx context.Context, cohort string, points []models.VisitPoint) error {
	name, ok := visitCollections[cohort]
	if !ok {
		return fmt.Errorf("cohort %q: %w", cohort, store.ErrNotFound)
	}
	coll := s.db.Collection(name)
	if _, err := coll.DeleteMany(ctx, bson.M{}); err != nil {
		return store.Unavailable("clear visit series", err)
	}
	return insertAll(ctx, coll, points, "insert visit series")
}

func (s *Store) ReplaceOutcomeComparisons(ctx context.Context, rows []models.OutcomeComparison) error {
	if _, err := s.outcomes.DeleteMany(ctx, bson.M{}); err != nil {
		return store.Unavailable("clear outcome comparisons", err)
	}
	return insertAll(ctx, s.outcomes, rows, "insert outcome comparisons")
}

func (s *Store) InsertSentiments(ctx context.Context, records []models.SentimentRecord) error {
	return insertAll(ctx, s.sentiments, records, "insert sentiments")
}

func insertAll[T any](ctx context.Context, coll *mongo.Collection, items []T, op string) error {
	if len(items) == 0 {
		return nil
	}
	docs := make([]interface{}, len(items))
	for i := range items {
		docs[i] = items[i]
	}
	if _, err := coll.InsertMany(ctx, docs); err != nil {
		return store.Unavailable(op, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return store.Unavailable("ping", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	err := s.client.Disconnect(ctx)
	if errors.Is(err, mongo.ErrClientDisconnected) {
		return nil
	}
	return err
}

var (
	_ store.RecordStore  = (*Store)(nil)
	_ store.SeriesWriter = (*Store)(nil)
)
