package mongostore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
	"github.com/synaptica-ai/hospital-analytics/pkg/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestFeedbackSelector(t *testing.T) {
	min, max := store.AgeRange(46, 59)
	sel := feedbackSelector(store.FeedbackFilter{
		Sex:        "Female",
		MinAge:     min,
		MaxAge:     max,
		PatientIDs: []string{"p1"},
	})

	assert.Equal(t, bson.M{
		"Sex":        "Female",
		"Age":        bson.M{"$gte": 46, "$lte": 59},
		"patient_id": bson.M{"$in": []string{"p1"}},
	}, sel)

	assert.Empty(t, feedbackSelector(store.FeedbackFilter{}))
}

func TestEventSelector(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sel := eventSelector(store.EventFilter{EventType: " admitted ", From: &from})

	assert.Equal(t, bson.M{
		"event_type": "admitted",
		"timestamp":  bson.M{"$gte": from},
	}, sel)
}

func TestEventWritesNeverMatchOnBlankID(t *testing.T) {
	writes := eventWrites([]models.Event{{EventID: "e1"}, {}, {EventID: " "}})
	require.Len(t, writes, 3)

	ids := make([]string, 0, len(writes))
	for _, w := range writes {
		replace, ok := w.(*mongo.ReplaceOneModel)
		require.True(t, ok)
		require.NotNil(t, replace.Upsert)
		assert.True(t, *replace.Upsert)
		id, _ := replace.Filter.(bson.M)["event_id"].(string)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, replace.Replacement.(models.Event).EventID)
		ids = append(ids, id)
	}
	assert.Equal(t, "e1", ids[0])
	assert.NotEqual(t, ids[1], ids[2])
}
