package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Demographic and classification universes, in the order the dashboard renders them.
var (
	Sexes       = []string{SexMale, SexFemale}
	Ethnicities = []string{"Black", "Asian", "White", "Hispanic", "Other"}
	Categories  = []string{
		"Diagnosis Issues",
		"Communication",
		"Healthcare Access",
		"Procedural Errors",
		"None",
	}
	Subcategories = []string{
		"Communication Barrier",
		"Delayed Diagnosis",
		"Postpartum Infections",
		"Frequent Visits",
		"Transport Issues",
		"None",
	}
	Sentiments = []string{"Positive", "Neutral", "Negative"}
)

const (
	SexMale   = "Male"
	SexFemale = "Female"

	// Unknown is the label for absent or unrecognised categorical values.
	Unknown = "Unknown"

	EventTypeAdmitted = "admitted"

	CohortElderly  = "elderly"
	CohortPregnant = "pregnant"

	MinAge = 0
	MaxAge = 120
)

// Patient feedback, immutable after submission.
type FeedbackRecord struct {
	ID          string    `json:"id" bson:"_id,omitempty" gorm:"primaryKey;column:id"`
	PatientID   string    `json:"patient_id,omitempty" bson:"patient_id,omitempty" gorm:"column:patient_id;index"`
	PatientName string    `json:"Patient_Name" bson:"Patient_Name" gorm:"column:patient_name"`
	Age         int       `json:"Age" bson:"Age" gorm:"column:age"`
	Sex         string    `json:"Sex" bson:"Sex" gorm:"column:sex;index"`
	Ethnicity   string    `json:"Ethnicity" bson:"Ethnicity" gorm:"column:ethnicity"`
	Category    string    `json:"Category" bson:"Category" gorm:"column:category"`
	Subcategory string    `json:"Subcategory" bson:"Subcategory" gorm:"column:subcategory;index"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp" gorm:"column:timestamp"`
}

func (FeedbackRecord) TableName() string {
	return "feedbacks"
}

// Clinical event delivered by the hospital feed. EventType is free text
// ("admitted", "discharged", "consultation", "medication given", ...).
type Event struct {
	EventID     string    `json:"event_id" bson:"event_id" gorm:"primaryKey;column:event_id"`
	PatientID   string    `json:"patient_id,omitempty" bson:"patient_id,omitempty" gorm:"column:patient_id;index"`
	EventType   string    `json:"event_type" bson:"event_type" gorm:"column:event_type;index"`
	AdmittedFor string    `json:"admitted_for,omitempty" bson:"admitted_for,omitempty" gorm:"column:admitted_for"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp" gorm:"column:timestamp;index"`
}

func (Event) TableName() string {
	return "events"
}

// Pre-aggregated monthly visit counts for a patient cohort.
type VisitPoint struct {
	Cohort string `json:"-" bson:"cohort,omitempty" gorm:"column:cohort;index"`
	Month  string `json:"Month" bson:"Month" gorm:"column:month"`
	Seq    int    `json:"-" bson:"seq,omitempty" gorm:"column:seq"`
	Before int    `json:"Visits_Before" bson:"Visits_Before" gorm:"column:visits_before"`
	After  int    `json:"Visits_After" bson:"Visits_After" gorm:"column:visits_after"`
}

func (VisitPoint) TableName() string {
	return "visit_series"
}

// Case counts for one subcategory and ethnicity before and after the
// feedback programme went live.
type OutcomeComparison struct {
	Subcategory string `json:"subcategory" bson:"Subcategory" gorm:"column:subcategory"`
	Ethnicity   string `json:"ethnicity" bson:"Ethnicity" gorm:"column:ethnicity"`
	Before      int    `json:"before" bson:"Before" gorm:"column:before_count"`
	After       int    `json:"after" bson:"After" gorm:"column:after_count"`
}

func (OutcomeComparison) TableName() string {
	return "final_results"
}

type SentimentRecord struct {
	Sentiment string    `json:"sentiment" bson:"sentiment" gorm:"column:sentiment"`
	Rating    float64   `json:"rating" bson:"rating" gorm:"column:rating"`
	Polarity  float64   `json:"polarity" bson:"polarity" gorm:"column:polarity"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp" gorm:"column:timestamp"`
}

func (SentimentRecord) TableName() string {
	return "sentiments"
}

// FeedbackSubmission is the intake payload. Pointer fields distinguish a
// missing value from a zero value.
type FeedbackSubmission struct {
	PatientID   string  `json:"patient_id,omitempty"`
	PatientName *string `json:"Patient_Name"`
	Age         *int    `json:"Age"`
	Sex         *string `json:"Sex"`
	Ethnicity   *string `json:"Ethnicity"`
	Category    *string `json:"Category"`
	Subcategory *string `json:"Subcategory"`
}

type FormOptions struct {
	Sex         []string `json:"sex"`
	Ethnicity   []string `json:"ethnicity"`
	Category    []string `json:"category"`
	Subcategory []string `json:"subcategory"`
}

// Event bus envelope
type BusMessage struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // clinical.event, feedback.submitted
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// Snapshot job states.
const (
	SnapshotQueued    = "queued"
	SnapshotRunning   = "running"
	SnapshotCompleted = "completed"
	SnapshotFailed    = "failed"
)

// Persisted rendering of a report at a point in time.
type ReportSnapshot struct {
	ID           uuid.UUID         `json:"id"`
	Report       string            `json:"report"`
	Params       map[string]string `json:"params,omitempty"`
	Status       string            `json:"status"`
	Payload      json.RawMessage   `json:"payload,omitempty"`
	ErrorMessage string            `json:"error,omitempty"`
	RequestedBy  string            `json:"requested_by,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}
