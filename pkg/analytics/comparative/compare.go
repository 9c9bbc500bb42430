package comparative

import (
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/synaptica-ai/hospital-analytics/pkg/analytics/derive"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
)

func eventTime(e models.Event) time.Time             { return e.Timestamp }
func feedbackTime(f models.FeedbackRecord) time.Time { return f.Timestamp }

// LinkedCount counts events whose patient has at least one feedback record.
// Events or feedback without a patient ID never link.
func LinkedCount(events []models.Event, feedback []models.FeedbackRecord) int {
	patients := make(map[string]struct{}, len(feedback))
	for _, f := range feedback {
		if id := strings.TrimSpace(f.PatientID); id != "" {
			patients[id] = struct{}{}
		}
	}
	return lo.CountBy(events, func(e models.Event) bool {
		id := strings.TrimSpace(e.PatientID)
		if id == "" {
			return false
		}
		_, ok := patients[id]
		return ok
	})
}

type PeriodSummary struct {
	Events            PeriodStats    `json:"events"`
	TotalFeedback     int            `json:"totalFeedback"`
	LinkedEvents      int            `json:"linkedEvents"`
	EngagementPercent derive.Percent `json:"engagementPercent"`
	Daily             []DayCount     `json:"daily"`
}

type Improvements struct {
	Events     derive.Percent `json:"events"`
	Feedback   derive.Percent `json:"feedback"`
	Engagement derive.Percent `json:"engagement"`
}

type EventComparison struct {
	Reference   time.Time     `json:"referenceDate"`
	Before      PeriodSummary `json:"before"`
	After       PeriodSummary `json:"after"`
	Improvement Improvements  `json:"improvement"`
}

func summarize(events []models.Event, feedback []models.FeedbackRecord) PeriodSummary {
	linked := LinkedCount(events, feedback)
	return PeriodSummary{
		Events:            Aggregate(events, eventTime, nil),
		TotalFeedback:     len(feedback),
		LinkedEvents:      linked,
		EngagementPercent: derive.Ratio(float64(linked), float64(len(events))),
		Daily:             DailyCounts(events, eventTime),
	}
}

// CompareEvents partitions events and feedback at reference and compares the
// two periods. Event growth is a percent change of the daily average; feedback
// is a reduction since fewer complaints is the desired outcome; engagement is
// the difference in percentage points.
func CompareEvents(events []models.Event, feedback []models.FeedbackRecord, reference time.Time) EventComparison {
	eventsBefore, eventsAfter := Partition(events, eventTime, reference)
	feedbackBefore, feedbackAfter := Partition(feedback, feedbackTime, reference)

	before := summarize(eventsBefore, feedbackBefore)
	after := summarize(eventsAfter, feedbackAfter)

	return EventComparison{
		Reference: reference.UTC(),
		Before:    before,
		After:     after,
		Improvement: Improvements{
			Events:     derive.MeanChange(float64(before.Events.Count), before.Events.DistinctDays, float64(after.Events.Count), after.Events.DistinctDays),
			Feedback:   derive.ReductionPercent(float64(before.TotalFeedback), float64(after.TotalFeedback)),
			Engagement: after.EngagementPercent.Sub(before.EngagementPercent),
		},
	}
}

type SeriesStats struct {
	Total   int            `json:"total"`
	Average derive.Percent `json:"average"`
	Max     int            `json:"highest"`
	Min     int            `json:"lowest"`
}

func NewSeriesStats(values []int) SeriesStats {
	if len(values) == 0 {
		return SeriesStats{Average: derive.NotComputable}
	}
	total := lo.Sum(values)
	return SeriesStats{
		Total:   total,
		Average: derive.Mean(float64(total), len(values)),
		Max:     lo.Max(values),
		Min:     lo.Min(values),
	}
}

type SeriesComparison struct {
	Before    SeriesStats    `json:"before"`
	After     SeriesStats    `json:"after"`
	Change    derive.Percent `json:"change"`
	Reduction derive.Percent `json:"reduction"`
}

// CompareSeries compares two pre-aggregated series by their totals.
func CompareSeries(before, after []int) SeriesComparison {
	b := NewSeriesStats(before)
	a := NewSeriesStats(after)
	return SeriesComparison{
		Before:    b,
		After:     a,
		Change:    derive.PercentChange(float64(b.Total), float64(a.Total)),
		Reduction: derive.ReductionPercent(float64(b.Total), float64(a.Total)),
	}
}
