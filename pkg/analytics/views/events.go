package views

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/synaptica-ai/hospital-analytics/pkg/analytics/comparative"
	"github.com/synaptica-ai/hospital-analytics/pkg/analytics/crosstab"
	"github.com/synaptica-ai/hospital-analytics/pkg/analytics/derive"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
	"github.com/synaptica-ai/hospital-analytics/pkg/store"
	"golang.org/x/sync/errgroup"
)

const (
	GranularityHourly = "hourly"
	GranularityDaily  = "daily"
)

type EventSummaryQuery struct {
	EventType   string
	Granularity string
}

type EventSlot struct {
	Label    string  `json:"label"`
	AvgCount float64 `json:"avgCount"`
}

type EventSummaryView struct {
	Granularity string      `json:"granularity"`
	Data        []EventSlot `json:"data"`
	Highest     *string     `json:"highest"`
	Lowest      *string     `json:"lowest"`
}

// weekOfYear numbers Sunday-started weeks; days before the first Sunday of
// the year are week 0.
func weekOfYear(t time.Time) int {
	return (t.YearDay() - 1 + 7 - int(t.Weekday())) / 7
}

type slotKey struct {
	slot   int
	period string
}

// EventSummary averages event counts per hour of day (over each calendar day
// the hour occurred) or per weekday (over each week the weekday occurred).
// Slots without any event are not listed. Times are bucketed in UTC.
func (s *Service) EventSummary(ctx context.Context, q EventSummaryQuery) (EventSummaryView, error) {
	granularity := strings.ToLower(strings.TrimSpace(q.Granularity))
	if granularity == "" {
		granularity = GranularityHourly
	}
	if granularity != GranularityHourly && granularity != GranularityDaily {
		return EventSummaryView{}, invalid("filter must be %s or %s", GranularityHourly, GranularityDaily)
	}

	events, err := s.store.FindEvents(ctx, store.EventFilter{EventType: normalizeSelect(q.EventType)})
	if err != nil {
		return EventSummaryView{}, err
	}

	counts := make(map[slotKey]int)
	for _, e := range events {
		t := e.Timestamp.UTC()
		var key slotKey
		if granularity == GranularityHourly {
			key = slotKey{slot: t.Hour(), period: fmt.Sprintf("%d-%03d", t.Year(), t.YearDay())}
		} else {
			key = slotKey{slot: int(t.Weekday()), period: fmt.Sprintf("%d-%02d", t.Year(), weekOfYear(t))}
		}
		counts[key]++
	}

	sums := make(map[int]int)
	periods := make(map[int]int)
	for key, n := range counts {
		sums[key.slot] += n
		periods[key.slot]++
	}
	slots := lo.Keys(sums)
	sort.Ints(slots)

	view := EventSummaryView{Granularity: granularity, Data: make([]EventSlot, 0, len(slots))}
	for _, slot := range slots {
		view.Data = append(view.Data, EventSlot{
			Label:    slotLabel(granularity, slot),
			AvgCount: derive.Round2(float64(sums[slot]) / float64(periods[slot])),
		})
	}

	labels := lo.Map(view.Data, func(d EventSlot, _ int) string { return d.Label })
	values := lo.Map(view.Data, func(d EventSlot, _ int) float64 { return d.AvgCount })
	if hi, low := crosstab.Extremes(labels, values); hi != "" {
		view.Highest, view.Lowest = &hi, &low
	}
	return view, nil
}

func slotLabel(granularity string, slot int) string {
	if granularity == GranularityHourly {
		return fmt.Sprintf("%d:00 - %d:00", slot, slot+1)
	}
	return time.Weekday(slot).String()
}

type FeedbackImpactQuery struct {
	EventType     string
	ReferenceDate string
}

type ImpactPeriod struct {
	AvgEventsPerDay   derive.Percent `json:"avgEventsPerDay"`
	TotalEvents       int            `json:"totalEvents"`
	ActiveDays        int            `json:"activeDays"`
	TotalFeedback     int            `json:"totalFeedback"`
	LinkedEvents      int            `json:"linkedEvents"`
	EngagementPercent derive.Percent `json:"engagementPercent"`
}

type ImpactSummary struct {
	BeforeDate  ImpactPeriod             `json:"beforeDate"`
	AfterDate   ImpactPeriod             `json:"afterDate"`
	Improvement comparative.Improvements `json:"improvement"`
}

type FeedbackImpactView struct {
	EventType     string                 `json:"eventType,omitempty"`
	ReferenceDate string                 `json:"referenceDate"`
	EventsBefore  []comparative.DayCount `json:"eventsBefore"`
	EventsAfter   []comparative.DayCount `json:"eventsAfter"`
	Summary       ImpactSummary          `json:"summary"`
}

func impactPeriod(p comparative.PeriodSummary) ImpactPeriod {
	return ImpactPeriod{
		AvgEventsPerDay:   p.Events.AvgPerDay,
		TotalEvents:       p.Events.Count,
		ActiveDays:        p.Events.DistinctDays,
		TotalFeedback:     p.TotalFeedback,
		LinkedEvents:      p.LinkedEvents,
		EngagementPercent: p.EngagementPercent,
	}
}

// FeedbackImpact compares events of one type and all feedback before and
// after the reference date.
func (s *Service) FeedbackImpact(ctx context.Context, q FeedbackImpactQuery) (FeedbackImpactView, error) {
	reference, err := s.reference(q.ReferenceDate)
	if err != nil {
		return FeedbackImpactView{}, err
	}
	eventType := normalizeSelect(q.EventType)

	var (
		events   []models.Event
		feedback []models.FeedbackRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		events, err = s.store.FindEvents(gctx, store.EventFilter{EventType: eventType})
		return err
	})
	g.Go(func() error {
		var err error
		feedback, err = s.store.FindFeedback(gctx, store.FeedbackFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return FeedbackImpactView{}, err
	}

	cmp := comparative.CompareEvents(events, feedback, reference)
	return FeedbackImpactView{
		EventType:     eventType,
		ReferenceDate: reference.Format(time.RFC3339),
		EventsBefore:  cmp.Before.Daily,
		EventsAfter:   cmp.After.Daily,
		Summary: ImpactSummary{
			BeforeDate:  impactPeriod(cmp.Before),
			AfterDate:   impactPeriod(cmp.After),
			Improvement: cmp.Improvement,
		},
	}, nil
}
