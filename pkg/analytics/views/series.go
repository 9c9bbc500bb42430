package views

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/synaptica-ai/hospital-analytics/pkg/analytics/comparative"
	"github.com/synaptica-ai/hospital-analytics/pkg/analytics/crosstab"
	"github.com/synaptica-ai/hospital-analytics/pkg/analytics/derive"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
	"github.com/synaptica-ai/hospital-analytics/pkg/store"
)

// VisitRow renders one month of a cohort series. The dashboard expects the
// counts under cohort-prefixed keys, e.g. Elderly_Visits_Before.
type VisitRow struct {
	Cohort string
	Month  string
	Before int
	After  int
}

func (r VisitRow) MarshalJSON() ([]byte, error) {
	prefix := cohortPrefix(r.Cohort)
	row := map[string]interface{}{"Month": r.Month}
	row[prefix+"_Visits_Before"] = r.Before
	row[prefix+"_Visits_After"] = r.After
	return json.Marshal(row)
}

func cohortPrefix(cohort string) string {
	if cohort == "" {
		return "Visits"
	}
	return strings.ToUpper(cohort[:1]) + cohort[1:]
}

type VisitStats struct {
	AvgBefore     derive.Percent `json:"avgBefore"`
	TotalBefore   int            `json:"totalBefore"`
	HighestBefore int            `json:"highestBefore"`
	LowestBefore  int            `json:"lowestBefore"`
	AvgAfter      derive.Percent `json:"avgAfter"`
	TotalAfter    int            `json:"totalAfter"`
	HighestAfter  int            `json:"highestAfter"`
	LowestAfter   int            `json:"lowestAfter"`
	Improvement   derive.Percent `json:"improvement"`
	Change        derive.Percent `json:"change"`
}

type VisitTrendView struct {
	Cohort string     `json:"cohort"`
	Visits []VisitRow `json:"visits"`
	Stats  VisitStats `json:"stats"`
}

// VisitTrend summarises the monthly visit series of a cohort. Improvement is
// the reduction in total visits.
func (s *Service) VisitTrend(ctx context.Context, cohort string) (VisitTrendView, error) {
	cohort = strings.ToLower(strings.TrimSpace(cohort))
	if !store.ValidCohort(cohort) {
		return VisitTrendView{}, invalid("unknown cohort %q", cohort)
	}
	points, err := s.store.VisitSeries(ctx, cohort)
	if err != nil {
		return VisitTrendView{}, err
	}

	cmp := comparative.CompareSeries(
		lo.Map(points, func(p models.VisitPoint, _ int) int { return p.Before }),
		lo.Map(points, func(p models.VisitPoint, _ int) int { return p.After }),
	)
	return VisitTrendView{
		Cohort: cohort,
		Visits: lo.Map(points, func(p models.VisitPoint, _ int) VisitRow {
			return VisitRow{Cohort: cohort, Month: p.Month, Before: p.Before, After: p.After}
		}),
		Stats: VisitStats{
			AvgBefore:     cmp.Before.Average,
			TotalBefore:   cmp.Before.Total,
			HighestBefore: cmp.Before.Max,
			LowestBefore:  cmp.Before.Min,
			AvgAfter:      cmp.After.Average,
			TotalAfter:    cmp.After.Total,
			HighestAfter:  cmp.After.Max,
			LowestAfter:   cmp.After.Min,
			Improvement:   cmp.Reduction,
			Change:        cmp.Change,
		},
	}, nil
}

type OutcomeRow struct {
	Ethnicity string `json:"ethnicity"`
	Before    int    `json:"before"`
	After     int    `json:"after"`
}

type OutcomeStats struct {
	TotalBefore int            `json:"totalBefore"`
	TotalAfter  int            `json:"totalAfter"`
	Improvement derive.Percent `json:"improvement"`
}

type FinalResultsView struct {
	Subcategories []string                `json:"subcategories"`
	GroupedData   map[string][]OutcomeRow `json:"groupedData"`
	Statistics    map[string]OutcomeStats `json:"statistics"`
}

// FinalResults groups the before/after case counts by subcategory.
// Improvement is the reduction in cases.
func (s *Service) FinalResults(ctx context.Context) (FinalResultsView, error) {
	rows, err := s.store.OutcomeComparisons(ctx)
	if err != nil {
		return FinalResultsView{}, err
	}

	bySub := lo.GroupBy(rows, func(r models.OutcomeComparison) string {
		if strings.TrimSpace(r.Subcategory) == "" {
			return models.Unknown
		}
		return r.Subcategory
	})
	subIdx := universeIndex(models.Subcategories)
	subs := lo.Keys(bySub)
	sort.SliceStable(subs, func(i, j int) bool {
		ii, jj := subIdx(subs[i]), subIdx(subs[j])
		if ii != jj {
			return ii < jj
		}
		return subs[i] < subs[j]
	})

	ethIdx := universeIndex(models.Ethnicities)
	view := FinalResultsView{
		Subcategories: subs,
		GroupedData:   make(map[string][]OutcomeRow, len(subs)),
		Statistics:    make(map[string]OutcomeStats, len(subs)),
	}
	for _, sub := range subs {
		group := append([]models.OutcomeComparison(nil), bySub[sub]...)
		sort.SliceStable(group, func(i, j int) bool {
			return ethIdx(group[i].Ethnicity) < ethIdx(group[j].Ethnicity)
		})
		cmp := comparative.CompareSeries(
			lo.Map(group, func(r models.OutcomeComparison, _ int) int { return r.Before }),
			lo.Map(group, func(r models.OutcomeComparison, _ int) int { return r.After }),
		)
		view.GroupedData[sub] = lo.Map(group, func(r models.OutcomeComparison, _ int) OutcomeRow {
			eth := r.Ethnicity
			if strings.TrimSpace(eth) == "" {
				eth = models.Unknown
			}
			return OutcomeRow{Ethnicity: eth, Before: r.Before, After: r.After}
		})
		view.Statistics[sub] = OutcomeStats{
			TotalBefore: cmp.Before.Total,
			TotalAfter:  cmp.After.Total,
			Improvement: cmp.Reduction,
		}
	}
	return view, nil
}

type SentimentCount struct {
	Sentiment string `json:"_id"`
	Count     int    `json:"count"`
}

type SentimentStats struct {
	AverageRating   derive.Percent `json:"averageRating"`
	AveragePolarity derive.Percent `json:"averagePolarity"`
	TotalCount      int            `json:"totalCount"`
}

type SentimentPeriod struct {
	Sentiments []SentimentCount `json:"sentiments"`
	Stats      SentimentStats   `json:"stats"`
}

type SentimentImprovements struct {
	Rating   derive.Percent `json:"rating"`
	Polarity derive.Percent `json:"polarity"`
}

type SentimentComparisonView struct {
	ReferenceDate string                `json:"referenceDate"`
	Before        SentimentPeriod       `json:"before"`
	After         SentimentPeriod       `json:"after"`
	Improvements  SentimentImprovements `json:"improvements"`
}

type SentimentQuery struct {
	ReferenceDate string
}

func sentimentPeriod(records []models.SentimentRecord) SentimentPeriod {
	ct := crosstab.Build(records, crosstab.Spec[models.SentimentRecord]{
		Row:     func(models.SentimentRecord) string { return "sentiments" },
		Column:  func(r models.SentimentRecord) string { return r.Sentiment },
		Rows:    []string{"sentiments"},
		Columns: models.Sentiments,
	})
	counts := lo.Map(ct.Rows[0].Cells, func(c crosstab.Cell, _ int) SentimentCount {
		return SentimentCount{Sentiment: c.Key, Count: c.Count}
	})
	return SentimentPeriod{
		Sentiments: counts,
		Stats: SentimentStats{
			AverageRating:   derive.Mean(lo.SumBy(records, sentimentRating), len(records)),
			AveragePolarity: derive.Mean(lo.SumBy(records, sentimentPolarity), len(records)),
			TotalCount:      len(records),
		},
	}
}

// averageChange compares the mean of field across two periods. Both periods
// need records.
func averageChange(before, after []models.SentimentRecord, field func(models.SentimentRecord) float64) derive.Percent {
	if len(after) == 0 {
		return derive.NotComputable
	}
	return derive.MeanChange(lo.SumBy(before, field), len(before), lo.SumBy(after, field), len(after))
}

func sentimentRating(r models.SentimentRecord) float64   { return r.Rating }
func sentimentPolarity(r models.SentimentRecord) float64 { return r.Polarity }

// SentimentComparison compares sentiment distribution and average rating and
// polarity before and after the reference date.
func (s *Service) SentimentComparison(ctx context.Context, q SentimentQuery) (SentimentComparisonView, error) {
	reference, err := s.reference(q.ReferenceDate)
	if err != nil {
		return SentimentComparisonView{}, err
	}
	records, err := s.store.FindSentiments(ctx)
	if err != nil {
		return SentimentComparisonView{}, err
	}

	beforeRecs, afterRecs := comparative.Partition(records, func(r models.SentimentRecord) time.Time { return r.Timestamp }, reference)
	before := sentimentPeriod(beforeRecs)
	after := sentimentPeriod(afterRecs)
	return SentimentComparisonView{
		ReferenceDate: reference.Format(time.RFC3339),
		Before:        before,
		After:         after,
		Improvements: SentimentImprovements{
			Rating:   averageChange(beforeRecs, afterRecs, sentimentRating),
			Polarity: averageChange(beforeRecs, afterRecs, sentimentPolarity),
		},
	}, nil
}
