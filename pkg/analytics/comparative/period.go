// Package comparative splits time-stamped records around a reference instant
// and derives before/after statistics.
package comparative

import (
	"sort"
	"time"

	"github.com/synaptica-ai/hospital-analytics/pkg/analytics/derive"
)

const DayLayout = "2006-01-02"

// Partition splits records into those strictly before reference and the rest.
// A record stamped exactly at reference belongs to after.
func Partition[T any](records []T, at func(T) time.Time, reference time.Time) (before, after []T) {
	before = make([]T, 0)
	after = make([]T, 0)
	for _, rec := range records {
		if at(rec).Before(reference) {
			before = append(before, rec)
		} else {
			after = append(after, rec)
		}
	}
	return before, after
}

// DayKey is the UTC calendar day of t.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

type DayCount struct {
	ID    string `json:"_id"`
	Count int    `json:"count"`
}

// DailyCounts counts records per UTC day, ascending by day.
func DailyCounts[T any](records []T, at func(T) time.Time) []DayCount {
	counts := make(map[string]int)
	for _, rec := range records {
		counts[DayKey(at(rec))]++
	}
	out := make([]DayCount, 0, len(counts))
	for day, n := range counts {
		out = append(out, DayCount{ID: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type PeriodStats struct {
	Count        int            `json:"count"`
	DistinctDays int            `json:"distinctDays"`
	AvgPerDay    derive.Percent `json:"avgEventsPerDay"`
	Buckets      []string       `json:"buckets,omitempty"`
	PerBucket    map[string]int `json:"perBucket,omitempty"`
}

// Aggregate counts records, the distinct UTC days they fall on and, when
// bucket is non-nil, the count per bucket in first-seen order. AvgPerDay is
// Count over days with data and is not computable for an empty period.
func Aggregate[T any](records []T, at func(T) time.Time, bucket func(T) string) PeriodStats {
	days := make(map[string]struct{})
	stats := PeriodStats{Count: len(records)}
	if bucket != nil {
		stats.PerBucket = make(map[string]int)
	}
	for _, rec := range records {
		days[DayKey(at(rec))] = struct{}{}
		if bucket != nil {
			key := bucket(rec)
			if _, seen := stats.PerBucket[key]; !seen {
				stats.Buckets = append(stats.Buckets, key)
			}
			stats.PerBucket[key]++
		}
	}
	stats.DistinctDays = len(days)
	stats.AvgPerDay = derive.Mean(float64(stats.Count), stats.DistinctDays)
	return stats
}
