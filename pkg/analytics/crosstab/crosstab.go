// Package crosstab turns record sets into dense count matrices over two
// categorical dimensions.
package crosstab

import (
	"strings"

	"github.com/samber/lo"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
)

type KeyFunc[T any] func(T) string

type Predicate[T any] func(T) bool

// Spec describes one cross-tabulation. Rows and Columns are optional
// universes; when empty they are inferred from the data in first-seen order.
type Spec[T any] struct {
	Filter  Predicate[T]
	Row     KeyFunc[T]
	Column  KeyFunc[T]
	Rows    []string
	Columns []string
}

type Cell struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type Row struct {
	Key   string `json:"key"`
	Cells []Cell `json:"cells"`
}

func (r Row) Total() int {
	return lo.SumBy(r.Cells, func(c Cell) int { return c.Count })
}

func (r Row) Count(column string) int {
	for _, c := range r.Cells {
		if c.Key == column {
			return c.Count
		}
	}
	return 0
}

// Counts returns the row's counts in column order.
func (r Row) Counts() []int {
	return lo.Map(r.Cells, func(c Cell, _ int) int { return c.Count })
}

type CrossTab struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

func (ct CrossTab) Total() int {
	return lo.SumBy(ct.Rows, func(r Row) int { return r.Total() })
}

func (ct CrossTab) Row(key string) (Row, bool) {
	return lo.Find(ct.Rows, func(r Row) bool { return r.Key == key })
}

func (ct CrossTab) Lookup(row, column string) int {
	r, ok := ct.Row(row)
	if !ok {
		return 0
	}
	return r.Count(column)
}

// ColumnTotals sums every column across rows, in column order.
func (ct CrossTab) ColumnTotals() []Cell {
	totals := make([]Cell, len(ct.Columns))
	for i, col := range ct.Columns {
		totals[i].Key = col
	}
	for _, r := range ct.Rows {
		for i, c := range r.Cells {
			totals[i].Count += c.Count
		}
	}
	return totals
}

// universe keeps labels in insertion order. A label outside a closed universe
// is mapped to models.Unknown, which is appended on first use.
type universe struct {
	labels []string
	index  map[string]int
	closed bool
}

func newUniverse(declared []string) *universe {
	u := &universe{index: make(map[string]int), closed: len(declared) > 0}
	for _, l := range declared {
		u.add(l)
	}
	return u
}

func (u *universe) add(label string) int {
	if i, ok := u.index[label]; ok {
		return i
	}
	u.index[label] = len(u.labels)
	u.labels = append(u.labels, label)
	return len(u.labels) - 1
}

func (u *universe) resolve(label string) int {
	label = normalizeKey(label)
	if i, ok := u.index[label]; ok {
		return i
	}
	if u.closed {
		return u.add(models.Unknown)
	}
	return u.add(label)
}

func normalizeKey(key string) string {
	if strings.TrimSpace(key) == "" {
		return models.Unknown
	}
	return key
}

// Build produces a dense CrossTab: every row carries one cell per column of the
// universe, zero when no record matched. records is not modified.
func Build[T any](records []T, spec Spec[T]) CrossTab {
	rows := newUniverse(spec.Rows)
	cols := newUniverse(spec.Columns)

	type hit struct{ row, col int }
	hits := make([]hit, 0, len(records))
	for _, rec := range records {
		if spec.Filter != nil && !spec.Filter(rec) {
			continue
		}
		hits = append(hits, hit{row: rows.resolve(spec.Row(rec)), col: cols.resolve(spec.Column(rec))})
	}

	counts := make([][]int, len(rows.labels))
	for i := range counts {
		counts[i] = make([]int, len(cols.labels))
	}
	for _, h := range hits {
		counts[h.row][h.col]++
	}

	ct := CrossTab{
		Columns: append([]string(nil), cols.labels...),
		Rows:    make([]Row, 0, len(rows.labels)),
	}
	for i, key := range rows.labels {
		cells := make([]Cell, len(cols.labels))
		for j, col := range cols.labels {
			cells[j] = Cell{Key: col, Count: counts[i][j]}
		}
		ct.Rows = append(ct.Rows, Row{Key: key, Cells: cells})
	}
	return ct
}
