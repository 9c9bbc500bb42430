package crosstab

import (
	"sort"

	"github.com/samber/lo"
)

// TopN returns at most n cells ordered by descending count. Equal counts keep
// their input order. cells is not modified.
func TopN(cells []Cell, n int) []Cell {
	if n <= 0 || len(cells) == 0 {
		return []Cell{}
	}
	sorted := append([]Cell(nil), cells...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Count > sorted[j].Count
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

// NonZero drops cells with a zero count.
func NonZero(cells []Cell) []Cell {
	return lo.Filter(cells, func(c Cell, _ int) bool { return c.Count > 0 })
}

type Summary struct {
	TotalRecords  int    `json:"totalRecords"`
	HighestRow    string `json:"highestRow,omitempty"`
	LowestRow     string `json:"lowestRow,omitempty"`
	HighestColumn string `json:"highestColumn,omitempty"`
	LowestColumn  string `json:"lowestColumn,omitempty"`
}

// Summarize reports the grand total and the rows and columns with the highest
// and lowest totals. Ties resolve to the first label in universe order.
func Summarize(ct CrossTab) Summary {
	rowLabels := make([]string, len(ct.Rows))
	rowTotals := make([]float64, len(ct.Rows))
	for i, r := range ct.Rows {
		rowLabels[i] = r.Key
		rowTotals[i] = float64(r.Total())
	}
	colTotals := ct.ColumnTotals()
	colValues := lo.Map(colTotals, func(c Cell, _ int) float64 { return float64(c.Count) })

	s := Summary{TotalRecords: ct.Total()}
	s.HighestRow, s.LowestRow = Extremes(rowLabels, rowTotals)
	s.HighestColumn, s.LowestColumn = Extremes(ct.Columns, colValues)
	return s
}

// Extremes returns the labels of the largest and smallest values. The first
// occurrence wins on ties. Both are empty when labels is empty.
func Extremes(labels []string, values []float64) (highest, lowest string) {
	n := len(labels)
	if len(values) < n {
		n = len(values)
	}
	if n == 0 {
		return "", ""
	}
	hi, low := 0, 0
	for i := 1; i < n; i++ {
		if values[i] > values[hi] {
			hi = i
		}
		if values[i] < values[low] {
			low = i
		}
	}
	return labels[hi], labels[low]
}
