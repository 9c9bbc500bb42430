package derive

import (
	"encoding/json"
	"math"
	"strconv"
)

// Percent is a percentage that may be "not computable" (zero denominator).
// It encodes as JSON null in that case and never carries NaN or Inf.
type Percent struct {
	Value float64
	Valid bool
}

func NewPercent(v float64) Percent {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Percent{}
	}
	return Percent{Value: Round2(v), Valid: true}
}

// NotComputable is the sentinel returned for empty denominators.
var NotComputable = Percent{}

func (p Percent) String() string {
	if !p.Valid {
		return "N/A"
	}
	return strconv.FormatFloat(p.Value, 'f', 2, 64)
}

func (p Percent) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(p.Value)
}

func (p *Percent) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = Percent{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = NewPercent(v)
	return nil
}

// Sub returns p - other in percentage points; invalid if either side is.
func (p Percent) Sub(other Percent) Percent {
	if !p.Valid || !other.Valid {
		return NotComputable
	}
	return NewPercent(p.Value - other.Value)
}

// PercentChange is (after-before)/before*100, for metrics where growth is the
// reported direction.
func PercentChange(before, after float64) Percent {
	if before == 0 {
		return NotComputable
	}
	return NewPercent((after - before) / before * 100)
}

// ReductionPercent is (before-after)/before*100, for metrics where a decrease
// is the desired outcome.
func ReductionPercent(before, after float64) Percent {
	if before == 0 {
		return NotComputable
	}
	return NewPercent((before - after) / before * 100)
}

// Ratio is part/whole*100.
func Ratio(part, whole float64) Percent {
	if whole == 0 {
		return NotComputable
	}
	return NewPercent(part / whole * 100)
}

// Mean returns sum/n, or NotComputable for n == 0. The result is rounded to
// two decimals like every other derived figure.
func Mean(sum float64, n int) Percent {
	if n == 0 {
		return NotComputable
	}
	return NewPercent(sum / float64(n))
}

// MeanChange is the percent change from the before mean to the after mean,
// both taken from their raw sums so only the result is rounded. An empty
// after period counts as a mean of zero; an empty before period is not
// computable.
func MeanChange(beforeSum float64, beforeN int, afterSum float64, afterN int) Percent {
	if beforeN == 0 {
		return NotComputable
	}
	var after float64
	if afterN > 0 {
		after = afterSum / float64(afterN)
	}
	return PercentChange(beforeSum/float64(beforeN), after)
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
