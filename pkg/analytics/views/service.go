// Package views composes the bucketing, cross-tabulation and comparative
// engines into the report payloads served by the dashboard API.
package views

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/synaptica-ai/hospital-analytics/pkg/analytics/derive"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
	"github.com/synaptica-ai/hospital-analytics/pkg/store"
)

// ErrInvalidQuery marks a request parameter the views cannot honour.
var ErrInvalidQuery = errors.New("invalid query")

// ErrUnknownReport marks a report name that is not registered.
var ErrUnknownReport = errors.New("unknown report")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}

// All is the dashboard's "no filter" value for select inputs.
const All = "all"

type Service struct {
	store            store.RecordStore
	schemes          *derive.Registry
	defaultReference time.Time
	now              func() time.Time
}

type Option func(*Service)

func WithSchemes(r *derive.Registry) Option {
	return func(s *Service) {
		if r != nil {
			s.schemes = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaultReference sets the cutoff used when a comparative report is
// requested without a referenceDate.
func WithDefaultReference(t time.Time) Option {
	return func(s *Service) {
		if !t.IsZero() {
			s.defaultReference = t.UTC()
		}
	}
}

func NewService(st store.RecordStore, opts ...Option) *Service {
	s := &Service{
		store:            st,
		schemes:          derive.DefaultRegistry(),
		defaultReference: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Schemes() *derive.Registry {
	return s.schemes
}

// Options returns the enum universes of the submission form.
func (s *Service) Options() models.FormOptions {
	return models.FormOptions{
		Sex:         append([]string(nil), models.Sexes...),
		Ethnicity:   append([]string(nil), models.Ethnicities...),
		Category:    append([]string(nil), models.Categories...),
		Subcategory: append([]string(nil), models.Subcategories...),
	}
}

// normalizeSelect maps blank and "all" to the empty (unfiltered) value.
func normalizeSelect(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, All) {
		return ""
	}
	return v
}

func parseSex(v string) (string, error) {
	v = normalizeSelect(v)
	if v == "" {
		return "", nil
	}
	for _, sex := range models.Sexes {
		if strings.EqualFold(v, sex) {
			return sex, nil
		}
	}
	return "", invalid("unknown sex %q", v)
}

// ParseReferenceDate accepts YYYY-MM-DD (midnight UTC) or RFC3339.
func ParseReferenceDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, invalid("referenceDate %q is not YYYY-MM-DD or RFC3339", v)
}

func (s *Service) reference(v string) (time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return s.defaultReference, nil
	}
	return ParseReferenceDate(v)
}

// ageFilter resolves an ageGroup label under scheme into store bounds.
func ageFilter(scheme derive.Scheme, group string) (min, max *int, err error) {
	group = normalizeSelect(group)
	if group == "" {
		return nil, nil, nil
	}
	lo, hi, ok := scheme.Range(group)
	if !ok {
		return nil, nil, invalid("unknown ageGroup %q for scheme %s", group, scheme.Name)
	}
	min, max = store.AgeRange(lo, hi)
	return min, max, nil
}

func (s *Service) scheme(name string) (derive.Scheme, error) {
	scheme, err := s.schemes.Lookup(name)
	if err != nil {
		return derive.Scheme{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return scheme, nil
}

// universeIndex orders labels by their position in universe; labels outside
// it sort after every member.
func universeIndex(universe []string) func(string) int {
	index := make(map[string]int, len(universe))
	for i, u := range universe {
		index[u] = i
	}
	return func(label string) int {
		if i, ok := index[label]; ok {
			return i
		}
		return len(universe)
	}
}
