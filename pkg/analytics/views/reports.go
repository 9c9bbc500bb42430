package views

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
)

// Params carries report parameters as received on the query string.
type Params map[string]string

// Get returns the first non-blank value among keys.
func (p Params) Get(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(p[k]); v != "" {
			return v
		}
	}
	return ""
}

// Canonical renders p with sorted keys and blank values dropped, for use in
// cache keys.
func (p Params) Canonical() string {
	keys := make([]string, 0, len(p))
	for k, v := range p {
		if strings.TrimSpace(v) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.TrimSpace(p[k]))
	}
	return b.String()
}

type reportFunc func(ctx context.Context, s *Service, p Params) (interface{}, error)

// sexParam accepts both the dashboard's "gender" and "sex".
func sexParam(p Params) string { return p.Get("gender", "sex") }

var reports = map[string]reportFunc{
	"subcategory-ethnicity": func(ctx context.Context, s *Service, p Params) (interface{}, error) {
		return s.SubcategoryEthnicity(ctx, SubcategoryEthnicityQuery{Sex: sexParam(p)})
	},
	"feedback-analysis": func(ctx context.Context, s *Service, _ Params) (interface{}, error) {
		return s.FeedbackAnalysis(ctx)
	},
	"age-subcategory": func(ctx context.Context, s *Service, p Params) (interface{}, error) {
		return s.AgeSubcategory(ctx, AgeSubcategoryQuery{
			Subcategory: p.Get("subcategory"),
			Sex:         sexParam(p),
			Scheme:      p.Get("scheme"),
		})
	},
	"age-sex": func(ctx context.Context, s *Service, p Params) (interface{}, error) {
		return s.AgeSex(ctx, AgeSexQuery{Scheme: p.Get("scheme"), Sex: sexParam(p)})
	},
	"admission-issues": func(ctx context.Context, s *Service, p Params) (interface{}, error) {
		return s.AdmissionIssues(ctx, AdmissionQuery{AgeGroup: p.Get("ageGroup"), Sex: sexParam(p), Scheme: p.Get("scheme")})
	},
	"admission-subcategories": func(ctx context.Context, s *Service, p Params) (interface{}, error) {
		return s.AdmissionSubcategories(ctx, AdmissionQuery{AgeGroup: p.Get("ageGroup"), Sex: sexParam(p), Scheme: p.Get("scheme")})
	},
	"event-summary": func(ctx context.Context, s *Service, p Params) (interface{}, error) {
		return s.EventSummary(ctx, EventSummaryQuery{EventType: p.Get("eventType"), Granularity: p.Get("filter", "granularity")})
	},
	"feedback-impact": func(ctx context.Context, s *Service, p Params) (interface{}, error) {
		return s.FeedbackImpact(ctx, FeedbackImpactQuery{EventType: p.Get("eventType"), ReferenceDate: p.Get("referenceDate")})
	},
	"elderly-visits": func(ctx context.Context, s *Service, _ Params) (interface{}, error) {
		return s.VisitTrend(ctx, models.CohortElderly)
	},
	"pregnant-visits": func(ctx context.Context, s *Service, _ Params) (interface{}, error) {
		return s.VisitTrend(ctx, models.CohortPregnant)
	},
	"final-results": func(ctx context.Context, s *Service, _ Params) (interface{}, error) {
		return s.FinalResults(ctx)
	},
	"sentiment-comparison": func(ctx context.Context, s *Service, p Params) (interface{}, error) {
		return s.SentimentComparison(ctx, SentimentQuery{ReferenceDate: p.Get("referenceDate")})
	},
	"options": func(_ context.Context, s *Service, _ Params) (interface{}, error) {
		return s.Options(), nil
	},
}

// ReportNames lists the reports Run accepts, sorted.
func ReportNames() []string {
	names := make([]string, 0, len(reports))
	for name := range reports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func HasReport(name string) bool {
	_, ok := reports[name]
	return ok
}

// Report is a computed report with the parameters that produced it.
type Report struct {
	Name        string      `json:"report"`
	Params      Params      `json:"params,omitempty"`
	GeneratedAt time.Time   `json:"generatedAt"`
	Data        interface{} `json:"data"`
}

// Run computes the named report. Unknown names yield ErrUnknownReport and bad
// parameters ErrInvalidQuery; store failures are returned as is.
func (s *Service) Run(ctx context.Context, name string, params Params) (Report, error) {
	fn, ok := reports[name]
	if !ok {
		return Report{}, fmt.Errorf("%w: %q", ErrUnknownReport, name)
	}
	data, err := fn(ctx, s, params)
	if err != nil {
		return Report{}, err
	}
	return Report{Name: name, Params: params, GeneratedAt: s.now().UTC(), Data: data}, nil
}
