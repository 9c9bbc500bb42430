package views

import (
	"context"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/synaptica-ai/hospital-analytics/pkg/analytics/crosstab"
	"github.com/synaptica-ai/hospital-analytics/pkg/analytics/derive"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
	"github.com/synaptica-ai/hospital-analytics/pkg/store"
)

type EthnicityCount struct {
	Ethnicity string `json:"ethnicity"`
	Count     int    `json:"count"`
}

type SubcategoryEthnicityRow struct {
	Subcategory   string           `json:"_id"`
	EthnicityData []EthnicityCount `json:"ethnicityData"`
	Total         int              `json:"total"`
}

type SubcategoryEthnicityQuery struct {
	Sex string
}

// SubcategoryEthnicity counts feedback per subcategory and ethnicity. Every
// known subcategory and ethnicity is present, zero-filled.
func (s *Service) SubcategoryEthnicity(ctx context.Context, q SubcategoryEthnicityQuery) ([]SubcategoryEthnicityRow, error) {
	sex, err := parseSex(q.Sex)
	if err != nil {
		return nil, err
	}
	records, err := s.store.FindFeedback(ctx, store.FeedbackFilter{Sex: sex})
	if err != nil {
		return nil, err
	}

	ct := crosstab.Build(records, crosstab.Spec[models.FeedbackRecord]{
		Row:     func(f models.FeedbackRecord) string { return f.Subcategory },
		Column:  func(f models.FeedbackRecord) string { return f.Ethnicity },
		Rows:    models.Subcategories,
		Columns: models.Ethnicities,
	})

	return lo.Map(ct.Rows, func(r crosstab.Row, _ int) SubcategoryEthnicityRow {
		return SubcategoryEthnicityRow{
			Subcategory: r.Key,
			EthnicityData: lo.Map(r.Cells, func(c crosstab.Cell, _ int) EthnicityCount {
				return EthnicityCount{Ethnicity: c.Key, Count: c.Count}
			}),
			Total: r.Total(),
		}
	}), nil
}

type CategoryEthnicityKey struct {
	Category  string `json:"category"`
	Ethnicity string `json:"ethnicity"`
}

type SubcategoryCount struct {
	Subcategory string `json:"subcategory"`
	Count       int    `json:"count"`
}

type FeedbackAnalysisRow struct {
	ID            CategoryEthnicityKey `json:"_id"`
	Subcategories []SubcategoryCount   `json:"subcategories"`
}

// FeedbackAnalysis groups feedback by category and ethnicity, listing the
// subcategories seen in each pair. Pairs are ordered by category then
// ethnicity universe order.
func (s *Service) FeedbackAnalysis(ctx context.Context) ([]FeedbackAnalysisRow, error) {
	records, err := s.store.FindFeedback(ctx, store.FeedbackFilter{})
	if err != nil {
		return nil, err
	}

	groups := crosstab.GroupBy(records, func(f models.FeedbackRecord) []string {
		return []string{f.Category, f.Ethnicity, f.Subcategory}
	}, nil)
	pairs := crosstab.Regroup(groups, 0, 1)

	categoryIdx := universeIndex(models.Categories)
	ethnicityIdx := universeIndex(models.Ethnicities)
	sort.SliceStable(pairs, func(i, j int) bool {
		ci, cj := categoryIdx(pairs[i].Key(0)), categoryIdx(pairs[j].Key(0))
		if ci != cj {
			return ci < cj
		}
		return ethnicityIdx(pairs[i].Key(1)) < ethnicityIdx(pairs[j].Key(1))
	})

	subIdx := universeIndex(models.Subcategories)
	out := make([]FeedbackAnalysisRow, 0, len(pairs))
	for _, pair := range pairs {
		members := crosstab.Filter(crosstab.Filter(groups, 0, pair.Key(0)), 1, pair.Key(1))
		sort.SliceStable(members, func(i, j int) bool {
			return subIdx(members[i].Key(2)) < subIdx(members[j].Key(2))
		})
		out = append(out, FeedbackAnalysisRow{
			ID: CategoryEthnicityKey{Category: pair.Key(0), Ethnicity: pair.Key(1)},
			Subcategories: lo.Map(members, func(g crosstab.Group, _ int) SubcategoryCount {
				return SubcategoryCount{Subcategory: g.Key(2), Count: g.Count}
			}),
		})
	}
	return out, nil
}

type AgeCount struct {
	AgeRange string `json:"ageRange"`
	Count    int    `json:"count"`
}

type AgeSubcategoryRow struct {
	Subcategory string     `json:"subcategory"`
	AgeData     []AgeCount `json:"ageData"`
}

type AgeSubcategoryQuery struct {
	Subcategory string
	Sex         string
	Scheme      string
}

// AgeSubcategory counts feedback per subcategory and age bucket. With no
// subcategory (or "all") every subcategory present in the store is listed.
func (s *Service) AgeSubcategory(ctx context.Context, q AgeSubcategoryQuery) ([]AgeSubcategoryRow, error) {
	scheme, err := s.scheme(q.Scheme)
	if err != nil {
		return nil, err
	}
	sex, err := parseSex(q.Sex)
	if err != nil {
		return nil, err
	}
	subcategory := normalizeSelect(q.Subcategory)

	var subcategories []string
	if subcategory == "" {
		distinct, err := s.store.DistinctSubcategories(ctx, store.FeedbackFilter{})
		if err != nil {
			return nil, err
		}
		subcategories = lo.Uniq(lo.Map(distinct, func(sub string, _ int) string {
			if strings.TrimSpace(sub) == "" {
				return models.Unknown
			}
			return sub
		}))
	} else {
		subcategories = []string{subcategory}
	}

	records, err := s.store.FindFeedback(ctx, store.FeedbackFilter{Sex: sex, Subcategory: subcategory})
	if err != nil {
		return nil, err
	}

	ct := crosstab.Build(records, crosstab.Spec[models.FeedbackRecord]{
		Row:     func(f models.FeedbackRecord) string { return f.Subcategory },
		Column:  func(f models.FeedbackRecord) string { return derive.AgeBucket(f.Age, scheme) },
		Rows:    subcategories,
		Columns: scheme.Labels(),
	})

	return lo.Map(ct.Rows, func(r crosstab.Row, _ int) AgeSubcategoryRow {
		return AgeSubcategoryRow{
			Subcategory: r.Key,
			AgeData: lo.Map(r.Cells, func(c crosstab.Cell, _ int) AgeCount {
				return AgeCount{AgeRange: c.Key, Count: c.Count}
			}),
		}
	}), nil
}

type AgeSexQuery struct {
	Scheme string
	Sex    string
}

type AgeSexView struct {
	Scheme  string            `json:"scheme"`
	Table   crosstab.CrossTab `json:"table"`
	Summary crosstab.Summary  `json:"summary"`
}

// AgeSex cross-tabulates age bucket by sex with every bucket present.
func (s *Service) AgeSex(ctx context.Context, q AgeSexQuery) (AgeSexView, error) {
	scheme, err := s.scheme(q.Scheme)
	if err != nil {
		return AgeSexView{}, err
	}
	sex, err := parseSex(q.Sex)
	if err != nil {
		return AgeSexView{}, err
	}
	records, err := s.store.FindFeedback(ctx, store.FeedbackFilter{Sex: sex})
	if err != nil {
		return AgeSexView{}, err
	}

	ct := crosstab.Build(records, crosstab.Spec[models.FeedbackRecord]{
		Row:     func(f models.FeedbackRecord) string { return derive.AgeBucket(f.Age, scheme) },
		Column:  func(f models.FeedbackRecord) string { return f.Sex },
		Rows:    scheme.Labels(),
		Columns: models.Sexes,
	})
	return AgeSexView{Scheme: scheme.Name, Table: ct, Summary: crosstab.Summarize(ct)}, nil
}
