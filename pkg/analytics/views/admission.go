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

const topIssues = 3

type AdmissionQuery struct {
	AgeGroup string
	Sex      string
	Scheme   string
}

// admissionHit is one admitted event joined to one feedback record of the
// same patient.
type admissionHit struct {
	admittedFor string
	category    string
	subcategory string
	ethnicity   string
	patientID   string
}

const (
	keyReason = iota
	keyCategory
	keySubcategory
	keyDemographic
)

func hitKeys(h admissionHit) []string {
	return []string{h.admittedFor, h.category, h.subcategory, h.ethnicity}
}

func hitPatient(h admissionHit) string { return h.patientID }

// admissionHits joins admitted events to the filtered feedback of their
// patients. Events without a patient ID never join.
func (s *Service) admissionHits(ctx context.Context, q AdmissionQuery) ([]admissionHit, error) {
	if q.Scheme == "" {
		q.Scheme = derive.SchemeAdmission.Name
	}
	scheme, err := s.scheme(q.Scheme)
	if err != nil {
		return nil, err
	}
	sex, err := parseSex(q.Sex)
	if err != nil {
		return nil, err
	}
	minAge, maxAge, err := ageFilter(scheme, q.AgeGroup)
	if err != nil {
		return nil, err
	}

	events, err := s.store.FindEvents(ctx, store.EventFilter{EventType: models.EventTypeAdmitted})
	if err != nil {
		return nil, err
	}
	patientIDs := lo.Uniq(lo.FilterMap(events, func(e models.Event, _ int) (string, bool) {
		id := strings.TrimSpace(e.PatientID)
		return id, id != ""
	}))
	if len(patientIDs) == 0 {
		return []admissionHit{}, nil
	}

	feedback, err := s.store.FindFeedback(ctx, store.FeedbackFilter{
		Sex:        sex,
		MinAge:     minAge,
		MaxAge:     maxAge,
		PatientIDs: patientIDs,
	})
	if err != nil {
		return nil, err
	}
	byPatient := lo.GroupBy(feedback, func(f models.FeedbackRecord) string { return f.PatientID })

	hits := make([]admissionHit, 0)
	for _, e := range events {
		id := strings.TrimSpace(e.PatientID)
		if id == "" {
			continue
		}
		for _, f := range byPatient[id] {
			hits = append(hits, admissionHit{
				admittedFor: e.AdmittedFor,
				category:    f.Category,
				subcategory: f.Subcategory,
				ethnicity:   f.Ethnicity,
				patientID:   id,
			})
		}
	}
	return hits, nil
}

type AdmissionIssue struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Demographic string `json:"demographic"`
	Count       int    `json:"count"`
}

type AdmissionAnalysis struct {
	AdmittedFor      string           `json:"admitted_for"`
	TotalIssues      int              `json:"total_issues"`
	UniquePatients   int              `json:"unique_patients"`
	MostCommonIssues []AdmissionIssue `json:"most_common_issues"`
}

type AdmissionTopIssue struct {
	AdmittedFor  string           `json:"admitted_for"`
	TotalIssues  int              `json:"total_issues"`
	MainProblems []AdmissionIssue `json:"main_problems"`
}

type AdmissionSummary struct {
	TotalRecords   int                 `json:"total_records"`
	AdmissionTypes int                 `json:"admission_types"`
	TopIssues      []AdmissionTopIssue `json:"top_issues"`
}

type AdmissionIssuesView struct {
	DetailedAnalysis []AdmissionAnalysis `json:"detailed_analysis"`
	Summary          AdmissionSummary    `json:"summary"`
}

func toIssue(g crosstab.Group) AdmissionIssue {
	return AdmissionIssue{
		Category:    g.Key(keyCategory),
		Subcategory: g.Key(keySubcategory),
		Demographic: g.Key(keyDemographic),
		Count:       g.Count,
	}
}

// AdmissionIssues reports, per admission reason, how many feedback issues its
// patients raised and the most common ones. Reasons are ordered by issue
// count, ties by first appearance.
func (s *Service) AdmissionIssues(ctx context.Context, q AdmissionQuery) (AdmissionIssuesView, error) {
	hits, err := s.admissionHits(ctx, q)
	if err != nil {
		return AdmissionIssuesView{}, err
	}

	groups := crosstab.GroupBy(hits, hitKeys, hitPatient)
	reasons := crosstab.TopGroups(crosstab.Regroup(groups, keyReason), len(groups))

	detailed := make([]AdmissionAnalysis, 0, len(reasons))
	for _, reason := range reasons {
		issues := crosstab.TopGroups(crosstab.Filter(groups, keyReason, reason.Key(0)), topIssues)
		detailed = append(detailed, AdmissionAnalysis{
			AdmittedFor:      reason.Key(0),
			TotalIssues:      reason.Count,
			UniquePatients:   len(reason.UniquePatientIDs),
			MostCommonIssues: lo.Map(issues, func(g crosstab.Group, _ int) AdmissionIssue { return toIssue(g) }),
		})
	}

	top := detailed
	if len(top) > topIssues {
		top = top[:topIssues]
	}
	return AdmissionIssuesView{
		DetailedAnalysis: detailed,
		Summary: AdmissionSummary{
			TotalRecords:   len(hits),
			AdmissionTypes: len(reasons),
			TopIssues: lo.Map(top, func(a AdmissionAnalysis, _ int) AdmissionTopIssue {
				return AdmissionTopIssue{
					AdmittedFor:  a.AdmittedFor,
					TotalIssues:  a.TotalIssues,
					MainProblems: a.MostCommonIssues,
				}
			}),
		},
	}, nil
}

type AdmissionSubcategoryRow struct {
	AdmittedFor   string `json:"admitted_for"`
	Subcategories []int  `json:"subcategories"`
	Total         int    `json:"total"`
}

type AdmissionSubcategoriesView struct {
	Subcategories    []string                  `json:"subcategories"`
	AdmissionReasons []string                  `json:"admissionReasons"`
	Data             []AdmissionSubcategoryRow `json:"data"`
}

// AdmissionSubcategories cross-tabulates admission reason by feedback
// subcategory. Counts in each row align with Subcategories; rows are ordered
// by total, ties by first appearance.
func (s *Service) AdmissionSubcategories(ctx context.Context, q AdmissionQuery) (AdmissionSubcategoriesView, error) {
	hits, err := s.admissionHits(ctx, q)
	if err != nil {
		return AdmissionSubcategoriesView{}, err
	}

	ct := crosstab.Build(hits, crosstab.Spec[admissionHit]{
		Row:     func(h admissionHit) string { return h.admittedFor },
		Column:  func(h admissionHit) string { return h.subcategory },
		Columns: models.Subcategories,
	})

	rows := lo.Map(ct.Rows, func(r crosstab.Row, _ int) AdmissionSubcategoryRow {
		return AdmissionSubcategoryRow{AdmittedFor: r.Key, Subcategories: r.Counts(), Total: r.Total()}
	})
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Total > rows[j].Total })

	return AdmissionSubcategoriesView{
		Subcategories:    ct.Columns,
		AdmissionReasons: lo.Map(rows, func(r AdmissionSubcategoryRow, _ int) string { return r.AdmittedFor }),
		Data:             rows,
	}, nil
}
