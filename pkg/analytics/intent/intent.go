// Package intent routes free-text dashboard questions to the analysis that
// answers them.
package intent

import (
	"regexp"
	"strings"
)

type Intent struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Title  string `json:"title"`
	Report string `json:"report"`
}

type rule struct {
	intent   Intent
	keywords []*regexp.Regexp
}

func keywords(words ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(words))
	for _, w := range words {
		out = append(out, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(w)+`\b`))
	}
	return out
}

// Table order breaks ties, so the more specific analyses come first.
var rules = []rule{
	{
		intent: Intent{Name: "subcategory_ethnicity", Path: "/subcategory-ethnicity", Title: "Subcategory vs Ethnicity Analysis", Report: "subcategory-ethnicity"},
		keywords: keywords("ethnicity", "ethnic", "race", "cultural background", "culture",
			"subcategory", "sub-category"),
	},
	{
		intent:   Intent{Name: "age_subcategory", Path: "/age-subcategory", Title: "Age Group Analysis", Report: "age-subcategory"},
		keywords: keywords("age", "ages", "years", "young", "bracket", "age group", "age range"),
	},
	{
		intent:   Intent{Name: "admission_issues", Path: "/admission-issues", Title: "Admission Issues Analysis", Report: "admission-issues"},
		keywords: keywords("admission", "admissions", "admitted", "admitted for", "admission reason"),
	},
	{
		intent:   Intent{Name: "elderly_visits", Path: "/elderly-visits", Title: "Elderly Visits Trend", Report: "elderly-visits"},
		keywords: keywords("elderly", "senior", "seniors", "older patients", "frequent visits"),
	},
	{
		intent:   Intent{Name: "pregnant_visits", Path: "/pregnant-visits", Title: "Pregnant Visits Trend", Report: "pregnant-visits"},
		keywords: keywords("pregnant", "pregnancy", "maternal", "postpartum", "prenatal"),
	},
	{
		intent:   Intent{Name: "sentiment", Path: "/sentiment", Title: "Sentiment Comparison", Report: "sentiment-comparison"},
		keywords: keywords("sentiment", "sentiments", "polarity", "rating", "ratings", "satisfaction"),
	},
	{
		intent:   Intent{Name: "final_results", Path: "/final-results", Title: "Outcome Results", Report: "final-results"},
		keywords: keywords("outcome", "outcomes", "results", "improvement", "before and after"),
	},
	{
		intent:   Intent{Name: "feedback_impact", Path: "/feedback-impact", Title: "Feedback Impact Analysis", Report: "feedback-impact"},
		keywords: keywords("impact", "engagement", "effect", "reference date"),
	},
	{
		intent: Intent{Name: "feedback_analysis", Path: "/feedback-analysis", Title: "Feedback Analysis", Report: "feedback-analysis"},
		keywords: keywords("feedback", "complaint", "complaints", "responses", "categories", "category",
			"types", "classifications"),
	},
	{
		intent: Intent{Name: "event_trends", Path: "/event-trends", Title: "Event Trends", Report: "event-summary"},
		keywords: keywords("event", "events", "occurrences", "incidents", "hourly", "daily",
			"temporal", "frequency", "discharges", "procedures"),
	},
}

// Classify picks the intent whose keywords occur most often in question.
// Ties go to the earlier intent in the table; no hit at all yields false.
func Classify(question string) (Intent, bool) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Intent{}, false
	}

	best, bestHits := -1, 0
	for i, r := range rules {
		hits := 0
		for _, kw := range r.keywords {
			hits += len(kw.FindAllStringIndex(question, -1))
		}
		if hits > bestHits {
			best, bestHits = i, hits
		}
	}
	if best < 0 {
		return Intent{}, false
	}
	return rules[best].intent, true
}

// All lists every routable intent in table order.
func All() []Intent {
	out := make([]Intent, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.intent)
	}
	return out
}
