package query

import (
	"regexp"
	"strings"
)

// Field is one piece of information a category needs before a precise
// answer is possible. Indicators are concrete terms that resolve the
// field straight from the question text.
type Field struct {
	Name       string
	Prompt     string
	Options    []string
	Context    string
	Indicators []string
}

// Category bundles the detection patterns and enrichment templates for
// one topic.
type Category struct {
	Name           string
	Patterns       []string
	RequiredFields []Field
	FollowUps      []string
	ActionItems    []string
	RelatedTopics  []string
}

// Classifier assigns a topic category to free text with a certainty in
// [0,1]. Empty name means unclassified. The keyword-table implementation
// below is one concrete variant; a statistical classifier can be dropped
// in without touching the analyzer's control flow.
type Classifier interface {
	Classify(text string) (string, float64)
}

type KeywordClassifier struct {
	categories []Category
	compiled   map[string][]*regexp.Regexp
}

func NewKeywordClassifier(categories []Category) *KeywordClassifier {
	compiled := make(map[string][]*regexp.Regexp, len(categories))
	for _, c := range categories {
		for _, p := range c.Patterns {
			compiled[c.Name] = append(compiled[c.Name], regexp.MustCompile(`(?i)\b`+p+`\b`))
		}
	}
	return &KeywordClassifier{categories: categories, compiled: compiled}
}

func (k *KeywordClassifier) Classify(text string) (string, float64) {
	lower := strings.ToLower(text)

	best := ""
	bestHits := 0
	for _, c := range k.categories {
		hits := 0
		for _, re := range k.compiled[c.Name] {
			if re.MatchString(lower) {
				hits++
			}
		}
		if hits > bestHits {
			best = c.Name
			bestHits = hits
		}
	}

	if best == "" {
		return "", 0
	}

	// One pattern hit is a weak signal; two or more is near-certain.
	certainty := 0.5 + 0.25*float64(bestHits-1)
	if certainty > 1 {
		certainty = 1
	}
	return best, certainty
}

// DefaultCategories is the stock topic table: student jobs, course and
// grade questions, and campus locations.
func DefaultCategories() []Category {
	return []Category{
		{
			Name:     "jobs",
			Patterns: []string{"jobs?", "work", "employment", "career", "internships?", "hiring"},
			RequiredFields: []Field{
				{
					Name:       "job_location",
					Prompt:     "Are you looking for on-campus or off-campus job opportunities?",
					Options:    []string{"On-campus", "Off-campus", "Both", "Not sure"},
					Context:    "This will help narrow down relevant job listings",
					Indicators: []string{"on-campus", "off-campus", "on campus", "off campus", "remote"},
				},
				{
					Name:       "major",
					Prompt:     "What's your major or field of study?",
					Options:    []string{"Computer Science", "Engineering", "Business", "Arts", "Sciences", "Other"},
					Context:    "This helps suggest jobs relevant to your field",
					Indicators: []string{"computer science", "engineering", "business", "arts", "science", "cs"},
				},
			},
			FollowUps: []string{
				"Are you looking for on-campus or off-campus positions?",
				"What's your preferred work schedule?",
				"Do you have specific skills or experience to highlight?",
			},
			ActionItems: []string{
				"Check the student jobs board daily",
				"Contact your department's administrative office",
				"Visit the career services office",
				"Update your resume and cover letter",
			},
			RelatedTopics: []string{
				"Career Services",
				"Student Employment Office",
				"Internship Opportunities",
				"Resume Building",
			},
		},
		{
			Name:     "courses",
			Patterns: []string{"courses?", "class(es)?", "grades?", "professors?", "electives?", "credits?"},
			RequiredFields: []Field{
				{
					Name:       "course_subject",
					Prompt:     "What specific course or subject are you interested in?",
					Options:    []string{"Math", "Computer Science", "Engineering", "Business", "General Education", "Other"},
					Context:    "This helps provide specific grade and professor information",
					Indicators: []string{"math", "mat ", "cs ", "csc", "eng", "bus", "phy", "chm", "glg"},
				},
			},
			FollowUps: []string{
				"What semester are you planning to take this course?",
				"Are you more interested in professor ratings or grade distributions?",
				"Are you looking for easy courses or challenging ones?",
			},
			ActionItems: []string{
				"Check course registration dates",
				"Review professor ratings",
				"Talk to academic advisors",
				"Review course syllabi and requirements",
			},
			RelatedTopics: []string{
				"Course Registration Tips",
				"Professor Selection Strategies",
				"GPA Information",
				"Academic Advising",
			},
		},
		{
			Name:     "campus",
			Patterns: []string{"campus", "building", "location", "housing", "dorms?", "dining"},
			RequiredFields: []Field{
				{
					Name:       "campus_name",
					Prompt:     "Which campus are you referring to?",
					Options:    []string{"Tempe", "Downtown", "Polytechnic", "West", "Online"},
					Context:    "Campus-specific information varies a lot",
					Indicators: []string{"tempe", "downtown", "polytechnic", "west", "online"},
				},
			},
			FollowUps: []string{
				"Are you looking for something specific on campus?",
				"Do you need directions or general information?",
			},
			ActionItems: []string{
				"Check the campus map",
				"Visit the student services center",
			},
			RelatedTopics: []string{
				"Campus Resources",
				"Student Life",
				"Campus Events",
				"Student Organizations",
			},
		},
	}
}
