package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"campusrag/internal/retrieval"
	"campusrag/internal/synth"
	"campusrag/internal/vector"
)

// Request carries the question plus any answers the user already gave
// to earlier clarification prompts, keyed by field name.
type Request struct {
	Question     string            `json:"question"`
	PriorAnswers map[string]string `json:"prior_answers,omitempty"`
	Filter       vector.Filter     `json:"filter,omitempty"`
}

type Source struct {
	Title   string  `json:"title,omitempty"`
	URL     string  `json:"url,omitempty"`
	Score   float64 `json:"score"`
	Preview string  `json:"content_preview"`
	Origin  string  `json:"source,omitempty"`
}

type Clarification struct {
	Field   string   `json:"field_name"`
	Prompt  string   `json:"question"`
	Options []string `json:"options,omitempty"`
	Context string   `json:"context,omitempty"`
}

type Response struct {
	Answer                 string          `json:"answer"`
	Category               string          `json:"category,omitempty"`
	ConfidenceScore        float64         `json:"confidence_score"`
	NeedsClarification     bool            `json:"needs_clarification"`
	ClarificationQuestions []Clarification `json:"clarification_questions,omitempty"`
	FollowUpQuestions      []string        `json:"follow_up_questions,omitempty"`
	ActionItems            []string        `json:"action_items,omitempty"`
	RelatedTopics          []string        `json:"related_topics,omitempty"`
	Sources                []Source        `json:"sources,omitempty"`
	Incomplete             bool            `json:"incomplete,omitempty"`
	Note                   string          `json:"note,omitempty"`
}

// Weights shape the confidence blend. They should sum to 1; the config
// layer validates that before an Analyzer is built.
type Weights struct {
	Similarity float64
	Coverage   float64
	Category   float64
}

type AnalyzerOptions struct {
	Weights            Weights
	RelevanceThreshold float64
	LowConfidence      float64
	SynthesisCap       float64
	Timeout            time.Duration
}

// Retriever is the slice of the retrieval service the analyzer needs.
type Retriever interface {
	Retrieve(ctx context.Context, query string, filter vector.Filter) ([]retrieval.Result, error)
}

// Analyzer answers questions end to end. Clarification never blocks an
// answer: a vague question gets clarification prompts alongside a
// best-effort response, so a single round trip is always useful.
type Analyzer struct {
	classifier Classifier
	categories map[string]Category
	retriever  Retriever
	synth      synth.Synthesizer
	opts       AnalyzerOptions
}

func NewAnalyzer(classifier Classifier, categories []Category, retriever Retriever, s synth.Synthesizer, opts AnalyzerOptions) *Analyzer {
	byName := make(map[string]Category, len(categories))
	for _, c := range categories {
		byName[c.Name] = c
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	if opts.SynthesisCap <= 0 {
		opts.SynthesisCap = 0.5
	}
	return &Analyzer{
		classifier: classifier,
		categories: byName,
		retriever:  retriever,
		synth:      s,
		opts:       opts,
	}
}

const insufficientAnswer = "I couldn't find relevant information to answer that. " +
	"Try rephrasing the question or asking about a more specific topic."

// genericQualifiers mark questions that name a desire without a concrete
// subject ("a good job", "some easy classes").
var genericQualifiers = []string{
	"good", "best", "easy", "nice", "some", "any", "better", "great",
}

func (a *Analyzer) Answer(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Question) == "" {
		return Response{}, fmt.Errorf("question is required")
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	resp := Response{}

	name, certainty := a.classifier.Classify(req.Question)
	category, classified := a.categories[name]
	if classified {
		resp.Category = name
	}

	if classified {
		unresolved := a.unresolvedFields(category, req)
		if len(unresolved) > 0 && isVague(req.Question) {
			resp.NeedsClarification = true
			for _, f := range unresolved {
				resp.ClarificationQuestions = append(resp.ClarificationQuestions, Clarification{
					Field:   f.Name,
					Prompt:  f.Prompt,
					Options: f.Options,
					Context: f.Context,
				})
			}
		}
	}

	// Retrieval is best effort even when clarification is pending. Prior
	// answers are folded into the search text so each round narrows it.
	searchText := req.Question
	for _, v := range sortedValues(req.PriorAnswers) {
		searchText += " " + v
	}

	results, err := a.retriever.Retrieve(ctx, searchText, req.Filter)
	if err != nil {
		if errors.Is(err, vector.ErrStoreUnavailable) {
			resp.Answer = "The knowledge base is temporarily unavailable. Please try again shortly."
			resp.Note = "vector store unavailable"
			resp.ConfidenceScore = 0
			a.enrich(&resp, category, classified)
			return resp, nil
		}
		if ctx.Err() != nil {
			// Out of time. Return what we have rather than nothing.
			resp.Answer = insufficientAnswer
			resp.Incomplete = true
			resp.Note = "the request timed out before retrieval completed"
			resp.ConfidenceScore = 0
			a.enrich(&resp, category, classified)
			return resp, nil
		}
		return Response{}, fmt.Errorf("retrieve: %w", err)
	}

	resp.ConfidenceScore = a.confidence(results, certainty)
	resp.Sources = toSources(results)

	if len(results) == 0 {
		resp.Answer = insufficientAnswer
		a.flagLowConfidence(&resp)
		a.enrich(&resp, category, classified)
		return resp, nil
	}

	answer, synthErr := a.synthesize(ctx, req.Question, results)
	switch {
	case synthErr == nil:
		resp.Answer = answer
	case errors.Is(synthErr, synth.ErrUnavailable):
		// Degrade to the raw retrieved context with capped confidence.
		resp.Answer = fallbackAnswer(results)
		resp.Note = "answer synthesis was unavailable; showing retrieved context directly"
		if resp.ConfidenceScore > a.opts.SynthesisCap {
			resp.ConfidenceScore = a.opts.SynthesisCap
		}
	default:
		return Response{}, fmt.Errorf("synthesize: %w", synthErr)
	}

	a.flagLowConfidence(&resp)
	a.enrich(&resp, category, classified)
	return resp, nil
}

// flagLowConfidence marks answers scoring under the configured floor so
// clients can render them as tentative. An existing note (degrade paths)
// takes precedence.
func (a *Analyzer) flagLowConfidence(resp *Response) {
	if resp.ConfidenceScore < a.opts.LowConfidence && resp.Note == "" {
		resp.Note = "low confidence; the available context may not cover this question"
	}
}

// unresolvedFields returns the category's required fields that neither
// the question text nor prior answers resolve.
func (a *Analyzer) unresolvedFields(category Category, req Request) []Field {
	lower := strings.ToLower(req.Question)
	var unresolved []Field
	for _, f := range category.RequiredFields {
		if _, ok := req.PriorAnswers[f.Name]; ok {
			continue
		}
		resolved := false
		for _, ind := range f.Indicators {
			if strings.Contains(lower, ind) {
				resolved = true
				break
			}
		}
		if !resolved {
			unresolved = append(unresolved, f)
		}
	}
	return unresolved
}

func isVague(question string) bool {
	lower := strings.ToLower(question)
	for _, q := range genericQualifiers {
		if strings.Contains(lower, q) {
			return true
		}
	}
	return false
}

// confidence blends mean rerank score, the share of results above the
// relevance threshold, and classification certainty. No results means
// no confidence regardless of weights.
func (a *Analyzer) confidence(results []retrieval.Result, certainty float64) float64 {
	if len(results) == 0 {
		return 0
	}

	var sum float64
	above := 0
	for _, r := range results {
		sum += r.RerankScore
		if r.Similarity >= a.opts.RelevanceThreshold {
			above++
		}
	}
	mean := sum / float64(len(results))
	coverage := float64(above) / float64(len(results))

	score := a.opts.Weights.Similarity*mean +
		a.opts.Weights.Coverage*coverage +
		a.opts.Weights.Category*certainty

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func (a *Analyzer) synthesize(ctx context.Context, question string, results []retrieval.Result) (string, error) {
	if a.synth == nil {
		return "", synth.ErrUnavailable
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[Source %d", i+1)
		if r.Title != "" {
			fmt.Fprintf(&b, ": %s", r.Title)
		}
		b.WriteString("]\n")
		b.WriteString(r.Content)
		b.WriteString("\n\n")
	}

	return a.synth.Synthesize(ctx, question, b.String())
}

// enrich attaches the category's follow-up, action, and related-topic
// templates. Unclassified questions get none.
func (a *Analyzer) enrich(resp *Response, category Category, classified bool) {
	if !classified {
		return
	}
	resp.FollowUpQuestions = category.FollowUps
	resp.ActionItems = category.ActionItems
	resp.RelatedTopics = category.RelatedTopics
}

func fallbackAnswer(results []retrieval.Result) string {
	var b strings.Builder
	b.WriteString("Here is the most relevant information found:\n\n")
	for _, r := range results {
		if r.Title != "" {
			b.WriteString(r.Title)
			b.WriteString(": ")
		}
		b.WriteString(snippet(r.Content, 300))
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func toSources(results []retrieval.Result) []Source {
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, Source{
			Title:   r.Title,
			URL:     r.URL,
			Score:   r.Similarity,
			Preview: snippet(r.Content, 200),
			Origin:  r.Source,
		})
	}
	return sources
}

func snippet(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

func sortedValues(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic order keeps the search text stable for a given set
	// of prior answers.
	sort.Strings(keys)
	vals := make([]string, 0, len(keys))
	for _, k := range keys {
		vals = append(vals, m[k])
	}
	return vals
}
