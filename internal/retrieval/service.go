package retrieval

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"campusrag/internal/vector"
)

// Result is one retrieved chunk after reranking. Similarity is the raw
// vector score from the store; RerankScore is the independent lexical and
// recency signal the final ordering uses.
type Result struct {
	ChunkID     string
	Content     string
	Title       string
	URL         string
	Source      string
	ModifiedAt  time.Time
	Similarity  float64
	RerankScore float64
	Metadata    map[string]any
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Options struct {
	TopK         int
	Multiplier   int
	RecencyBoost float64
}

// Service retrieves an over-fetched candidate set and reranks it with a
// signal independent of vector distance. The query is embedded through
// the same Embedder used at ingestion, keeping both sides of the search
// in one embedding space.
type Service struct {
	embedder Embedder
	store    vector.Store
	opts     Options
	logger   *QueryLogger
}

func NewService(e Embedder, store vector.Store, opts Options, logger *QueryLogger) *Service {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.Multiplier < 1 {
		opts.Multiplier = 3
	}
	return &Service{embedder: e, store: store, opts: opts, logger: logger}
}

func (s *Service) Retrieve(ctx context.Context, query string, filter vector.Filter) ([]Result, error) {
	start := time.Now()

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	overfetch := s.opts.TopK * s.opts.Multiplier
	matches, err := s.store.Query(ctx, queryVec, overfetch, filter)
	if err != nil {
		return nil, err
	}

	// An empty candidate set is a result, not an error; the caller
	// decides how to degrade.
	if len(matches) == 0 {
		s.log(query, nil, time.Since(start))
		return nil, nil
	}

	results := s.rerank(query, matches)
	if len(results) > s.opts.TopK {
		results = results[:s.opts.TopK]
	}

	s.log(query, results, time.Since(start))
	return results, nil
}

func (s *Service) rerank(query string, matches []vector.Match) []Result {
	queryTerms := tokenize(query)
	now := time.Now()

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		r := Result{
			ChunkID:    m.Record.ChunkID,
			Content:    m.Record.Content,
			Title:      m.Record.Title,
			URL:        m.Record.URL,
			Source:     m.Record.Source,
			ModifiedAt: m.Record.ModifiedAt,
			Similarity: m.Similarity,
			Metadata:   m.Record.Metadata,
		}
		r.RerankScore = lexicalOverlap(queryTerms, m.Record.Content) +
			s.opts.RecencyBoost*recencyFactor(now, m.Record.ModifiedAt)
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].RerankScore != results[j].RerankScore {
			return results[i].RerankScore > results[j].RerankScore
		}
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ModifiedAt.After(results[j].ModifiedAt)
	})

	return results
}

func (s *Service) log(query string, results []Result, elapsed time.Duration) {
	if s.logger == nil {
		return
	}
	top := 0.0
	if len(results) > 0 {
		top = results[0].RerankScore
	}
	s.logger.Log(QueryLogEntry{
		Query:      query,
		NumResults: len(results),
		TopScore:   top,
		Duration:   elapsed,
	})
}

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"i": true, "me": true, "my": true, "you": true, "it": true, "of": true,
	"to": true, "in": true, "on": true, "for": true, "and": true, "or": true,
	"what": true, "which": true, "how": true, "do": true, "does": true,
	"want": true, "need": true, "can": true, "get": true, "with": true,
}

func tokenize(s string) map[string]bool {
	terms := map[string]bool{}
	for _, w := range wordRe.FindAllString(strings.ToLower(s), -1) {
		if !stopwords[w] {
			terms[w] = true
		}
	}
	return terms
}

// lexicalOverlap is the fraction of distinct query terms present in the
// document, a cheap cross-check against pure vector similarity.
func lexicalOverlap(queryTerms map[string]bool, doc string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	docTerms := tokenize(doc)
	hits := 0
	for term := range queryTerms {
		if docTerms[term] {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTerms))
}

// recencyFactor decays linearly from 1 (today) to 0 at two years old.
func recencyFactor(now, modified time.Time) float64 {
	if modified.IsZero() || modified.After(now) {
		return 0
	}
	const horizon = 2 * 365 * 24 * time.Hour
	age := now.Sub(modified)
	if age >= horizon {
		return 0
	}
	return 1 - float64(age)/float64(horizon)
}
