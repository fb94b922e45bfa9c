package query_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"campusrag/internal/query"
	"campusrag/internal/retrieval"
	"campusrag/internal/synth"
	"campusrag/internal/vector"
)

type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Retrieve(ctx context.Context, q string, filter vector.Filter) ([]retrieval.Result, error) {
	args := m.Called(ctx, q, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]retrieval.Result), args.Error(1)
}

type MockSynthesizer struct {
	mock.Mock
}

func (m *MockSynthesizer) Synthesize(ctx context.Context, question, contextText string) (string, error) {
	args := m.Called(ctx, question, contextText)
	return args.String(0), args.Error(1)
}

func defaultOptions() query.AnalyzerOptions {
	return query.AnalyzerOptions{
		Weights:            query.Weights{Similarity: 0.5, Coverage: 0.3, Category: 0.2},
		RelevanceThreshold: 0.4,
		LowConfidence:      0.3,
		SynthesisCap:       0.5,
		Timeout:            5 * time.Second,
	}
}

func newAnalyzer(r query.Retriever, s synth.Synthesizer) *query.Analyzer {
	categories := query.DefaultCategories()
	return query.NewAnalyzer(query.NewKeywordClassifier(categories), categories, r, s, defaultOptions())
}

func jobResults() []retrieval.Result {
	return []retrieval.Result{
		{
			ChunkID:     "chunk-1",
			Content:     "The student employment office posts on-campus job listings every week.",
			Title:       "Student Jobs",
			URL:         "https://example.edu/jobs",
			Similarity:  0.82,
			RerankScore: 0.7,
		},
		{
			ChunkID:     "chunk-2",
			Content:     "Career services helps with resume reviews and interview prep.",
			Title:       "Career Services",
			Similarity:  0.65,
			RerankScore: 0.5,
		},
	}
}

func TestAnswer_VagueQuestionGetsClarificationAndBestEffortAnswer(t *testing.T) {
	retriever := new(MockRetriever)
	retriever.On("Retrieve", mock.Anything, "I want a good job", vector.Filter(nil)).
		Return(jobResults(), nil)

	synthesizer := new(MockSynthesizer)
	synthesizer.On("Synthesize", mock.Anything, "I want a good job", mock.Anything).
		Return("Check the student jobs board and visit career services.", nil)

	analyzer := newAnalyzer(retriever, synthesizer)

	resp, err := analyzer.Answer(context.Background(), query.Request{Question: "I want a good job"})
	require.NoError(t, err)

	assert.Equal(t, "jobs", resp.Category)
	assert.True(t, resp.NeedsClarification)
	require.NotEmpty(t, resp.ClarificationQuestions)
	for _, c := range resp.ClarificationQuestions {
		assert.NotEmpty(t, c.Prompt)
		assert.NotEmpty(t, c.Options)
	}

	// Clarification does not block the answer.
	assert.Equal(t, "Check the student jobs board and visit career services.", resp.Answer)
	assert.NotEmpty(t, resp.Sources)
	assert.NotEmpty(t, resp.FollowUpQuestions)
	assert.NotEmpty(t, resp.ActionItems)
	retriever.AssertExpectations(t)
	synthesizer.AssertExpectations(t)
}

func TestAnswer_SpecificQuestionSkipsClarification(t *testing.T) {
	retriever := new(MockRetriever)
	retriever.On("Retrieve", mock.Anything, mock.Anything, vector.Filter(nil)).
		Return(jobResults(), nil)

	synthesizer := new(MockSynthesizer)
	synthesizer.On("Synthesize", mock.Anything, mock.Anything, mock.Anything).
		Return("There are several on-campus positions for CS students.", nil)

	analyzer := newAnalyzer(retriever, synthesizer)

	resp, err := analyzer.Answer(context.Background(), query.Request{
		Question: "What on-campus jobs are available for computer science students?",
	})
	require.NoError(t, err)

	assert.Equal(t, "jobs", resp.Category)
	assert.False(t, resp.NeedsClarification)
	assert.Empty(t, resp.ClarificationQuestions)
}

func TestAnswer_PriorAnswersResolveFieldsAndNarrowSearch(t *testing.T) {
	retriever := new(MockRetriever)
	// Prior answers are appended to the search text in field-name order.
	retriever.On("Retrieve", mock.Anything, "I want a good job on-campus computer science", vector.Filter(nil)).
		Return(jobResults(), nil)

	synthesizer := new(MockSynthesizer)
	synthesizer.On("Synthesize", mock.Anything, mock.Anything, mock.Anything).
		Return("Try the CS department grader positions.", nil)

	analyzer := newAnalyzer(retriever, synthesizer)

	resp, err := analyzer.Answer(context.Background(), query.Request{
		Question: "I want a good job",
		PriorAnswers: map[string]string{
			"job_location": "on-campus",
			"major":        "computer science",
		},
	})
	require.NoError(t, err)

	assert.False(t, resp.NeedsClarification)
	assert.Empty(t, resp.ClarificationQuestions)
	retriever.AssertExpectations(t)
}

func TestAnswer_EmptyStoreReturnsLowConfidence(t *testing.T) {
	retriever := new(MockRetriever)
	retriever.On("Retrieve", mock.Anything, mock.Anything, vector.Filter(nil)).
		Return([]retrieval.Result{}, nil)

	analyzer := newAnalyzer(retriever, new(MockSynthesizer))

	resp, err := analyzer.Answer(context.Background(), query.Request{
		Question: "What dining options are on the Tempe campus?",
	})
	require.NoError(t, err)

	assert.Less(t, resp.ConfidenceScore, 0.3)
	assert.Contains(t, resp.Answer, "couldn't find relevant information")
	assert.Empty(t, resp.Sources)
	// Category enrichment still applies even without results.
	assert.Equal(t, "campus", resp.Category)
	assert.NotEmpty(t, resp.RelatedTopics)
}

func TestAnswer_SynthesisUnavailableDegradesWithCappedConfidence(t *testing.T) {
	// High rerank scores would normally push confidence well above the
	// cap; the degrade path must pull it back down.
	results := jobResults()
	results[0].RerankScore = 0.95
	results[1].RerankScore = 0.9

	retriever := new(MockRetriever)
	retriever.On("Retrieve", mock.Anything, mock.Anything, vector.Filter(nil)).
		Return(results, nil)

	synthesizer := new(MockSynthesizer)
	synthesizer.On("Synthesize", mock.Anything, mock.Anything, mock.Anything).
		Return("", synth.ErrUnavailable)

	analyzer := newAnalyzer(retriever, synthesizer)

	resp, err := analyzer.Answer(context.Background(), query.Request{
		Question: "What internships are open to engineering students?",
	})
	require.NoError(t, err)

	assert.Contains(t, resp.Answer, "Student Jobs")
	assert.NotEmpty(t, resp.Note)
	assert.LessOrEqual(t, resp.ConfidenceScore, 0.5)
	assert.NotEmpty(t, resp.Sources)
}

func TestAnswer_NilSynthesizerDegradesTheSameWay(t *testing.T) {
	retriever := new(MockRetriever)
	retriever.On("Retrieve", mock.Anything, mock.Anything, vector.Filter(nil)).
		Return(jobResults(), nil)

	categories := query.DefaultCategories()
	analyzer := query.NewAnalyzer(query.NewKeywordClassifier(categories), categories, retriever, nil, defaultOptions())

	resp, err := analyzer.Answer(context.Background(), query.Request{
		Question: "What internships are open to engineering students?",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Answer)
	assert.NotEmpty(t, resp.Note)
}

func TestAnswer_UnclassifiedQuestionHasNoEnrichment(t *testing.T) {
	retriever := new(MockRetriever)
	retriever.On("Retrieve", mock.Anything, mock.Anything, vector.Filter(nil)).
		Return(jobResults(), nil)

	synthesizer := new(MockSynthesizer)
	synthesizer.On("Synthesize", mock.Anything, mock.Anything, mock.Anything).
		Return("An answer.", nil)

	analyzer := newAnalyzer(retriever, synthesizer)

	resp, err := analyzer.Answer(context.Background(), query.Request{
		Question: "Tell me about the weather tomorrow",
	})
	require.NoError(t, err)

	assert.Empty(t, resp.Category)
	assert.False(t, resp.NeedsClarification)
	assert.Empty(t, resp.FollowUpQuestions)
	assert.Empty(t, resp.ActionItems)
	assert.Empty(t, resp.RelatedTopics)
}

func TestAnswer_EmptyQuestionIsRejected(t *testing.T) {
	analyzer := newAnalyzer(new(MockRetriever), new(MockSynthesizer))

	_, err := analyzer.Answer(context.Background(), query.Request{Question: "   "})
	assert.Error(t, err)
}

func TestAnswer_LowConfidenceFlagged(t *testing.T) {
	// Weak rerank scores and below-threshold similarities drive the
	// blended confidence under the configured floor.
	results := []retrieval.Result{
		{ChunkID: "c1", Content: "Barely related text.", Similarity: 0.2, RerankScore: 0.05},
		{ChunkID: "c2", Content: "Also barely related.", Similarity: 0.1, RerankScore: 0.0},
	}

	retriever := new(MockRetriever)
	retriever.On("Retrieve", mock.Anything, mock.Anything, vector.Filter(nil)).
		Return(results, nil)

	synthesizer := new(MockSynthesizer)
	synthesizer.On("Synthesize", mock.Anything, mock.Anything, mock.Anything).
		Return("A tentative answer.", nil)

	analyzer := newAnalyzer(retriever, synthesizer)

	resp, err := analyzer.Answer(context.Background(), query.Request{Question: "tell me a joke"})
	require.NoError(t, err)

	assert.Less(t, resp.ConfidenceScore, 0.3)
	assert.Contains(t, resp.Note, "low confidence")
}

func TestAnswer_ConfidentAnswerHasNoNote(t *testing.T) {
	retriever := new(MockRetriever)
	retriever.On("Retrieve", mock.Anything, mock.Anything, vector.Filter(nil)).
		Return(jobResults(), nil)

	synthesizer := new(MockSynthesizer)
	synthesizer.On("Synthesize", mock.Anything, mock.Anything, mock.Anything).
		Return("A solid answer.", nil)

	analyzer := newAnalyzer(retriever, synthesizer)

	resp, err := analyzer.Answer(context.Background(), query.Request{
		Question: "What on-campus jobs are available for computer science students?",
	})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, resp.ConfidenceScore, 0.3)
	assert.Empty(t, resp.Note)
}

func TestAnswer_StoreUnavailableDegrades(t *testing.T) {
	retriever := new(MockRetriever)
	retriever.On("Retrieve", mock.Anything, mock.Anything, vector.Filter(nil)).
		Return(nil, fmt.Errorf("query: %w", vector.ErrStoreUnavailable))

	analyzer := newAnalyzer(retriever, new(MockSynthesizer))

	resp, err := analyzer.Answer(context.Background(), query.Request{Question: "campus dining hours"})
	require.NoError(t, err)

	assert.Contains(t, resp.Answer, "try again")
	assert.Equal(t, 0.0, resp.ConfidenceScore)
	assert.NotEmpty(t, resp.Note)
}

func TestAnswer_RetrieveErrorPropagates(t *testing.T) {
	retriever := new(MockRetriever)
	retriever.On("Retrieve", mock.Anything, mock.Anything, vector.Filter(nil)).
		Return(nil, errors.New("store down"))

	analyzer := newAnalyzer(retriever, new(MockSynthesizer))

	_, err := analyzer.Answer(context.Background(), query.Request{Question: "campus dining hours"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")
}

func TestAnswer_FilterIsPassedThrough(t *testing.T) {
	filter := vector.Filter{"source": "forum"}

	retriever := new(MockRetriever)
	retriever.On("Retrieve", mock.Anything, mock.Anything, filter).
		Return(jobResults(), nil)

	synthesizer := new(MockSynthesizer)
	synthesizer.On("Synthesize", mock.Anything, mock.Anything, mock.Anything).
		Return("An answer.", nil)

	analyzer := newAnalyzer(retriever, synthesizer)

	_, err := analyzer.Answer(context.Background(), query.Request{
		Question: "student job postings",
		Filter:   filter,
	})
	require.NoError(t, err)
	retriever.AssertExpectations(t)
}

func TestKeywordClassifier(t *testing.T) {
	classifier := query.NewKeywordClassifier(query.DefaultCategories())

	tests := []struct {
		name         string
		text         string
		wantCategory string
		minCertainty float64
	}{
		{"single job hit", "I want a good job", "jobs", 0.5},
		{"multiple job hits", "internship or part-time work for my career", "jobs", 0.75},
		{"course question", "which professors teach easy electives", "courses", 0.75},
		{"campus question", "where is the dining hall on campus", "campus", 0.75},
		{"no category", "tell me a joke", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, certainty := classifier.Classify(tt.text)
			assert.Equal(t, tt.wantCategory, name)
			assert.GreaterOrEqual(t, certainty, tt.minCertainty)
			assert.LessOrEqual(t, certainty, 1.0)
		})
	}
}
