package retrieval_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"campusrag/internal/retrieval"
	"campusrag/internal/vector"
)

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockStore struct{ mock.Mock }

func (m *MockStore) Upsert(ctx context.Context, rec vector.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockStore) Query(ctx context.Context, vec []float32, k int, filter vector.Filter) ([]vector.Match, error) {
	args := m.Called(ctx, vec, k, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vector.Match), args.Error(1)
}

func (m *MockStore) Stats(ctx context.Context) (vector.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(vector.Stats), args.Error(1)
}

func match(id, content string, similarity float64, modified time.Time) vector.Match {
	return vector.Match{
		Record:     vector.Record{ChunkID: id, Content: content, ModifiedAt: modified},
		Similarity: similarity,
	}
}

func TestServiceRetrieve(t *testing.T) {
	ctx := context.Background()
	queryVec := []float32{0.1, 0.2}
	now := time.Now()

	t.Run("Reranks By Lexical Overlap", func(t *testing.T) {
		emb := &MockEmbedder{}
		store := &MockStore{}
		emb.On("Embed", ctx, "easy science electives").Return(queryVec, nil)
		// Highest vector similarity goes to an off-topic chunk; rerank
		// should demote it.
		store.On("Query", ctx, queryVec, 6, vector.Filter(nil)).Return([]vector.Match{
			match("off-topic", "parking permit renewal deadlines", 0.95, now),
			match("on-topic", "GLG 110 is an easy science elective with open-book exams", 0.80, now),
		}, nil)

		svc := retrieval.NewService(emb, store, retrieval.Options{TopK: 2, Multiplier: 3}, nil)
		results, err := svc.Retrieve(ctx, "easy science electives", nil)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "on-topic", results[0].ChunkID)
		assert.Greater(t, results[0].RerankScore, results[1].RerankScore)
	})

	t.Run("Overfetches Then Truncates", func(t *testing.T) {
		emb := &MockEmbedder{}
		store := &MockStore{}
		emb.On("Embed", ctx, "question").Return(queryVec, nil)

		var matches []vector.Match
		for i := 0; i < 9; i++ {
			matches = append(matches, match(string(rune('a'+i)), "question text", 0.9-float64(i)*0.05, now))
		}
		store.On("Query", ctx, queryVec, 9, vector.Filter(nil)).Return(matches, nil)

		svc := retrieval.NewService(emb, store, retrieval.Options{TopK: 3, Multiplier: 3}, nil)
		results, err := svc.Retrieve(ctx, "question", nil)
		require.NoError(t, err)
		assert.Len(t, results, 3)
	})

	t.Run("Tie Break Similarity Then Recency", func(t *testing.T) {
		emb := &MockEmbedder{}
		store := &MockStore{}
		emb.On("Embed", ctx, "zzz").Return(queryVec, nil)
		old := now.Add(-30 * 24 * time.Hour)
		// Identical content means identical lexical score; recency boost
		// disabled so rerank scores tie exactly.
		store.On("Query", ctx, queryVec, 5, vector.Filter(nil)).Return([]vector.Match{
			match("low-sim", "identical words here", 0.70, now),
			match("high-sim", "identical words here", 0.90, old),
		}, nil)

		svc := retrieval.NewService(emb, store, retrieval.Options{TopK: 5, Multiplier: 1}, nil)
		results, err := svc.Retrieve(ctx, "zzz", nil)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "high-sim", results[0].ChunkID, "raw similarity breaks the tie")
	})

	t.Run("Empty Store Returns Empty Not Error", func(t *testing.T) {
		emb := &MockEmbedder{}
		store := &MockStore{}
		emb.On("Embed", ctx, "anything").Return(queryVec, nil)
		store.On("Query", ctx, queryVec, 15, vector.Filter(nil)).Return([]vector.Match{}, nil)

		svc := retrieval.NewService(emb, store, retrieval.Options{TopK: 5, Multiplier: 3}, nil)
		results, err := svc.Retrieve(ctx, "anything", nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("Embed Error Propagates", func(t *testing.T) {
		emb := &MockEmbedder{}
		store := &MockStore{}
		emb.On("Embed", ctx, "q").Return(nil, errors.New("service down"))

		svc := retrieval.NewService(emb, store, retrieval.Options{TopK: 5, Multiplier: 3}, nil)
		_, err := svc.Retrieve(ctx, "q", nil)
		assert.Error(t, err)
		store.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Filter Passed Through", func(t *testing.T) {
		emb := &MockEmbedder{}
		store := &MockStore{}
		filter := vector.Filter{"source": "forum"}
		emb.On("Embed", ctx, "q").Return(queryVec, nil)
		store.On("Query", ctx, queryVec, 15, filter).Return([]vector.Match{}, nil)

		svc := retrieval.NewService(emb, store, retrieval.Options{TopK: 5, Multiplier: 3}, nil)
		_, err := svc.Retrieve(ctx, "q", filter)
		require.NoError(t, err)
		store.AssertExpectations(t)
	})
}

func TestQueryLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := retrieval.NewQueryLogger(&buf)

	logger.Log(retrieval.QueryLogEntry{
		Query:      "test query",
		NumResults: 3,
		Duration:   42 * time.Millisecond,
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test query", entry["query"])
	assert.Equal(t, float64(3), entry["num_results"])
	assert.Equal(t, float64(42), entry["latency_ms"])
}
