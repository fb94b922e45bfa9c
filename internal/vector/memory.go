package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStore is the embedded backend: an exact cosine scan over an
// in-process map. Suitable for development, tests and small corpora;
// swap in the Weaviate backend for anything bigger.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	dim     int
}

func NewMemoryStore(dim int) *MemoryStore {
	return &MemoryStore{records: make(map[string]Record), dim: dim}
}

func (s *MemoryStore) Upsert(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ChunkID] = rec
	return nil
}

func (s *MemoryStore) Query(_ context.Context, vector []float32, k int, filter Filter) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]Match, 0, k)
	for _, rec := range s.records {
		if !filter.matches(rec) {
			continue
		}
		matches = append(matches, Match{Record: rec, Similarity: Cosine(vector, rec.Vector)})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Record.ChunkID < matches[j].Record.ChunkID
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Records: len(s.records), Backend: "memory", Dim: s.dim}, nil
}

// Cosine returns the cosine similarity of two vectors, 0 for mismatched
// or zero-length input.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
