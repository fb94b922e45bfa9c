package embed

import (
	"context"
	"errors"
)

// ErrTransient marks failures worth retrying: rate limiting, timeouts,
// upstream 5xx. Anything else is treated as permanent for the chunk.
var ErrTransient = errors.New("transient embedding failure")

// Embedder converts text into a fixed-dimension vector. Query and corpus
// embeddings must come through the same Embedder so they share a space.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeTransient
	OutcomePermanent
)

// Outcome is the tagged result of one chunk's embedding attempt. Workers
// hand these to the collector instead of letting errors cross goroutines.
type Outcome struct {
	ChunkID string
	Kind    OutcomeKind
	Vector  []float32
	Err     error
}
