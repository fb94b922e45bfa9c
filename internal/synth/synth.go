package synth

import (
	"context"
	"errors"
)

// ErrUnavailable signals that answer synthesis failed or is not
// configured. Callers degrade to returning raw retrieval with a note;
// it is never a hard failure.
var ErrUnavailable = errors.New("answer synthesis unavailable")

// Synthesizer turns a question and assembled, source-attributed context
// into a natural-language answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, question, context string) (string, error)
}
