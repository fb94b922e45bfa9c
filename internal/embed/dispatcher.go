package embed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"campusrag/internal/text"
)

// Dispatcher fans chunks out to a bounded pool of workers, each retrying
// transient failures with exponential backoff and jitter. A chunk that
// exhausts its retries is skipped, never fatal to the run.
type Dispatcher struct {
	embedder    Embedder
	workers     int
	maxRetries  uint64
	backoffBase time.Duration
	backoffMax  time.Duration
	callTimeout time.Duration
}

type DispatcherOptions struct {
	Workers     int
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	CallTimeout time.Duration
}

func NewDispatcher(e Embedder, opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 8 * time.Second
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 60 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Dispatcher{
		embedder:    e,
		workers:     opts.Workers,
		maxRetries:  uint64(opts.MaxRetries),
		backoffBase: opts.BackoffBase,
		backoffMax:  opts.BackoffMax,
		callTimeout: opts.CallTimeout,
	}
}

// Result maps chunk ids to vectors; completion order across workers is
// unconstrained, keying makes the mapping exactly 1:1 regardless.
type Result struct {
	Vectors   map[string][]float32
	FailedIDs []string
}

func (r Result) Embedded() int { return len(r.Vectors) }
func (r Result) Failed() int   { return len(r.FailedIDs) }

// Run embeds every chunk and collects results keyed by chunk id. For N
// input chunks it returns N - len(FailedIDs) vectors.
func (d *Dispatcher) Run(ctx context.Context, chunks []text.Chunk) Result {
	result := Result{Vectors: make(map[string][]float32, len(chunks))}
	if len(chunks) == 0 {
		return result
	}

	tasks := make(chan text.Chunk)
	outcomes := make(chan Outcome, d.workers)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range tasks {
				outcomes <- d.embedOne(ctx, chunk)
			}
		}()
	}

	go func() {
		defer close(tasks)
		for _, chunk := range chunks {
			select {
			case tasks <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for o := range outcomes {
		switch o.Kind {
		case OutcomeSuccess:
			result.Vectors[o.ChunkID] = o.Vector
		default:
			slog.Warn("embedding permanently failed", "chunk_id", o.ChunkID, "error", o.Err)
			result.FailedIDs = append(result.FailedIDs, o.ChunkID)
		}
	}

	return result
}

func (d *Dispatcher) embedOne(ctx context.Context, chunk text.Chunk) Outcome {
	var vector []float32

	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
		defer cancel()

		vec, err := d.embedder.Embed(callCtx, chunk.Content)
		if err != nil {
			if errors.Is(err, ErrTransient) {
				return err
			}
			return backoff.Permanent(err)
		}
		vector = vec
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.backoffBase
	bo.MaxInterval = d.backoffMax

	// A transient error that survives every retry is permanent for this
	// run; the chunk is skipped either way.
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, d.maxRetries), ctx))
	if err != nil {
		return Outcome{ChunkID: chunk.ID, Kind: OutcomePermanent, Err: err}
	}

	return Outcome{ChunkID: chunk.ID, Kind: OutcomeSuccess, Vector: vector}
}
