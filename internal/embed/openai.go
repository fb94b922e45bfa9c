package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIEmbedder calls the OpenAI embeddings endpoint behind a client-side
// rate limiter, so a large ingestion run does not trip the account limit.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

func NewOpenAIEmbedder(apiKey, model string, rps float64, burst int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if burst < 1 {
		burst = 1
	}
	return &OpenAIEmbedder{
		client:  openai.NewClient(apiKey),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

func (e *OpenAIEmbedder) Model() string {
	return e.model
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		slog.DebugContext(ctx, "openai embedding call failed", "error", err)
		return nil, classifyOpenAIError(err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding received")
	}
	return resp.Data[0].Embedding, nil
}

func classifyOpenAIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: rate limited: %v", ErrTransient, err)
		case apiErr.HTTPStatusCode >= 500:
			return fmt.Errorf("%w: upstream error: %v", ErrTransient, err)
		}
		return err
	}

	// Network-level failures (connection reset, DNS) come back as plain
	// errors; treat them as retryable.
	return fmt.Errorf("%w: %v", ErrTransient, err)
}
