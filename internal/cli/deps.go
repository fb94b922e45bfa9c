package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"campusrag/internal/config"
	"campusrag/internal/embed"
	"campusrag/internal/vector"
)

// buildEmbedder constructs the configured provider wrapped in the
// in-process cache. The returned closer releases provider resources and
// may be nil.
func buildEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, func(), error) {
	var (
		inner  embed.Embedder
		closer func()
	)

	switch cfg.EmbeddingProvider {
	case "openai":
		e, err := embed.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingRPS, cfg.EmbeddingBurst)
		if err != nil {
			return nil, nil, fmt.Errorf("openai embedder: %w", err)
		}
		inner = e
	case "gemini":
		e, err := embed.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini embedder: %w", err)
		}
		inner = e
		closer = func() { e.Close() }
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}

	ttl := time.Duration(cfg.EmbedCacheTTLMin) * time.Minute
	return embed.NewCachedEmbedder(inner, ttl), closer, nil
}

// buildStore constructs the configured vector backend. The Weaviate
// backend waits for the instance to come up and converges the schema
// before use.
func buildStore(ctx context.Context, cfg *config.Config) (vector.Store, error) {
	switch cfg.VectorBackend {
	case "memory":
		return vector.NewMemoryStore(cfg.EmbeddingDim), nil
	case "weaviate":
		client, err := weaviate.NewClient(weaviate.Config{
			Host:   cfg.WeaviateHost,
			Scheme: cfg.WeaviateScheme,
		})
		if err != nil {
			return nil, fmt.Errorf("weaviate client: %w", err)
		}

		adapter := vector.NewClientAdapter(client)
		for i := 0; i < 10; i++ {
			if err = vector.EnsureSchema(ctx, adapter, cfg.WeaviateClass); err == nil {
				break
			}
			slog.Warn("weaviate not ready, retrying", "attempt", i+1, "error", err)
			time.Sleep(2 * time.Second)
		}
		if err != nil {
			return nil, fmt.Errorf("weaviate schema: %w", err)
		}

		return vector.NewWeaviateStore(client, cfg.WeaviateClass, cfg.EmbeddingDim), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

func dispatcherOptions(cfg *config.Config) embed.DispatcherOptions {
	return embed.DispatcherOptions{
		Workers:     cfg.EmbedWorkers,
		MaxRetries:  cfg.EmbedMaxRetries,
		BackoffBase: time.Duration(cfg.EmbedBackoffBaseMS) * time.Millisecond,
		BackoffMax:  time.Duration(cfg.EmbedBackoffMaxMS) * time.Millisecond,
		CallTimeout: time.Duration(cfg.EmbedTimeoutSec) * time.Second,
	}
}
