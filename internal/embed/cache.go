package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedEmbedder memoizes embeddings by content hash. Re-ingesting an
// unchanged corpus or repeating a query skips the network call entirely;
// identical text always maps to the identical vector anyway.
type CachedEmbedder struct {
	inner Embedder
	cache *gocache.Cache
}

func NewCachedEmbedder(inner Embedder, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		inner: inner,
		cache: gocache.New(ttl, ttl/2),
	}
}

func (e *CachedEmbedder) Model() string {
	return e.inner.Model()
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)
	if v, found := e.cache.Get(key); found {
		return v.([]float32), nil
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, vec, gocache.DefaultExpiration)
	return vec, nil
}

func (e *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(e.inner.Model() + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
