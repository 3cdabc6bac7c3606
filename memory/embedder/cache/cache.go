// Package cache decorates an Embedder with a ristretto in-process
// cache. The same text is embedded at least twice per remembered item
// (once on add, once on every retrieval that repeats it), so caching
// saves real provider round-trips.
package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/seekerworks/searchagent/memory"
)

// Embedder wraps an inner embedder with a text-keyed cache.
type Embedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// New creates a caching embedder. maxBytes bounds the cache cost,
// counted as four bytes per stored float.
func New(inner memory.Embedder, maxBytes int64) (*Embedder, error) {
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &Embedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector when the text was seen before,
// otherwise asks the inner embedder and caches the result. Errors are
// never cached.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return v.([]float32), nil
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, vec, int64(len(vec)*4))
	return vec, nil
}

// Wait blocks until buffered cache writes are applied. Ristretto
// admits entries asynchronously; callers that need read-your-write
// behavior (mostly tests) can wait explicitly.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Dimensions returns the inner embedder's dimension.
func (e *Embedder) Dimensions() int { return e.inner.Dimensions() }

// Close releases the cache.
func (e *Embedder) Close() {
	e.cache.Close()
}
