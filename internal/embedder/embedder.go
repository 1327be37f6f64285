// Package embedder turns text units into vectors via an OpenAI-compatible
// embedding service. The AdaptiveClient wraps a raw provider with batching
// that adapts to the service's real token limits at run time.
package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Provider is a raw embedding backend. EmbedBatch returns one vector per
// input text, in input order. Errors are classified into the sentinel
// errors in pkg/types so callers can branch on kind rather than message.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
	Close() error
}

// Cache memoizes embeddings by content hash, so re-indexing a changed book
// only pays for the units whose text actually changed.
type Cache struct {
	lru *lru.Cache[string, []float32]
}

// NewCache creates a Cache holding up to size entries.
func NewCache(size int) (*Cache, error) {
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// ComputeHash derives the cache key for a text under a given model.
func ComputeHash(model, text string) string {
	h := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(h[:])
}

// Get returns a copy of the cached vector, so callers can't mutate the
// cached value through the returned slice.
func (c *Cache) Get(key string) ([]float32, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Put stores a vector under key.
func (c *Cache) Put(key string, vector []float32) {
	stored := make([]float32, len(vector))
	copy(stored, vector)
	c.lru.Add(key, stored)
}

// Len reports the number of cached vectors.
func (c *Cache) Len() int {
	return c.lru.Len()
}
