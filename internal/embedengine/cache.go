package embedengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/anortham/julie-go/internal/store"
)

// DefaultQueryCacheSize bounds the query-embedding cache. Query text (a
// user's search string) repeats far more than symbol text, which is why
// only EmbedQuery is cached here, not EmbedSymbols/EmbedBatch.
const DefaultQueryCacheSize = 1000

// CachedEmbedder wraps an Embedder with an LRU cache over EmbedQuery
// results, keyed on text+model so a cache entry never crosses model
// versions.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps inner with a query cache of cacheSize entries.
func NewCachedEmbedder(inner Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultQueryCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedEmbedder{inner: inner, cache: cache}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + c.inner.ModelName()))
	return hex.EncodeToString(sum[:])
}

// EmbedQuery returns the cached vector if present, otherwise computes and
// caches it.
func (c *CachedEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	key := c.cacheKey(query)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch passes through uncached: document/symbol batches are each
// seen once during indexing, so caching them would only grow memory.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedBatch(ctx, texts)
}

// EmbedSymbols passes through uncached, for the same reason as EmbedBatch.
func (c *CachedEmbedder) EmbedSymbols(ctx context.Context, symbols []*store.Symbol) ([][]float32, error) {
	return c.inner.EmbedSymbols(ctx, symbols)
}

func (c *CachedEmbedder) Dimensions() int      { return c.inner.Dimensions() }
func (c *CachedEmbedder) ModelName() string    { return c.inner.ModelName() }
func (c *CachedEmbedder) CachedBatchSize() int { return c.inner.CachedBatchSize() }
func (c *CachedEmbedder) IsUsingGPU() bool     { return c.inner.IsUsingGPU() }
func (c *CachedEmbedder) Close() error         { return c.inner.Close() }

// Inner exposes the wrapped embedder for callers that need engine-specific
// behaviour (e.g. reinitCPU's effects on CachedBatchSize/IsUsingGPU).
func (c *CachedEmbedder) Inner() Embedder { return c.inner }
