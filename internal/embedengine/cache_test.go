package embedengine

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anortham/julie-go/internal/store"
)

// mockEmbedder is a test double that counts calls.
type mockEmbedder struct {
	queryCalls atomic.Int64
	batchCalls atomic.Int64
	dims       int
	model      string
	vec        []float32
	usingGPU   bool
}

func newMockEmbedder(dims int) *mockEmbedder {
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = float32(i) * 0.001
	}
	return &mockEmbedder{dims: dims, model: "mock-model", vec: vec}
}

func (m *mockEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	m.queryCalls.Add(1)
	return m.vec, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = m.vec
	}
	return result, nil
}

func (m *mockEmbedder) EmbedSymbols(ctx context.Context, symbols []*store.Symbol) ([][]float32, error) {
	return m.EmbedBatch(ctx, make([]string, len(symbols)))
}

func (m *mockEmbedder) Dimensions() int      { return m.dims }
func (m *mockEmbedder) ModelName() string    { return m.model }
func (m *mockEmbedder) CachedBatchSize() int { return 50 }
func (m *mockEmbedder) IsUsingGPU() bool     { return m.usingGPU }
func (m *mockEmbedder) Close() error         { return nil }

func TestCachedEmbedder_EmbedQuery_CachesRepeatedCalls(t *testing.T) {
	inner := newMockEmbedder(4)
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := c.EmbedQuery(ctx, "find the auth handler")
	require.NoError(t, err)
	_, err = c.EmbedQuery(ctx, "find the auth handler")
	require.NoError(t, err)

	assert.Equal(t, int64(1), inner.queryCalls.Load())
}

func TestCachedEmbedder_EmbedQuery_DifferentTextMisses(t *testing.T) {
	inner := newMockEmbedder(4)
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := c.EmbedQuery(ctx, "query a")
	require.NoError(t, err)
	_, err = c.EmbedQuery(ctx, "query b")
	require.NoError(t, err)

	assert.Equal(t, int64(2), inner.queryCalls.Load())
}

func TestCachedEmbedder_EmbedBatch_NeverCached(t *testing.T) {
	inner := newMockEmbedder(4)
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := c.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	_, err = c.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, int64(2), inner.batchCalls.Load())
}

func TestCachedEmbedder_PassthroughAccessors(t *testing.T) {
	inner := newMockEmbedder(4)
	inner.usingGPU = true
	c := NewCachedEmbedder(inner, 10)

	assert.Equal(t, 4, c.Dimensions())
	assert.Equal(t, "mock-model", c.ModelName())
	assert.Equal(t, 50, c.CachedBatchSize())
	assert.True(t, c.IsUsingGPU())
	assert.Same(t, inner, c.Inner())
}

func TestCachedEmbedder_DefaultSizeAppliedWhenNonPositive(t *testing.T) {
	c := NewCachedEmbedder(newMockEmbedder(4), 0)
	assert.NotNil(t, c.cache)
}
