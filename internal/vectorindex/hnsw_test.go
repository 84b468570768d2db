package vectorindex

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHNSWStore_AddAndSearch(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ids := []string{"a", "b", "c"}
	vectors := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0.9, 0.1, 0, 0},
	}

	require.NoError(t, idx.Add(context.Background(), ids, vectors))

	results, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
	assert.Greater(t, results[0].Score, float32(0.99))
}

func TestHNSWStore_Delete(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ids := []string{"a", "b"}
	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}
	require.NoError(t, idx.Add(context.Background(), ids, vectors))

	require.NoError(t, idx.Delete(context.Background(), []string{"a"}))

	assert.False(t, idx.Contains("a"))
	assert.Equal(t, 1, idx.Count())
	assert.True(t, idx.Contains("b"))
}

func TestHNSWStore_Update(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, idx.Add(context.Background(), []string{"a"}, [][]float32{{0, 1, 0, 0}}))

	assert.Equal(t, 1, idx.Count())

	results, err := idx.Search(context.Background(), []float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.Greater(t, results[0].Score, float32(0.99))
}

func TestHNSWStore_Persistence(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "vectors")

	cfg := DefaultVectorStoreConfig(4)
	idx1, err := NewHNSWStore(cfg)
	require.NoError(t, err)

	ids := []string{"a", "b"}
	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}
	require.NoError(t, idx1.Add(context.Background(), ids, vectors))

	require.NoError(t, idx1.Save(indexPath))
	require.NoError(t, idx1.Close())

	idx2, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = idx2.Close() }()

	require.NoError(t, idx2.Load(indexPath))

	assert.Equal(t, 2, idx2.Count())
	assert.True(t, idx2.Contains("a"))

	results, err := idx2.Search(context.Background(), []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
}

func TestHNSWStore_BuildDeterministic_SortsByIDBeforeInsertion(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	vectors := map[string][]float32{
		"zeta":  {0, 0, 1, 0},
		"alpha": {1, 0, 0, 0},
		"mu":    {0, 1, 0, 0},
	}
	require.NoError(t, idx.BuildDeterministic(context.Background(), vectors))

	assert.Equal(t, 3, idx.Count())
	assert.Equal(t, []string{"alpha", "mu", "zeta"}, idx.idMapping)
}

func TestHNSWStore_BatchSearch(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ids := []string{"a", "b", "c"}
	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}
	require.NoError(t, idx.Add(context.Background(), ids, vectors))

	results1, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	results2, err := idx.Search(context.Background(), []float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)

	assert.Equal(t, "a", results1[0].ID)
	assert.Equal(t, "b", results2[0].ID)
}

func TestHNSWStore_EmptySearch(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	results, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWStore_DimensionMismatch(t *testing.T) {
	cfg := DefaultVectorStoreConfig(768)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	err = idx.Add(context.Background(), []string{"test"}, [][]float32{make([]float32, 256)})
	require.Error(t, err)
	var dimErr ErrDimensionMismatch
	assert.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 768, dimErr.Expected)
	assert.Equal(t, 256, dimErr.Got)
}

func TestHNSWStore_AddEmpty(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []string{}, [][]float32{}))
	assert.Equal(t, 0, idx.Count())
}

func TestHNSWStore_DeleteNonExistent(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Delete(context.Background(), []string{"nonexistent"}))
}

func TestHNSWStore_CloseIdempotent(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)

	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())
}

func TestHNSWStore_SearchAfterClose(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = idx.Search(context.Background(), []float32{1, 0, 0, 0}, 10)
	require.Error(t, err)
}

func TestHNSWStore_AddAfterClose(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	err = idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}})
	require.Error(t, err)
}

func TestHNSWStore_SearchDimensionMismatch(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))

	_, err = idx.Search(context.Background(), []float32{1, 0}, 10)
	require.Error(t, err)
	var dimErr ErrDimensionMismatch
	assert.ErrorAs(t, err, &dimErr)
}

func TestHNSWStore_ContainsAfterDelete(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	assert.True(t, idx.Contains("a"))

	require.NoError(t, idx.Delete(context.Background(), []string{"a"}))
	assert.False(t, idx.Contains("a"))
}

func TestHNSWStore_MismatchedIDsAndVectors(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	err = idx.Add(context.Background(), []string{"a", "b"}, [][]float32{{1, 0, 0, 0}})
	require.Error(t, err)
}

func TestHNSWStore_Stats_Empty(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	stats := idx.Stats()
	assert.Equal(t, 0, stats.ValidIDs)
	assert.Equal(t, 0, stats.GraphNodes)
	assert.Equal(t, 0, stats.Orphans)
}

func TestHNSWStore_Stats_AfterDelete(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ids := []string{"a", "b", "c"}
	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}
	require.NoError(t, idx.Add(context.Background(), ids, vectors))

	require.NoError(t, idx.Delete(context.Background(), []string{"a"}))

	stats := idx.Stats()
	assert.Equal(t, 2, stats.ValidIDs)
	assert.Equal(t, 3, stats.GraphNodes)
	assert.Equal(t, 1, stats.Orphans)
}

func TestHNSWStore_Stats_AfterUpdate(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, idx.Add(context.Background(), []string{"a"}, [][]float32{{0, 1, 0, 0}}))

	stats := idx.Stats()
	assert.Equal(t, 1, stats.ValidIDs)
	assert.Equal(t, 2, stats.GraphNodes)
	assert.Equal(t, 1, stats.Orphans)
}

func TestHNSWStore_Stats_AfterClose(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	stats := idx.Stats()
	assert.Equal(t, 0, stats.ValidIDs)
	assert.Equal(t, 0, stats.GraphNodes)
	assert.Equal(t, 0, stats.Orphans)
}

func normalizeVector(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	magnitude := float32(math.Sqrt(sumSquares))
	for i := range v {
		v[i] /= magnitude
	}
}

func BenchmarkHNSWStore_Add1K(b *testing.B) {
	cfg := DefaultVectorStoreConfig(768)
	vectors := generateBenchVectors(1000, 768)
	ids := generateBenchIDs(1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx, _ := NewHNSWStore(cfg)
		_ = idx.Add(context.Background(), ids, vectors)
		_ = idx.Close()
	}
}

func BenchmarkHNSWStore_Search10K(b *testing.B) {
	cfg := DefaultVectorStoreConfig(768)
	idx, _ := NewHNSWStore(cfg)
	vectors := generateBenchVectors(10000, 768)
	ids := generateBenchIDs(10000)
	_ = idx.Add(context.Background(), ids, vectors)

	query := vectors[0]

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(context.Background(), query, 10)
	}
	_ = idx.Close()
}

func generateBenchVectors(count, dim int) [][]float32 {
	vectors := make([][]float32, count)
	for i := 0; i < count; i++ {
		v := make([]float32, dim)
		for j := 0; j < dim; j++ {
			v[j] = float32(i+j) / float32(dim)
		}
		normalizeVector(v)
		vectors[i] = v
	}
	return vectors
}

func generateBenchIDs(count int) []string {
	ids := make([]string, count)
	for i := 0; i < count; i++ {
		ids[i] = fmt.Sprintf("id_%d", i)
	}
	return ids
}

func TestHNSWStore_ConcurrentAddAndSearch(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	initialIDs := []string{"a", "b"}
	initialVectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}
	require.NoError(t, idx.Add(context.Background(), initialIDs, initialVectors))

	const goroutines = 10
	const opsPerGoroutine = 50
	done := make(chan bool, goroutines*2)

	for i := 0; i < goroutines; i++ {
		go func() {
			for j := 0; j < opsPerGoroutine; j++ {
				_, _ = idx.Search(context.Background(), []float32{1, 0, 0, 0}, 2)
			}
			done <- true
		}()
	}

	for i := 0; i < goroutines; i++ {
		i := i
		go func() {
			for j := 0; j < opsPerGoroutine; j++ {
				id := fmt.Sprintf("concurrent_%d_%d", i, j)
				vec := []float32{float32(i), float32(j), 0, 0}
				normalizeVector(vec)
				_ = idx.Add(context.Background(), []string{id}, [][]float32{vec})
			}
			done <- true
		}()
	}

	for i := 0; i < goroutines*2; i++ {
		<-done
	}

	assert.True(t, idx.Count() > 2, "should have more than initial 2 vectors")
}

func TestHNSWStore_ConcurrentDeleteAndSearch(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ids := make([]string, 100)
	vectors := make([][]float32, 100)
	for i := 0; i < 100; i++ {
		ids[i] = fmt.Sprintf("vec_%d", i)
		vectors[i] = []float32{float32(i), float32(i + 1), float32(i + 2), float32(i + 3)}
		normalizeVector(vectors[i])
	}
	require.NoError(t, idx.Add(context.Background(), ids, vectors))

	const goroutines = 5
	done := make(chan bool, goroutines*2)

	for i := 0; i < goroutines; i++ {
		go func() {
			for j := 0; j < 50; j++ {
				_, _ = idx.Search(context.Background(), []float32{1, 2, 3, 4}, 10)
			}
			done <- true
		}()
	}

	for i := 0; i < goroutines; i++ {
		i := i
		go func() {
			start := i * 10
			end := start + 10
			for j := start; j < end; j++ {
				id := fmt.Sprintf("vec_%d", j)
				_ = idx.Delete(context.Background(), []string{id})
			}
			done <- true
		}()
	}

	for i := 0; i < goroutines*2; i++ {
		<-done
	}

	assert.True(t, idx.Count() < 100, "some vectors should be deleted")
}

func TestHNSWStore_LazyDeletionOrphanCount(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))

	for i := 0; i < 5; i++ {
		vec := []float32{0.9, 0.1 * float32(i+1), 0, 0}
		require.NoError(t, idx.Add(context.Background(), []string{"a"}, [][]float32{vec}))
	}

	assert.Equal(t, 1, idx.Count(), "logical count should be 1")

	stats := idx.Stats()
	assert.True(t, stats.Orphans >= 5, "should have orphans from lazy deletion: got %d", stats.Orphans)

	results, err := idx.Search(context.Background(), []float32{0.9, 0.5, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestHNSWStore_PersistenceWithOrphans(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "vectors_orphans")

	cfg := DefaultVectorStoreConfig(4)
	idx1, err := NewHNSWStore(cfg)
	require.NoError(t, err)

	require.NoError(t, idx1.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, idx1.Add(context.Background(), []string{"a"}, [][]float32{{0, 1, 0, 0}}))
	require.NoError(t, idx1.Add(context.Background(), []string{"b"}, [][]float32{{0, 0, 1, 0}}))

	require.NoError(t, idx1.Save(indexPath))
	require.NoError(t, idx1.Close())

	idx2, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = idx2.Close() }()

	require.NoError(t, idx2.Load(indexPath))

	assert.Equal(t, 2, idx2.Count(), "should have 2 logical vectors")

	results, err := idx2.Search(context.Background(), []float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestNormalizeVectorInPlace_NormalVector(t *testing.T) {
	v := []float32{3, 4, 0, 0}
	normalizeVectorInPlace(v)

	var length float32
	for _, val := range v {
		length += val * val
	}
	length = float32(math.Sqrt(float64(length)))
	assert.InDelta(t, 1.0, float64(length), 0.0001)
	assert.InDelta(t, 0.6, float64(v[0]), 0.0001)
	assert.InDelta(t, 0.8, float64(v[1]), 0.0001)
}

func TestNormalizeVectorInPlace_ZeroVector(t *testing.T) {
	v := []float32{0, 0, 0, 0}
	normalizeVectorInPlace(v)

	for _, val := range v {
		assert.False(t, math.IsNaN(float64(val)))
		assert.Equal(t, float32(0), val)
	}
}

func TestNormalizeVectorInPlace_VerySmallVector(t *testing.T) {
	v := []float32{1e-10, 1e-10, 1e-10, 1e-10}
	normalizeVectorInPlace(v)

	for _, val := range v {
		assert.False(t, math.IsNaN(float64(val)))
		assert.False(t, math.IsInf(float64(val), 0))
	}
}

func TestHNSWStore_AllIDs_WithVectors(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ids := []string{"v1", "v2", "v3"}
	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}
	require.NoError(t, idx.Add(context.Background(), ids, vectors))

	allIDs := idx.AllIDs()
	assert.Len(t, allIDs, 3)

	idSet := make(map[string]bool)
	for _, id := range allIDs {
		idSet[id] = true
	}
	assert.True(t, idSet["v1"])
	assert.True(t, idSet["v2"])
	assert.True(t, idSet["v3"])
}

func TestHNSWStore_AllIDs_AfterDelete(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ids := []string{"v1", "v2"}
	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}
	require.NoError(t, idx.Add(context.Background(), ids, vectors))
	require.NoError(t, idx.Delete(context.Background(), []string{"v1"}))

	allIDs := idx.AllIDs()
	assert.Len(t, allIDs, 1)
	assert.Equal(t, "v2", allIDs[0])
}

func TestHNSWStore_AllIDs_ClosedStore(t *testing.T) {
	cfg := DefaultVectorStoreConfig(4)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	assert.Nil(t, idx.AllIDs())
}

func TestReadHNSWStoreDimensions_NonexistentFile(t *testing.T) {
	dim, err := ReadHNSWStoreDimensions("/nonexistent/path/vectors")
	require.NoError(t, err)
	assert.Equal(t, 0, dim)
}

func TestReadHNSWStoreDimensions_AfterSave(t *testing.T) {
	tmpDir := t.TempDir()
	vectorPath := filepath.Join(tmpDir, "vectors")

	cfg := DefaultVectorStoreConfig(768)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)

	vectors := [][]float32{make([]float32, 768)}
	for i := range vectors[0] {
		vectors[0][i] = float32(i) / 768.0
	}
	require.NoError(t, idx.Add(context.Background(), []string{"test-id"}, vectors))

	require.NoError(t, idx.Save(vectorPath))
	require.NoError(t, idx.Close())

	dim, err := ReadHNSWStoreDimensions(vectorPath)
	require.NoError(t, err)
	assert.Equal(t, 768, dim)
}

func TestDistanceToScore_Cosine(t *testing.T) {
	tests := []struct {
		distance float32
		expected float32
	}{
		{0.0, 1.0},
		{1.0, 0.5},
		{2.0, 0.0},
	}
	for _, tc := range tests {
		result := distanceToScore(tc.distance, "cos")
		assert.InDelta(t, tc.expected, result, 0.001, "cosine distance %f", tc.distance)
	}
}

func TestDistanceToScore_L2(t *testing.T) {
	tests := []struct {
		distance float32
		expected float32
	}{
		{0.0, 1.0},
		{1.0, 0.5},
		{3.0, 0.25},
	}
	for _, tc := range tests {
		result := distanceToScore(tc.distance, "l2")
		assert.InDelta(t, tc.expected, result, 0.001, "L2 distance %f", tc.distance)
	}
}

func TestHNSWStore_Save_ClosedStore(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "closed")

	cfg := DefaultVectorStoreConfig(64)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)

	require.NoError(t, idx.Add(context.Background(), []string{"v1"}, [][]float32{make([]float32, 64)}))
	require.NoError(t, idx.Close())

	err = idx.Save(indexPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestHNSWStore_Save_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "nested", "deep", "index")

	cfg := DefaultVectorStoreConfig(64)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Add(context.Background(), []string{"v1"}, [][]float32{make([]float32, 64)}))

	require.NoError(t, idx.Save(indexPath))

	_, err = os.Stat(indexPath + ".hnsw.graph")
	assert.NoError(t, err)
	_, err = os.Stat(indexPath + ".hnsw.data")
	assert.NoError(t, err)
	_, err = os.Stat(indexPath + ".id_mapping.json")
	assert.NoError(t, err)
}

func TestHNSWStore_Load_ClosedStore(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "test")

	cfg := DefaultVectorStoreConfig(64)
	idx1, err := NewHNSWStore(cfg)
	require.NoError(t, err)

	require.NoError(t, idx1.Add(context.Background(), []string{"v1"}, [][]float32{make([]float32, 64)}))
	require.NoError(t, idx1.Save(indexPath))
	require.NoError(t, idx1.Close())

	idx2, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	require.NoError(t, idx2.Close())

	err = idx2.Load(indexPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestHNSWStore_Load_NonexistentFile(t *testing.T) {
	cfg := DefaultVectorStoreConfig(64)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer idx.Close()

	err = idx.Load("/nonexistent/path/index")
	assert.Error(t, err)
}

func TestHNSWStore_Load_CorruptedData(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "test")

	cfg := DefaultVectorStoreConfig(64)
	idx1, err := NewHNSWStore(cfg)
	require.NoError(t, err)

	require.NoError(t, idx1.Add(context.Background(), []string{"v1"}, [][]float32{make([]float32, 64)}))
	require.NoError(t, idx1.Save(indexPath))
	require.NoError(t, idx1.Close())

	require.NoError(t, os.WriteFile(indexPath+".hnsw.data", []byte("not json"), 0644))

	idx2, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer idx2.Close()

	err = idx2.Load(indexPath)
	assert.Error(t, err)
}

func TestHNSWStore_Contains_ClosedStore(t *testing.T) {
	cfg := DefaultVectorStoreConfig(64)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)

	require.NoError(t, idx.Add(context.Background(), []string{"v1"}, [][]float32{make([]float32, 64)}))
	require.NoError(t, idx.Close())

	assert.False(t, idx.Contains("v1"))
}

func TestHNSWStore_Count_ClosedStore(t *testing.T) {
	cfg := DefaultVectorStoreConfig(64)
	idx, err := NewHNSWStore(cfg)
	require.NoError(t, err)

	require.NoError(t, idx.Add(context.Background(), []string{"v1"}, [][]float32{make([]float32, 64)}))
	require.NoError(t, idx.Close())

	assert.Equal(t, 0, idx.Count())
}
