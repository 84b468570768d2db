package vectorindex

import "fmt"

// VectorStoreConfig configures an HNSWStore. Dimensions must match the
// embedding model wired into the index; Metric is "cos" (default) or "l2".
type VectorStoreConfig struct {
	Dimensions     int
	Metric         string
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultVectorStoreConfig returns the build parameters spec.md §4.4
// names explicitly: M=32, EfConstruction=400, cosine metric.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Metric:         "cos",
		M:              32,
		EfConstruction: 400,
		EfSearch:       50,
	}
}

// VectorResult is one k-NN hit. Score is derived from Distance between the
// query and the stored vector (1 - d/2 for "cos", 1/(1+d) for "l2"); Search
// returns hits in the graph's order and does not re-rank them.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

// ErrDimensionMismatch indicates a vector does not match the index's
// configured dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
