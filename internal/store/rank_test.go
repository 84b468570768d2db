package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreFileMatch_SourceDirBoosted(t *testing.T) {
	w := DefaultRankWeights()

	srcScore := w.scoreFileMatch("src/engine/parser.go", -2.0, 0)
	otherScore := w.scoreFileMatch("scripts/parser.go", -2.0, 0)

	assert.Greater(t, srcScore, otherScore)
}

func TestScoreFileMatch_TestFilesDeboosted(t *testing.T) {
	w := DefaultRankWeights()

	normal := w.scoreFileMatch("internal/store/query.go", -2.0, 0)
	test := w.scoreFileMatch("internal/store/query_test.go", -2.0, 0)

	assert.Less(t, test, normal)
}

func TestScoreFileMatch_GeneratedFilesDeboosted(t *testing.T) {
	w := DefaultRankWeights()

	normal := w.scoreFileMatch("internal/api/client.go", -2.0, 0)
	vendored := w.scoreFileMatch("vendor/github.com/foo/bar.go", -2.0, 0)

	assert.Less(t, vendored, normal)
}

func TestScoreFileMatch_SymbolRichBoostIsCapped(t *testing.T) {
	w := DefaultRankWeights()

	// Boost multiplier 1 + 0.05*count is capped at count itself so a file
	// with very few symbols never gets an outsized multiplier.
	low := w.scoreFileMatch("src/a.go", -1.0, 1)
	high := w.scoreFileMatch("src/a.go", -1.0, 1000)

	assert.Greater(t, high, low)
}

func TestScoreFileMatch_NegatesBM25(t *testing.T) {
	w := DefaultRankWeights()

	// bm25() is negative and lower-is-better; the score must flip sign so
	// higher-is-better holds for callers.
	better := w.scoreFileMatch("docs/readme.go", -5.0, 0)
	worse := w.scoreFileMatch("docs/readme.go", -1.0, 0)

	assert.Greater(t, better, worse)
}
