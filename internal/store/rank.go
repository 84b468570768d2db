package store

import "strings"

// RankWeights tunes the multiplicative adjustments applied to file-content
// FTS ranking. spec.md §9 leaves the exact boost/deboost factors as an open
// question between "tunable" and "constant"; SPEC_FULL.md resolves it as
// tunable through this struct, defaulting to the values spec.md names. No
// config key sets the factors; callers pass DefaultRankWeights.
type RankWeights struct {
	SourceDirBoost     float64 // src/, lib/
	SymbolRichPerUnit  float64 // 1 + SymbolRichPerUnit * symbol_count, capped by symbol_count
	TestDeboost        float64
	GeneratedDeboost   float64
}

// DefaultRankWeights mirrors the values spec.md §4.2.5 states outright.
func DefaultRankWeights() RankWeights {
	return RankWeights{
		SourceDirBoost:    3.0,
		SymbolRichPerUnit: 0.05,
		TestDeboost:       0.01,
		GeneratedDeboost:  0.1,
	}
}

var testMarkers = []string{"test", "spec", "__tests__"}
var testSuffixMarkers = []string{".test.", ".spec."}
var generatedMarkers = []string{"node_modules", "vendor", "dist", "build", "target/debug", "target/release"}

// scoreFileMatch negates SQLite's bm25() value (which is negative, lower
// meaning a better match) and applies the boost/deboost multipliers so the
// final score is monotonically "higher is better".
func (w RankWeights) scoreFileMatch(path string, bm25 float64, symbolCount int) float64 {
	score := -bm25
	lower := strings.ToLower(path)

	if strings.Contains(lower, "src/") || strings.Contains(lower, "lib/") {
		score *= w.SourceDirBoost
	}

	boost := 1 + w.SymbolRichPerUnit*float64(symbolCount)
	if cap := float64(symbolCount); symbolCount > 0 && boost > cap {
		boost = cap
	}
	score *= boost

	for _, m := range testMarkers {
		if strings.Contains(lower, m) {
			score *= w.TestDeboost
			break
		}
	}
	for _, m := range testSuffixMarkers {
		if strings.Contains(lower, m) {
			score *= w.TestDeboost
			break
		}
	}
	if strings.Contains(lower, ".min.") {
		score *= w.GeneratedDeboost
	}
	for _, m := range generatedMarkers {
		if strings.Contains(lower, m) {
			score *= w.GeneratedDeboost
			break
		}
	}

	return score
}
