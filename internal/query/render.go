package query

import (
	"fmt"
	"strings"
)

// DefaultTokenBudget is the target size of a rendered trace, in estimated
// tokens (spec.md §4.6: "target 20000 tokens").
const DefaultTokenBudget = 20000

// detailLevel is how much context is rendered per node. Levels degrade in
// order as the budget is exceeded, rather than truncating the tree abruptly
// (supplemented from original_source's progressive_reduction.rs).
type detailLevel int

const (
	detailFull detailLevel = iota
	detailSignatureOnly
	detailNameOnly
)

// estimateTokens approximates token count the way the original's
// token_estimation.rs does for plain-text renders: roughly 4 bytes/token.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// RenderTrace renders result as an indented depth-grouped tree, degrading
// through decreasing detail levels as it approaches budget tokens, and
// falling back to a flat truncation notice only once detailNameOnly still
// doesn't fit.
func RenderTrace(result *TraceResult, budget int) string {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	if result.Root == nil {
		return "(symbol not found)\n"
	}

	for level := detailFull; level <= detailNameOnly; level++ {
		rendered := renderAtLevel(result, level)
		if estimateTokens(rendered) <= budget {
			return rendered
		}
	}

	// Even name-only rendering overflows: truncate by depth, outermost
	// levels first, appending an explicit notice of what was cut.
	var b strings.Builder
	b.WriteString(renderNode(result.Root, 0, detailNameOnly))
	for depth := 1; depth <= maxDepthHardCap; depth++ {
		nodes, ok := result.NodesByDepth[depth]
		if !ok {
			continue
		}
		candidate := b.String()
		for _, n := range nodes {
			candidate += renderNode(n, depth, detailNameOnly)
		}
		if estimateTokens(candidate) > budget {
			fmt.Fprintf(&b, "\n[truncated at depth %d: token budget %d exceeded]\n", depth, budget)
			break
		}
		b.Reset()
		b.WriteString(candidate)
	}
	return b.String()
}

func renderAtLevel(result *TraceResult, level detailLevel) string {
	var b strings.Builder
	b.WriteString(renderNode(result.Root, 0, level))
	for depth := 1; depth <= maxDepthHardCap; depth++ {
		for _, n := range result.NodesByDepth[depth] {
			b.WriteString(renderNode(n, depth, level))
		}
	}
	if result.Truncated {
		fmt.Fprintf(&b, "\n[trace truncated: %s]\n", result.TruncateNote)
	}
	return b.String()
}

func renderNode(n *TraceNode, depth int, level detailLevel) string {
	indent := strings.Repeat("  ", depth)
	switch level {
	case detailNameOnly:
		return fmt.Sprintf("%s%s\n", indent, n.Symbol.Name)
	case detailSignatureOnly:
		sig := n.Symbol.Signature
		if sig == "" {
			sig = n.Symbol.Name
		}
		return fmt.Sprintf("%s%s [%s]\n", indent, sig, matchLabel(n))
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "%s%s (%s:%d) [%s]\n", indent, n.Symbol.Signature, n.Symbol.FilePath, n.Symbol.Span.StartLine, matchLabel(n))
		if n.Symbol.DocComment != "" {
			fmt.Fprintf(&b, "%s  // %s\n", indent, n.Symbol.DocComment)
		}
		return b.String()
	}
}

func matchLabel(n *TraceNode) string {
	if n.RelationshipKind != "" {
		return string(n.MatchType) + ":" + string(n.RelationshipKind)
	}
	return string(n.MatchType)
}
