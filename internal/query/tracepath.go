package query

import (
	"context"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/hbollon/go-edlib"

	"github.com/anortham/julie-go/internal/store"
)

// Direction selects which edges the tracer follows from the start symbol.
type Direction string

const (
	DirectionUpstream   Direction = "upstream"   // callers
	DirectionDownstream Direction = "downstream" // callees
	DirectionBoth       Direction = "both"
)

// MatchType tags how a node was reached from its parent.
type MatchType string

const (
	MatchDirect        MatchType = "direct"
	MatchNamingVariant MatchType = "naming_variant"
	MatchSemantic      MatchType = "semantic"
)

const (
	maxDepthHardCap      = 10
	perLevelCap          = 50
	totalNodeCap         = 500
	crossLanguageCapSlop = 1 // cross-language recursion stops one level shallower than direct
)

// genericNames is the static denylist spec.md §4.6 calls out by example;
// go-edlib similarity catches near-miss spellings beyond this fixed list.
var genericNames = map[string]struct{}{
	"clone": {}, "len": {}, "size": {}, "get": {}, "set": {}, "new": {},
	"init": {}, "close": {}, "open": {}, "run": {}, "main": {}, "test": {},
	"to_string": {}, "tostring": {}, "to_str": {}, "tostr": {},
	"equals": {}, "hash": {}, "copy": {}, "free": {}, "dispose": {},
	"string": {}, "format": {}, "parse": {}, "value": {}, "valueof": {},
}

const genericNameSimilarityThreshold = 0.85

// isGenericName reports whether name is a combinatorial-explosion risk:
// either an exact hit in the static denylist, or close enough (Jaro-Winkler)
// to one that it is almost certainly the same generic concept spelled
// differently across languages.
func isGenericName(name string) bool {
	lower := strings.ToLower(name)
	if _, ok := genericNames[lower]; ok {
		return true
	}
	for denied := range genericNames {
		score, err := edlib.StringsSimilarity(lower, denied, edlib.JaroWinkler)
		if err == nil && float64(score) >= genericNameSimilarityThreshold {
			return true
		}
	}
	return false
}

// SemanticNeighborFinder is the optional bridge into the vector index (C4).
// When nil, the tracer skips semantic bridging entirely; spec.md §4.6 makes
// this an optional enhancement, not a dependency of the core trace.
type SemanticNeighborFinder interface {
	NearestSymbols(ctx context.Context, symbolID string, k int) ([]string, error)
}

// TraceNode is a single entry in the traced call tree.
type TraceNode struct {
	Symbol           *store.Symbol
	Depth            int
	MatchType        MatchType
	RelationshipKind store.RelationshipKind
}

// TraceResult is the tracer's output, grouped by depth for rendering.
type TraceResult struct {
	Root          *store.Symbol
	NodesByDepth  map[int][]*TraceNode
	TotalNodes    int
	Truncated     bool
	TruncateNote  string
}

type visitKey struct {
	file      string
	startLine int
	name      string
}

func (k visitKey) hash() uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(k.file)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(k.name)
	return h.Sum64()*1000003 + uint64(k.startLine)
}

// Tracer implements the cross-language call-path tracer of spec.md §4.6.
type Tracer struct {
	store    *store.Store
	semantic SemanticNeighborFinder
}

// NewTracer constructs a Tracer. semantic may be nil to disable bridging.
func NewTracer(s *store.Store, semantic SemanticNeighborFinder) *Tracer {
	return &Tracer{store: s, semantic: semantic}
}

// Trace computes the reachable-symbol tree from startSymbolID in direction,
// bounded at maxDepth (clamped to maxDepthHardCap).
func (t *Tracer) Trace(ctx context.Context, startSymbolID string, direction Direction, maxDepth int) (*TraceResult, error) {
	if maxDepth <= 0 || maxDepth > maxDepthHardCap {
		maxDepth = maxDepthHardCap
	}

	root, err := t.store.GetSymbolByID(ctx, startSymbolID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return &TraceResult{NodesByDepth: map[int][]*TraceNode{}}, nil
	}

	result := &TraceResult{Root: root, NodesByDepth: map[int][]*TraceNode{}}
	visited := map[uint64]struct{}{
		visitKey{root.FilePath, root.Span.StartLine, root.Name}.hash(): {},
	}
	result.TotalNodes = 1

	frontier := []*TraceNode{{Symbol: root, Depth: 0, MatchType: MatchDirect}}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []*TraceNode
		levelCount := 0

		for _, node := range frontier {
			if result.TotalNodes >= totalNodeCap {
				result.Truncated = true
				result.TruncateNote = "total node cap reached"
				break
			}

			children, err := t.expand(ctx, node, direction, depth)
			if err != nil {
				return nil, err
			}

			for _, child := range children {
				if levelCount >= perLevelCap {
					result.Truncated = true
					result.TruncateNote = "per-level cap reached"
					break
				}
				key := visitKey{child.Symbol.FilePath, child.Symbol.Span.StartLine, child.Symbol.Name}.hash()
				if _, seen := visited[key]; seen {
					continue
				}
				visited[key] = struct{}{}
				child.Depth = depth
				next = append(next, child)
				levelCount++
				result.TotalNodes++
			}
			if result.TotalNodes >= totalNodeCap {
				break
			}
		}

		if len(next) > 0 {
			result.NodesByDepth[depth] = next
		}
		frontier = next
	}

	return result, nil
}

// expand computes node's direct, naming-variant and (optionally) semantic
// neighbours for the requested direction.
func (t *Tracer) expand(ctx context.Context, node *TraceNode, direction Direction, depth int) ([]*TraceNode, error) {
	var out []*TraceNode

	direct, err := t.directNeighbors(ctx, node.Symbol, direction)
	if err != nil {
		return nil, err
	}
	out = append(out, direct...)

	// Cross-language recursion stops one level shallower than direct edges.
	if depth <= maxDepthHardCap-crossLanguageCapSlop && !isGenericName(node.Symbol.Name) {
		variants, err := t.namingVariantNeighbors(ctx, node.Symbol)
		if err != nil {
			return nil, err
		}
		out = append(out, variants...)

		if t.semantic != nil {
			semantic, err := t.semanticNeighbors(ctx, node.Symbol, direction)
			if err != nil {
				return nil, err
			}
			out = append(out, semantic...)
		}
	}

	return out, nil
}

// identifierResolutionLimit bounds how many same-named symbols an
// unresolved call identifier is allowed to resolve against; a name with
// more candidates than this is too ambiguous to trust (spec §4.6).
const identifierResolutionLimit = 3

func (t *Tracer) directNeighbors(ctx context.Context, sym *store.Symbol, direction Direction) ([]*TraceNode, error) {
	var rels []*store.Relationship

	if direction == DirectionUpstream || direction == DirectionBoth {
		r, err := t.store.GetRelationshipsToSymbol(ctx, sym.ID)
		if err != nil {
			return nil, err
		}
		rels = append(rels, r...)
	}
	if direction == DirectionDownstream || direction == DirectionBoth {
		r, err := t.store.GetRelationshipsForSymbol(ctx, sym.ID)
		if err != nil {
			return nil, err
		}
		rels = append(rels, r...)
	}

	var out []*TraceNode
	seen := make(map[string]struct{})
	for _, r := range rels {
		if r.Kind != store.RelationshipCalls && r.Kind != store.RelationshipReferences {
			continue
		}
		neighborID := r.ToSymbolID
		if r.FromSymbolID != sym.ID {
			neighborID = r.FromSymbolID
		}
		neighbor, err := t.store.GetSymbolByID(ctx, neighborID)
		if err != nil {
			return nil, err
		}
		if neighbor == nil {
			continue
		}
		seen[neighbor.ID] = struct{}{}
		out = append(out, &TraceNode{Symbol: neighbor, MatchType: MatchDirect, RelationshipKind: r.Kind})
	}

	identNodes, err := t.identifierNeighbors(ctx, sym, direction, seen)
	if err != nil {
		return nil, err
	}
	out = append(out, identNodes...)

	return out, nil
}

// identifierNeighbors supplements directNeighbors with call sites the
// relationship extractor couldn't resolve at index time (dynamic
// dispatch, calls across files processed out of order, etc.):
// go_extractor.go's recordCall still records these as Identifier rows
// with an empty TargetSymbolID rather than dropping them, per spec §4.6.
// Downstream, it resolves sym's own unresolved call sites by name against
// the whole store; upstream, it finds unresolved call sites elsewhere
// named after sym and treats their containing symbol as a candidate
// caller. Results already present in seen (from relationship edges) are
// skipped.
func (t *Tracer) identifierNeighbors(ctx context.Context, sym *store.Symbol, direction Direction, seen map[string]struct{}) ([]*TraceNode, error) {
	var out []*TraceNode

	if direction == DirectionDownstream || direction == DirectionBoth {
		unresolved, err := t.store.GetUnresolvedCallsFrom(ctx, sym.ID)
		if err != nil {
			return nil, err
		}
		for _, ident := range unresolved {
			candidates, err := t.store.FindSymbolsByName(ctx, ident.Name, identifierResolutionLimit)
			if err != nil {
				return nil, err
			}
			for _, candidate := range candidates {
				if candidate.ID == sym.ID {
					continue
				}
				if _, dup := seen[candidate.ID]; dup {
					continue
				}
				seen[candidate.ID] = struct{}{}
				out = append(out, &TraceNode{Symbol: candidate, MatchType: MatchDirect, RelationshipKind: store.RelationshipCalls})
			}
		}
	}

	if direction == DirectionUpstream || direction == DirectionBoth {
		callers, err := t.store.FindUnresolvedCallsByName(ctx, sym.Name)
		if err != nil {
			return nil, err
		}
		for _, ident := range callers {
			if ident.ContainingSymbolID == "" || ident.ContainingSymbolID == sym.ID {
				continue
			}
			if _, dup := seen[ident.ContainingSymbolID]; dup {
				continue
			}
			caller, err := t.store.GetSymbolByID(ctx, ident.ContainingSymbolID)
			if err != nil {
				return nil, err
			}
			if caller == nil {
				continue
			}
			seen[caller.ID] = struct{}{}
			out = append(out, &TraceNode{Symbol: caller, MatchType: MatchDirect, RelationshipKind: store.RelationshipCalls})
		}
	}

	return out, nil
}

// namingVariantNeighbors generates cross-convention spellings of sym's name
// and looks each up in the symbol table; a hit in a different language is a
// cross-language neighbour (spec.md §4.6 item 2).
func (t *Tracer) namingVariantNeighbors(ctx context.Context, sym *store.Symbol) ([]*TraceNode, error) {
	var out []*TraceNode
	for _, variant := range GenerateNamingVariants(sym.Name) {
		if strings.EqualFold(variant, sym.Name) {
			continue
		}
		matches, err := t.store.FindSymbolsByName(ctx, variant, perLevelCap)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if m.Language == sym.Language {
				continue
			}
			out = append(out, &TraceNode{Symbol: m, MatchType: MatchNamingVariant})
		}
	}
	return out, nil
}

// semanticNeighbors consults the vector index for nearest symbols of a
// different language, but only keeps a candidate when a direct relationship
// in the expected direction actually exists — semantic similarity alone
// never invents an edge (spec.md §4.6).
func (t *Tracer) semanticNeighbors(ctx context.Context, sym *store.Symbol, direction Direction) ([]*TraceNode, error) {
	candidates, err := t.semantic.NearestSymbols(ctx, sym.ID, perLevelCap)
	if err != nil {
		return nil, err
	}

	var out []*TraceNode
	for _, candidateID := range candidates {
		candidate, err := t.store.GetSymbolByID(ctx, candidateID)
		if err != nil || candidate == nil || candidate.Language == sym.Language {
			continue
		}
		confirmed, kind, err := t.hasDirectEdge(ctx, sym.ID, candidateID, direction)
		if err != nil {
			return nil, err
		}
		if confirmed {
			out = append(out, &TraceNode{Symbol: candidate, MatchType: MatchSemantic, RelationshipKind: kind})
		}
	}
	return out, nil
}

func (t *Tracer) hasDirectEdge(ctx context.Context, fromID, toID string, direction Direction) (bool, store.RelationshipKind, error) {
	if direction == DirectionDownstream || direction == DirectionBoth {
		rels, err := t.store.GetRelationshipsForSymbol(ctx, fromID)
		if err != nil {
			return false, "", err
		}
		for _, r := range rels {
			if r.ToSymbolID == toID {
				return true, r.Kind, nil
			}
		}
	}
	if direction == DirectionUpstream || direction == DirectionBoth {
		rels, err := t.store.GetRelationshipsToSymbol(ctx, fromID)
		if err != nil {
			return false, "", err
		}
		for _, r := range rels {
			if r.FromSymbolID == toID {
				return true, r.Kind, nil
			}
		}
	}
	return false, "", nil
}
