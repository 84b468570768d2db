// Package extractor defines the collaborator contract spec.md §6 places
// outside the core: given a file's relative path, bytes and workspace
// root, produce the symbols/identifiers/relationships the store's
// incremental update primitive persists. The core only depends on this
// interface; concrete per-language parsing lives in subpackages (e.g.
// internal/extractor/treesitter).
package extractor

import (
	"context"

	"github.com/anortham/julie-go/internal/store"
)

// ExtractResult is the extractor collaborator's output. Type declarations
// (structs, interfaces, classes, enums) are represented as Symbols with
// the matching Kind rather than a separate slice — the store schema
// (spec.md §6) has no sibling "types" table, so a type is just a symbol
// whose Kind happens to be KindStruct/KindInterface/KindClass/KindEnum.
type ExtractResult struct {
	Symbols       []*store.Symbol
	Identifiers   []*store.Identifier
	Relationships []*store.Relationship
}

// Extractor is the per-language collaborator contract. Extraction must be
// deterministic given identical bytes: the same (relPath, content) must
// always yield byte-identical symbol IDs and ordering, since the watcher
// relies on this for idempotent re-indexing (property P3).
type Extractor interface {
	// Extract parses content (the file at relPath, rooted at
	// workspaceRoot) and returns every symbol, identifier and
	// relationship it declares or references. Identifiers referring to
	// symbols must name symbols present in the same ExtractResult or
	// already in the store — the core assumes this consistency and does
	// not itself validate it.
	Extract(ctx context.Context, relPath string, content []byte, workspaceRoot string) (*ExtractResult, error)
	// Language is the language tag this extractor produces symbols for
	// (e.g. "go"), used to route by file extension.
	Language() string
	// Extensions lists the file extensions (with leading dot) this
	// extractor claims, e.g. []string{".go"}.
	Extensions() []string
}

// Registry dispatches a file to the Extractor registered for its
// extension, mirroring the teacher's chunk.LanguageRegistry extension
// lookup but over the Extractor contract instead of tree-sitter configs
// directly.
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry builds an empty registry; callers Register each supported
// language.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Extractor)}
}

// Register adds ext to the registry, keyed by every extension it claims.
func (r *Registry) Register(ext Extractor) {
	for _, e := range ext.Extensions() {
		r.byExt[e] = ext
	}
}

// For returns the extractor registered for ext (including the leading
// dot), or false if no extractor claims it.
func (r *Registry) For(ext string) (Extractor, bool) {
	e, ok := r.byExt[ext]
	return e, ok
}
