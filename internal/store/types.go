// Package store is the persistence layer for the symbol graph: files,
// symbols, identifiers, relationships and their embeddings, backed by a
// single embedded SQLite database with FTS5 full-text indexes.
package store

import (
	"fmt"
	"time"
)

// SymbolKind enumerates the kinds of declarations the extractor can produce.
type SymbolKind string

const (
	KindFunction    SymbolKind = "function"
	KindMethod      SymbolKind = "method"
	KindClass       SymbolKind = "class"
	KindStruct      SymbolKind = "struct"
	KindTrait       SymbolKind = "trait"
	KindInterface   SymbolKind = "interface"
	KindEnum        SymbolKind = "enum"
	KindEnumMember  SymbolKind = "enum_member"
	KindVariable    SymbolKind = "variable"
	KindConstant    SymbolKind = "constant"
	KindField       SymbolKind = "field"
	KindProperty    SymbolKind = "property"
	KindModule      SymbolKind = "module"
	KindNamespace   SymbolKind = "namespace"
	KindType        SymbolKind = "type"
	KindImport      SymbolKind = "import"
	KindExport      SymbolKind = "export"
	KindConstructor SymbolKind = "constructor"
	KindDestructor  SymbolKind = "destructor"
	KindOperator    SymbolKind = "operator"
	KindEvent       SymbolKind = "event"
	KindDelegate    SymbolKind = "delegate"
	KindUnion       SymbolKind = "union"
)

// Visibility is a symbol's access level.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityPrivate   Visibility = "private"
	VisibilityProtected Visibility = "protected"
)

// ContentType distinguishes ordinary code symbols from documentation symbols
// synthesised from markdown (headings, doc blocks).
type ContentType string

const (
	ContentTypeCode          ContentType = ""
	ContentTypeDocumentation ContentType = "documentation"
)

// IdentifierKind enumerates usage-site kinds recorded by the extractor.
type IdentifierKind string

const (
	IdentifierCall         IdentifierKind = "call"
	IdentifierVariableRef  IdentifierKind = "variable_ref"
	IdentifierTypeUsage    IdentifierKind = "type_usage"
	IdentifierMemberAccess IdentifierKind = "member_access"
	IdentifierImport       IdentifierKind = "import"
)

// RelationshipKind enumerates the directed edges between two symbols.
type RelationshipKind string

const (
	RelationshipCalls         RelationshipKind = "calls"
	RelationshipReferences    RelationshipKind = "references"
	RelationshipExtends       RelationshipKind = "extends"
	RelationshipImplements    RelationshipKind = "implements"
	RelationshipImports       RelationshipKind = "imports"
	RelationshipUses          RelationshipKind = "uses"
	RelationshipReturnsType   RelationshipKind = "returns_type"
	RelationshipParameterType RelationshipKind = "parameter_type"
)

// File is a tracked source file, keyed by its workspace-relative path.
type File struct {
	Path        string // workspace-relative, forward-slash separated
	Language    string
	ContentHash string // blake3 hex digest
	Size        int64
	ModTime     time.Time
	LastIndexed time.Time
	Content     string // optional textual content, mirrored into files_fts
	SymbolCount int
}

// Span is a byte/line/column range within a file.
type Span struct {
	StartByte int
	EndByte   int
	StartLine int
	EndLine   int
	StartCol  int
	EndCol    int
}

// Symbol is a named declaration extracted from a file.
type Symbol struct {
	ID          string // deterministic, derived from (file path, name, span)
	Name        string
	Kind        SymbolKind
	Language    string
	FilePath    string
	Signature   string
	Span        Span
	DocComment  string
	Visibility  Visibility
	ParentID    string // empty if top-level
	SemanticGroup string
	Confidence  float64
	CodeContext string // snippet, +/-3 lines
	ContentType ContentType
}

// Identifier is a usage site of a name: a call, a variable reference, a
// type usage, a member access, or an import.
type Identifier struct {
	ID                 string
	Name                string
	Kind                IdentifierKind
	Language            string
	FilePath            string
	Span                Span
	ContainingSymbolID  string // FK Symbol, cascade delete
	TargetSymbolID      string // FK Symbol, nullable, set-null on delete
	Confidence          float64
	CodeContext         string
}

// Relationship is a directed edge between two symbols.
type Relationship struct {
	ID           string
	FromSymbolID string
	ToSymbolID   string
	Kind         RelationshipKind
	FilePath     string
	LineNumber   int
	Confidence   float64
	Metadata     string // JSON blob
}

// Embedding maps a (symbol, model) pair to a stored vector.
type Embedding struct {
	SymbolID   string
	ModelName  string
	VectorID   int64
	Dimensions int
	Vector     []float32
	CreatedAt  time.Time
}

// Workspace is a single registered root the store was opened against.
// julie enforces one workspace per database file; the table exists so the
// CLI's `workspace` commands have somewhere to read/record identity from.
type Workspace struct {
	ID        string
	Root      string
	CreatedAt time.Time
}

// ErrDimensionMismatch indicates an embedding vector does not match the
// dimensionality already recorded for its model.
type ErrDimensionMismatch struct {
	Model    string
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch for model %q: expected %d, got %d", e.Model, e.Expected, e.Got)
}

// CurrentSchemaVersion is the database schema version this build writes.
const CurrentSchemaVersion = 1

// Stats summarises the contents of a store for `julie stats`.
type Stats struct {
	FileCount         int
	SymbolCount       int
	IdentifierCount   int
	RelationshipCount int
	EmbeddingCount    int
	SkippedFKCount    int64
}
