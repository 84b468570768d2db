// Package treesitter hosts per-language extractor.Extractor implementations
// built on github.com/smacker/go-tree-sitter.
package treesitter

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/anortham/julie-go/internal/extractor"
	"github.com/anortham/julie-go/internal/store"
)

// GoExtractor walks a Go source file's tree-sitter AST into symbols,
// identifiers and relationships. Call resolution is same-file only:
// a call to a name not declared in the same file is still recorded as an
// Identifier (with an empty TargetSymbolID and lower confidence) so the
// cross-file tracer can pick it up later.
type GoExtractor struct{}

// NewGoExtractor returns a ready-to-use Go extractor.
func NewGoExtractor() *GoExtractor {
	return &GoExtractor{}
}

func (g *GoExtractor) Language() string { return "go" }

func (g *GoExtractor) Extensions() []string { return []string{".go"} }

func (g *GoExtractor) Extract(ctx context.Context, relPath string, content []byte, workspaceRoot string) (*extractor.ExtractResult, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("treesitter: parse %s: %w", relPath, err)
	}
	defer tree.Close()

	w := &goWalker{
		relPath: relPath,
		src:     content,
		result:  &extractor.ExtractResult{},
		byName:  make(map[string]string),
		bySpan:  make(map[int]string),
	}

	root := tree.RootNode()
	w.collectDeclarations(root)
	w.walkBodies(root)
	return w.result, nil
}

type goWalker struct {
	relPath    string
	src        []byte
	result     *extractor.ExtractResult
	byName     map[string]string // declared name -> symbol ID, for same-file call resolution
	bySpan     map[int]string    // top-level decl start byte -> symbol ID, bridges the two passes
	linesCache []string
}

// collectDeclarations is pass 1: every top-level declaration becomes a
// symbol before any call site is resolved, so a function calling another
// function declared later in the file still resolves (property P3 needs
// this to be order-independent, not just byte-deterministic).
func (w *goWalker) collectDeclarations(root *sitter.Node) {
	for i := 0; i < int(root.ChildCount()); i++ {
		n := root.Child(i)
		switch n.Type() {
		case "function_declaration":
			w.declareFunction(n)
		case "method_declaration":
			w.declareMethod(n)
		case "type_declaration":
			w.extractTypeDeclaration(n)
		case "import_declaration":
			w.extractImportDeclaration(n)
		case "const_declaration":
			w.extractValueDeclaration(n, store.KindConstant, "const_spec")
		case "var_declaration":
			w.extractValueDeclaration(n, store.KindVariable, "var_spec")
		}
	}
}

// walkBodies is pass 2: revisit every function/method and walk its body
// for call expressions and nested closures, now that byName is complete.
func (w *goWalker) walkBodies(root *sitter.Node) {
	for i := 0; i < int(root.ChildCount()); i++ {
		n := root.Child(i)
		switch n.Type() {
		case "function_declaration", "method_declaration":
			id, ok := w.bySpan[int(n.StartByte())]
			if !ok {
				continue
			}
			if body := n.ChildByFieldName("body"); body != nil {
				w.walkCalls(body, id)
			}
		}
	}
}

func (w *goWalker) declareFunction(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := w.text(nameNode)
	id := deterministicID("sym", w.relPath, name, int(n.StartByte()), int(n.EndByte()))
	w.result.Symbols = append(w.result.Symbols, &store.Symbol{
		ID:          id,
		Name:        name,
		Kind:        store.KindFunction,
		Language:    "go",
		FilePath:    w.relPath,
		Signature:   w.signature(n),
		Span:        w.span(n),
		DocComment:  w.leadingComment(n),
		Visibility:  visibilityFromName(name),
		Confidence:  1,
		CodeContext: w.codeContext(n),
	})
	w.byName[name] = id
	w.bySpan[int(n.StartByte())] = id
}

func (w *goWalker) declareMethod(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	methodName := w.text(nameNode)
	receiver := w.receiverTypeName(n)
	qualified := methodName
	if receiver != "" {
		qualified = receiver + "." + methodName
	}
	id := deterministicID("sym", w.relPath, qualified, int(n.StartByte()), int(n.EndByte()))
	w.result.Symbols = append(w.result.Symbols, &store.Symbol{
		ID:          id,
		Name:        qualified,
		Kind:        store.KindMethod,
		Language:    "go",
		FilePath:    w.relPath,
		Signature:   w.signature(n),
		Span:        w.span(n),
		DocComment:  w.leadingComment(n),
		Visibility:  visibilityFromName(methodName),
		Confidence:  1,
		CodeContext: w.codeContext(n),
	})
	w.byName[qualified] = id
	// Also index by the bare method name so an unqualified same-package
	// call site (the common case) still resolves.
	if _, exists := w.byName[methodName]; !exists {
		w.byName[methodName] = id
	}
	w.bySpan[int(n.StartByte())] = id
}

func (w *goWalker) receiverTypeName(n *sitter.Node) string {
	recv := n.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	for i := 0; i < int(recv.ChildCount()); i++ {
		pd := recv.Child(i)
		if pd.Type() != "parameter_declaration" {
			continue
		}
		return w.baseTypeName(pd.ChildByFieldName("type"))
	}
	return ""
}

// baseTypeName unwraps pointer/generic/qualified type nodes down to the
// plain type name, the way a receiver `*Store[T]` still resolves to
// "Store".
func (w *goWalker) baseTypeName(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "pointer_type":
		if n.ChildCount() > 0 {
			return w.baseTypeName(n.Child(int(n.ChildCount()) - 1))
		}
		return ""
	case "generic_type":
		return w.baseTypeName(n.ChildByFieldName("type"))
	default:
		return w.text(n)
	}
}

func (w *goWalker) extractTypeDeclaration(n *sitter.Node) {
	doc := w.leadingComment(n)
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "type_spec" {
			w.extractTypeSpec(c, doc)
		}
	}
}

func (w *goWalker) extractTypeSpec(n *sitter.Node, doc string) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := w.text(nameNode)
	typeNode := n.ChildByFieldName("type")
	kind := store.KindType
	if typeNode != nil {
		switch typeNode.Type() {
		case "struct_type":
			kind = store.KindStruct
		case "interface_type":
			kind = store.KindInterface
		}
	}
	id := deterministicID("sym", w.relPath, name, int(n.StartByte()), int(n.EndByte()))
	w.result.Symbols = append(w.result.Symbols, &store.Symbol{
		ID:          id,
		Name:        name,
		Kind:        kind,
		Language:    "go",
		FilePath:    w.relPath,
		Signature:   w.text(n),
		Span:        w.span(n),
		DocComment:  doc,
		Visibility:  visibilityFromName(name),
		Confidence:  1,
		CodeContext: w.codeContext(n),
	})
	w.byName[name] = id

	if typeNode != nil && typeNode.Type() == "struct_type" {
		w.extractStructFields(typeNode, id)
	}
}

func (w *goWalker) extractStructFields(structType *sitter.Node, parentID string) {
	var fieldList *sitter.Node
	for i := 0; i < int(structType.ChildCount()); i++ {
		if c := structType.Child(i); c.Type() == "field_declaration_list" {
			fieldList = c
			break
		}
	}
	if fieldList == nil {
		return
	}
	for i := 0; i < int(fieldList.ChildCount()); i++ {
		if fd := fieldList.Child(i); fd.Type() == "field_declaration" {
			w.extractFieldDeclaration(fd, parentID)
		}
	}
}

func (w *goWalker) extractFieldDeclaration(fd *sitter.Node, parentID string) {
	typeNode := fd.ChildByFieldName("type")
	typeName := w.baseTypeName(typeNode)
	for _, name := range w.fieldNames(fd, typeName) {
		id := deterministicID("sym", w.relPath, parentID+"."+name, int(fd.StartByte()), int(fd.EndByte()))
		w.result.Symbols = append(w.result.Symbols, &store.Symbol{
			ID:          id,
			Name:        name,
			Kind:        store.KindField,
			Language:    "go",
			FilePath:    w.relPath,
			Signature:   typeName,
			Span:        w.span(fd),
			ParentID:    parentID,
			Visibility:  visibilityFromName(name),
			Confidence:  1,
			CodeContext: w.codeContext(fd),
		})
	}
}

func (w *goWalker) fieldNames(fd *sitter.Node, embeddedFallback string) []string {
	if nameNode := fd.ChildByFieldName("name"); nameNode != nil {
		return []string{w.text(nameNode)}
	}
	var names []string
	for i := 0; i < int(fd.ChildCount()); i++ {
		if c := fd.Child(i); c.Type() == "field_identifier" {
			names = append(names, w.text(c))
		}
	}
	if len(names) == 0 && embeddedFallback != "" {
		names = append(names, embeddedFallback)
	}
	return names
}

func (w *goWalker) extractImportDeclaration(n *sitter.Node) {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "import_spec":
			w.extractImportSpec(c)
		case "import_spec_list":
			for j := 0; j < int(c.ChildCount()); j++ {
				if gc := c.Child(j); gc.Type() == "import_spec" {
					w.extractImportSpec(gc)
				}
			}
		}
	}
}

func (w *goWalker) extractImportSpec(n *sitter.Node) {
	pathNode := n.ChildByFieldName("path")
	if pathNode == nil {
		return
	}
	path := strings.Trim(w.text(pathNode), `"`)
	id := deterministicID("ident", w.relPath, path, int(n.StartByte()), int(n.EndByte()))
	w.result.Identifiers = append(w.result.Identifiers, &store.Identifier{
		ID:         id,
		Name:       path,
		Kind:       store.IdentifierImport,
		Language:   "go",
		FilePath:   w.relPath,
		Span:       w.span(n),
		Confidence: 1,
	})
}

func (w *goWalker) extractValueDeclaration(n *sitter.Node, kind store.SymbolKind, specType string) {
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c.Type() == specType {
			w.extractValueSpec(c, kind)
		}
	}
}

func (w *goWalker) extractValueSpec(n *sitter.Node, kind store.SymbolKind) {
	for _, name := range w.valueNames(n) {
		id := deterministicID("sym", w.relPath, name, int(n.StartByte()), int(n.EndByte()))
		w.result.Symbols = append(w.result.Symbols, &store.Symbol{
			ID:          id,
			Name:        name,
			Kind:        kind,
			Language:    "go",
			FilePath:    w.relPath,
			Signature:   w.text(n),
			Span:        w.span(n),
			Visibility:  visibilityFromName(name),
			Confidence:  1,
			CodeContext: w.codeContext(n),
		})
		w.byName[name] = id
	}
}

func (w *goWalker) valueNames(n *sitter.Node) []string {
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		return []string{w.text(nameNode)}
	}
	var names []string
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c.Type() == "identifier" {
			names = append(names, w.text(c))
		}
	}
	return names
}

// walkCalls recurses through a function/method body, recording every call
// expression against containingID. A nested func_literal gets its own
// symbol (parented to containingID) and its own call-resolution scope.
func (w *goWalker) walkCalls(n *sitter.Node, containingID string) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "call_expression":
		w.recordCall(n, containingID)
	case "func_literal":
		w.extractFuncLiteral(n, containingID)
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		w.walkCalls(n.Child(i), containingID)
	}
}

func (w *goWalker) extractFuncLiteral(n *sitter.Node, parentID string) {
	id := deterministicID("sym", w.relPath, "<anonymous>", int(n.StartByte()), int(n.EndByte()))
	w.result.Symbols = append(w.result.Symbols, &store.Symbol{
		ID:          id,
		Name:        "<anonymous>",
		Kind:        store.KindFunction,
		Language:    "go",
		FilePath:    w.relPath,
		Signature:   w.signature(n),
		Span:        w.span(n),
		ParentID:    parentID,
		Visibility:  store.VisibilityPrivate,
		Confidence:  1,
		CodeContext: w.codeContext(n),
	})
	if body := n.ChildByFieldName("body"); body != nil {
		w.walkCalls(body, id)
	}
}

func (w *goWalker) recordCall(n *sitter.Node, containingID string) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	name := w.calleeName(fn)
	if name == "" {
		return
	}
	targetID := w.byName[name]
	confidence := 1.0
	if targetID == "" {
		// Not declared in this file: still worth recording so the
		// cross-language tracer can resolve it against the rest of
		// the workspace later.
		confidence = 0.5
	}

	identID := deterministicID("ident", w.relPath, name, int(n.StartByte()), int(n.EndByte()))
	w.result.Identifiers = append(w.result.Identifiers, &store.Identifier{
		ID:                 identID,
		Name:               name,
		Kind:               store.IdentifierCall,
		Language:           "go",
		FilePath:           w.relPath,
		Span:               w.span(n),
		ContainingSymbolID: containingID,
		TargetSymbolID:     targetID,
		Confidence:         confidence,
		CodeContext:        w.codeContext(n),
	})

	if targetID != "" && targetID != containingID {
		relID := deterministicID("rel", w.relPath, containingID+"->"+targetID, int(n.StartByte()), int(n.EndByte()))
		w.result.Relationships = append(w.result.Relationships, &store.Relationship{
			ID:           relID,
			FromSymbolID: containingID,
			ToSymbolID:   targetID,
			Kind:         store.RelationshipCalls,
			FilePath:     w.relPath,
			LineNumber:   int(n.StartPoint().Row) + 1,
			Confidence:   1,
			Metadata:     "{}",
		})
	}
}

func (w *goWalker) calleeName(fn *sitter.Node) string {
	switch fn.Type() {
	case "selector_expression":
		field := fn.ChildByFieldName("field")
		if field == nil {
			return ""
		}
		return w.text(field)
	default:
		return w.text(fn)
	}
}

func (w *goWalker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(w.src[n.StartByte():n.EndByte()])
}

func (w *goWalker) span(n *sitter.Node) store.Span {
	sp, ep := n.StartPoint(), n.EndPoint()
	return store.Span{
		StartByte: int(n.StartByte()),
		EndByte:   int(n.EndByte()),
		StartLine: int(sp.Row) + 1,
		EndLine:   int(ep.Row) + 1,
		StartCol:  int(sp.Column),
		EndCol:    int(ep.Column),
	}
}

// signature is everything up to the body, e.g. "func (s *Store) Get(id
// string) (*Symbol, error)" without the braces.
func (w *goWalker) signature(n *sitter.Node) string {
	end := n.EndByte()
	if body := n.ChildByFieldName("body"); body != nil {
		end = body.StartByte()
	}
	return strings.TrimSpace(string(w.src[n.StartByte():end]))
}

// codeContext grabs the +/-3 lines around a node's start, matching the
// embedding pipeline's code_context convention.
func (w *goWalker) codeContext(n *sitter.Node) string {
	lines := w.lines()
	start := int(n.StartPoint().Row)
	from := start - 3
	if from < 0 {
		from = 0
	}
	to := start + 3
	if to >= len(lines) {
		to = len(lines) - 1
	}
	return strings.Join(lines[from:to+1], "\n")
}

// leadingComment scans contiguous "//" lines immediately above n's start
// line, the Go doc-comment convention. Tree-sitter attaches comments as
// ordinary siblings rather than a dedicated field, so source-line scanning
// is simpler than reaching across the sibling chain.
func (w *goWalker) leadingComment(n *sitter.Node) string {
	lines := w.lines()
	var doc []string
	for i := int(n.StartPoint().Row) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" || !strings.HasPrefix(trimmed, "//") {
			break
		}
		doc = append([]string{strings.TrimSpace(strings.TrimPrefix(trimmed, "//"))}, doc...)
	}
	return strings.Join(doc, " ")
}

func (w *goWalker) lines() []string {
	if w.linesCache == nil {
		w.linesCache = strings.Split(string(w.src), "\n")
	}
	return w.linesCache
}

func visibilityFromName(name string) store.Visibility {
	if name == "" {
		return store.VisibilityPrivate
	}
	if unicode.IsUpper([]rune(name)[0]) {
		return store.VisibilityPublic
	}
	return store.VisibilityPrivate
}
