package treesitter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anortham/julie-go/internal/extractor"
	"github.com/anortham/julie-go/internal/store"
)

const sampleGoSource = `package sample

import (
	"fmt"
)

// Greeter produces greetings.
type Greeter struct {
	Name string
	age  int
}

// Interface for things that can greet.
type Speaker interface {
	Speak() string
}

// Greet returns a hello message.
func Greet(name string) string {
	fmt.Println(helper(name))
	return "hello " + name
}

func helper(name string) string {
	return name
}

// Hello is a method on Greeter.
func (g *Greeter) Hello() string {
	return Greet(g.Name)
}
`

func TestGoExtractor_Language(t *testing.T) {
	g := NewGoExtractor()
	assert.Equal(t, "go", g.Language())
	assert.Equal(t, []string{".go"}, g.Extensions())
}

func TestGoExtractor_ExtractsFunctionsAndMethods(t *testing.T) {
	g := NewGoExtractor()
	result, err := g.Extract(context.Background(), "sample.go", []byte(sampleGoSource), "/repo")
	require.NoError(t, err)

	names := symbolNames(result)
	assert.Contains(t, names, "Greet")
	assert.Contains(t, names, "helper")
	assert.Contains(t, names, "Greeter.Hello")
}

func TestGoExtractor_ExtractsTypesAndFields(t *testing.T) {
	g := NewGoExtractor()
	result, err := g.Extract(context.Background(), "sample.go", []byte(sampleGoSource), "/repo")
	require.NoError(t, err)

	var greeter, speaker *store.Symbol
	for _, s := range result.Symbols {
		switch s.Name {
		case "Greeter":
			greeter = s
		case "Speaker":
			speaker = s
		}
	}
	require.NotNil(t, greeter)
	require.NotNil(t, speaker)
	assert.Equal(t, store.KindStruct, greeter.Kind)
	assert.Equal(t, store.KindInterface, speaker.Kind)
	assert.Equal(t, "Greeter produces greetings.", greeter.DocComment)

	var fieldNames []string
	for _, s := range result.Symbols {
		if s.ParentID == greeter.ID {
			fieldNames = append(fieldNames, s.Name)
		}
	}
	assert.Contains(t, fieldNames, "Name")
	assert.Contains(t, fieldNames, "age")
}

func TestGoExtractor_ResolvesSameFileCallsBothDirections(t *testing.T) {
	g := NewGoExtractor()
	result, err := g.Extract(context.Background(), "sample.go", []byte(sampleGoSource), "/repo")
	require.NoError(t, err)

	greetID := symbolID(result, "Greet")
	helperID := symbolID(result, "helper")
	helloID := symbolID(result, "Greeter.Hello")
	require.NotEmpty(t, greetID)
	require.NotEmpty(t, helperID)
	require.NotEmpty(t, helloID)

	assert.True(t, hasRelationship(result, greetID, helperID), "Greet calling helper should be resolved even though helper is declared later in the file")
	assert.True(t, hasRelationship(result, helloID, greetID), "Hello calling Greet should be resolved")
}

func TestGoExtractor_UnresolvedCallStillRecordsIdentifier(t *testing.T) {
	g := NewGoExtractor()
	src := `package sample

func Caller() {
	external.Do()
}
`
	result, err := g.Extract(context.Background(), "sample.go", []byte(src), "/repo")
	require.NoError(t, err)

	require.Len(t, result.Identifiers, 1)
	ident := result.Identifiers[0]
	assert.Equal(t, "Do", ident.Name)
	assert.Empty(t, ident.TargetSymbolID)
	assert.Less(t, ident.Confidence, 1.0)
}

func TestGoExtractor_RecordsImports(t *testing.T) {
	g := NewGoExtractor()
	result, err := g.Extract(context.Background(), "sample.go", []byte(sampleGoSource), "/repo")
	require.NoError(t, err)

	var found bool
	for _, ident := range result.Identifiers {
		if ident.Kind == store.IdentifierImport && ident.Name == "fmt" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestGoExtractor_DeterministicAcrossRuns(t *testing.T) {
	g := NewGoExtractor()
	first, err := g.Extract(context.Background(), "sample.go", []byte(sampleGoSource), "/repo")
	require.NoError(t, err)
	second, err := g.Extract(context.Background(), "sample.go", []byte(sampleGoSource), "/repo")
	require.NoError(t, err)

	require.Equal(t, len(first.Symbols), len(second.Symbols))
	for i := range first.Symbols {
		assert.Equal(t, first.Symbols[i].ID, second.Symbols[i].ID)
	}
}

func TestGoExtractor_FuncLiteralGetsParentedSymbol(t *testing.T) {
	g := NewGoExtractor()
	src := `package sample

func Outer() {
	fn := func() {
		Inner()
	}
	fn()
}

func Inner() {}
`
	result, err := g.Extract(context.Background(), "sample.go", []byte(src), "/repo")
	require.NoError(t, err)

	outerID := symbolID(result, "Outer")
	require.NotEmpty(t, outerID)

	var anon *store.Symbol
	for _, s := range result.Symbols {
		if s.Name == "<anonymous>" {
			anon = s
		}
	}
	require.NotNil(t, anon)
	assert.Equal(t, outerID, anon.ParentID)

	innerID := symbolID(result, "Inner")
	assert.True(t, hasRelationship(result, anon.ID, innerID), "call inside the closure should be attributed to the closure's own symbol")
}

func symbolNames(r *extractor.ExtractResult) []string {
	var names []string
	for _, s := range r.Symbols {
		names = append(names, s.Name)
	}
	return names
}

func symbolID(r *extractor.ExtractResult, name string) string {
	for _, s := range r.Symbols {
		if s.Name == name {
			return s.ID
		}
	}
	return ""
}

func hasRelationship(r *extractor.ExtractResult, fromID, toID string) bool {
	for _, rel := range r.Relationships {
		if rel.FromSymbolID == fromID && rel.ToSymbolID == toID {
			return true
		}
	}
	return false
}
