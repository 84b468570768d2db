package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFTSQuery_PlainTerms(t *testing.T) {
	// Given: a plain multi-word query
	// When: sanitizing
	got := sanitizeFTSQuery("parse config")

	// Then: unchanged
	assert.Equal(t, "parse config", got)
}

func TestSanitizeFTSQuery_OperatorCharsAreQuoted(t *testing.T) {
	// Given: a token containing an FTS5 operator character
	got := sanitizeFTSQuery("foo.bar()")

	// Then: the whole token is quoted
	assert.Equal(t, `"foo.bar()"`, got)
}

func TestSanitizeFTSQuery_PreservesQuotedPhrase(t *testing.T) {
	got := sanitizeFTSQuery(`"exact phrase" extra`)
	assert.Equal(t, `"exact phrase" extra`, got)
}

func TestSanitizeFTSQuery_PreservesPrefixWildcard(t *testing.T) {
	got := sanitizeFTSQuery("hand*")
	assert.Equal(t, "hand*", got)
}

func TestSanitizeFTSQuery_PreservesBareBooleanOperators(t *testing.T) {
	got := sanitizeFTSQuery("foo AND bar OR NOT baz")
	assert.Equal(t, "foo AND bar OR NOT baz", got)
}

func TestSanitizeFTSQuery_EmptyInput(t *testing.T) {
	assert.Equal(t, "", sanitizeFTSQuery("   "))
}

func TestSanitizeFTSQuery_WildcardWithOperatorPrefixStillQuoted(t *testing.T) {
	// A wildcard token is only left alone when nothing *before* the star
	// needs escaping; here the colon forces quoting, which drops the
	// trailing star's special meaning (acceptable: it just becomes literal).
	got := sanitizeFTSQuery("foo:bar*")
	assert.Equal(t, `"foo:bar*"`, got)
}
