package store

import "strings"

// ftsOperatorChars are characters FTS5 treats specially outside of a quoted
// phrase. A bare token containing one of these must be quoted or it either
// errors out of MATCH or silently changes meaning.
const ftsOperatorChars = `#@[]!():.+/^*-`

// sanitizeFTSQuery quotes raw tokens containing FTS5 operator characters
// while preserving already-quoted phrases, trailing prefix wildcards
// ("foo*"), and the bare boolean operators AND/OR/NOT (spec §4.2.4).
func sanitizeFTSQuery(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return query
	}

	tokens := splitRespectingQuotes(query)
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, sanitizeToken(tok))
	}
	return strings.Join(out, " ")
}

func splitRespectingQuotes(s string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '"':
			cur.WriteRune(r)
			inQuote = !inQuote
		case r == ' ' && !inQuote:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

func sanitizeToken(tok string) string {
	switch tok {
	case "AND", "OR", "NOT":
		return tok
	}
	if strings.HasPrefix(tok, `"`) && strings.HasSuffix(tok, `"`) && len(tok) >= 2 {
		return tok // already a phrase
	}
	// Preserve a trailing prefix wildcard ("foo*") by quoting everything but it.
	if strings.HasSuffix(tok, "*") && !strings.ContainsAny(tok[:len(tok)-1], ftsOperatorChars) {
		return tok
	}
	if strings.ContainsAny(tok, ftsOperatorChars+`"`) {
		escaped := strings.ReplaceAll(tok, `"`, `""`)
		return `"` + escaped + `"`
	}
	return tok
}
