package fulltext

import (
	"strings"
	"unicode"
)

// ftsSyntax holds characters that carry meaning in the FTS5 query grammar
var ftsSyntax = strings.NewReplacer(
	`"`, " ",
	`'`, " ",
	`(`, " ",
	`)`, " ",
	`[`, " ",
	`]`, " ",
	`{`, " ",
	`}`, " ",
)

// prepareQuery turns free text into an FTS5 MATCH expression. Every token
// becomes a quoted prefix phrase and multiple tokens are OR-ed together, so a
// row matching any token is a candidate. Quoting keeps punctuation such as
// '@', '.', '-' and bare AND/OR/NOT from being parsed as syntax.
func prepareQuery(query string) string {
	tokens := strings.Fields(ftsSyntax.Replace(query))

	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if !hasWordRune(tok) {
			continue
		}
		terms = append(terms, `"`+tok+`"*`)
	}
	return strings.Join(terms, " OR ")
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// escapeLikePattern escapes LIKE wildcards; queries use ESCAPE '\'
func escapeLikePattern(pattern string) string {
	pattern = strings.ReplaceAll(pattern, `\`, `\\`)
	pattern = strings.ReplaceAll(pattern, `%`, `\%`)
	pattern = strings.ReplaceAll(pattern, `_`, `\_`)
	return pattern
}

// preview returns the first n runes of s, trimmed
func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
