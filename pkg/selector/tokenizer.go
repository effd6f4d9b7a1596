package selector

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// minTokenLength drops noise tokens; "no", "of", "to" carry no selection
// signal.
const minTokenLength = 3

var foldCaser = cases.Fold()

// Tokenize normalizes document text into selection tokens: Unicode NFKC so
// ligatures and width variants compare equal, case-folded, split on
// non-alphanumerics, tokens shorter than minTokenLength dropped, and
// first-occurrence order preserved with duplicates removed.
func Tokenize(text string) []string {
	normalized := foldCaser.String(norm.NFKC.String(text))

	var tokens []string
	seen := make(map[string]bool)
	var b strings.Builder
	flush := func() {
		if b.Len() >= minTokenLength {
			tok := b.String()
			if !seen[tok] {
				seen[tok] = true
				tokens = append(tokens, tok)
			}
		}
		b.Reset()
	}
	for _, r := range normalized {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}

// TokenSet builds a membership set from a token list.
func TokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// normalizeToken applies the same normalization to a configured selection
// token so config and document tokens compare in the same space.
func normalizeToken(tok string) string {
	return foldCaser.String(norm.NFKC.String(strings.TrimSpace(tok)))
}
