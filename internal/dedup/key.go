package dedup

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// articles are dropped from keys so "The Dog Stars" and "Dog Stars, The"
// collide.
var articles = map[string]bool{"the": true, "a": true, "an": true}

var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Key computes the dedup key for a title+author pair. Lower-cased,
// diacritics and punctuation stripped, articles dropped, whitespace
// collapsed.
func Key(title, author string) string {
	return NormalizeText(title) + "|" + NormalizeText(author)
}

// NormalizeText reduces free text to its comparable form.
func NormalizeText(s string) string {
	folded, _, err := transform.String(foldDiacritics, s)
	if err == nil {
		s = folded
	}

	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	var tokens []string
	for _, token := range strings.Fields(b.String()) {
		if articles[token] {
			continue
		}
		tokens = append(tokens, token)
	}
	return strings.Join(tokens, " ")
}

// sortedTokens returns the normalized text as a sorted token-set string,
// the input to the similarity metric.
func sortedTokens(s string) string {
	tokens := strings.Fields(NormalizeText(s))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
