// Package textutil normalizes buyer and oracle text for phrase matching and similarity.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, strips diacritics and replaces punctuation with spaces.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(norm.NFKC.String(folded))

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens returns the folded words of s.
func Tokens(s string) []string {
	return strings.Fields(Fold(s))
}

// WordCount counts whitespace-separated words without folding.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "it": {}, "its": {}, "of": {}, "and": {}, "or": {},
	"to": {}, "in": {}, "on": {}, "for": {}, "with": {}, "this": {}, "that": {}, "yes": {},
	"no": {}, "be": {}, "are": {}, "has": {}, "have": {}, "o": {}, "e": {}, "de": {}, "da": {},
	"do": {}, "um": {}, "uma": {}, "sim": {}, "nao": {}, "com": {}, "para": {},
}

// ContentTokens returns the distinct folded tokens of s without stopwords.
func ContentTokens(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range Tokens(s) {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

// Jaccard is |a∩b| / |a∪b|. Two empty sets are identical.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// PhraseMatcher finds whole-token phrase occurrences in folded text.
type PhraseMatcher struct {
	phrases [][]string
	raw     []string
}

func NewPhraseMatcher(phrases []string) *PhraseMatcher {
	m := &PhraseMatcher{}
	for _, p := range phrases {
		toks := Tokens(p)
		if len(toks) == 0 {
			continue
		}
		m.phrases = append(m.phrases, toks)
		m.raw = append(m.raw, p)
	}
	return m
}

// Match returns the first configured phrase found in text.
func (m *PhraseMatcher) Match(text string) (string, bool) {
	toks := Tokens(text)
	for i, p := range m.phrases {
		if containsSequence(toks, p) {
			return m.raw[i], true
		}
	}
	return "", false
}

func containsSequence(haystack, needle []string) bool {
	if len(needle) > len(haystack) {
		return false
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, tok := range needle {
			if haystack[i+j] != tok {
				continue outer
			}
		}
		return true
	}
	return false
}

// SplitSentences splits on terminal punctuation, keeping the punctuation.
func SplitSentences(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			if sent := strings.TrimSpace(s[start : i+1]); sent != "" {
				out = append(out, sent)
			}
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// CollapseSpace trims s and collapses runs of whitespace to one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
