package reasoner

import (
	"strings"

	"qa-autoresponder/internal/common/textutil"
)

// Analysis is the deterministic reading of a question that accompanies the prompt.
type Analysis struct {
	SubQuestions []string
	Negated      bool
	Comparison   bool
}

var interrogatives = map[string]bool{
	"what": true, "which": true, "how": true, "does": true, "do": true, "is": true, "are": true,
	"can": true, "will": true, "where": true, "when": true, "who": true, "why": true, "has": true,
	"qual": true, "quais": true, "quanto": true, "quantos": true, "como": true, "onde": true,
	"quando": true, "tem": true, "pode": true, "serve": true, "funciona": true, "vem": true,
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "without": true, "cannot": true, "doesn": true,
	"don": true, "isn": true, "aren": true, "won": true, "wasn": true, "nao": true, "sem": true,
	"nunca": true, "nem": true,
}

var conjunctions = []string{" and ", " also ", " e ", " tambem "}

// Analyze splits multi-part questions and flags negation and comparison phrasing.
func Analyze(text string, comparison *textutil.PhraseMatcher) Analysis {
	a := Analysis{}
	for _, sentence := range textutil.SplitSentences(textutil.CollapseSpace(text)) {
		a.SubQuestions = append(a.SubQuestions, splitConjoined(sentence)...)
	}
	for _, tok := range textutil.Tokens(text) {
		if negations[tok] {
			a.Negated = true
			break
		}
	}
	if comparison != nil {
		_, a.Comparison = comparison.Match(text)
	}
	return a
}

// splitConjoined splits "what color is it and how heavy is it" at a conjunction that is
// followed by a new interrogative.
func splitConjoined(sentence string) []string {
	lower := strings.ToLower(sentence)
	if len(lower) != len(sentence) {
		return []string{sentence}
	}
	for _, conj := range conjunctions {
		idx := strings.Index(lower, conj)
		if idx <= 0 {
			continue
		}
		rest := sentence[idx+len(conj):]
		words := textutil.Tokens(rest)
		if len(words) == 0 || !interrogatives[words[0]] {
			continue
		}
		head := strings.TrimSpace(sentence[:idx])
		return append([]string{head}, splitConjoined(strings.TrimSpace(rest))...)
	}
	return []string{sentence}
}
