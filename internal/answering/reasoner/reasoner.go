// Package reasoner drafts a candidate answer through a fixed five-step prompt and reads back
// the answer with its self-reported confidence.
package reasoner

import (
	"context"
	"fmt"
	"strings"

	"qa-autoresponder/internal/answering"
	"qa-autoresponder/internal/answering/productcontext"
	apperrors "qa-autoresponder/internal/common/errors"
	"qa-autoresponder/internal/common/logger"
	"qa-autoresponder/internal/common/oracle"
	"qa-autoresponder/internal/common/textutil"
	"qa-autoresponder/internal/models"
)

// Marker identifies reasoning prompts.
const Marker = "TASK: ANSWER_REASONING"

const (
	tagProductType = "PRODUCT_TYPE"
	tagIntent      = "INTENT"
	tagFacts       = "FACTS"
	tagCertainty   = "CERTAINTY"
	tagAnswer      = "ANSWER"
	tagConfidence  = "CONFIDENCE"
)

var allTags = []string{tagProductType, tagIntent, tagFacts, tagCertainty, tagAnswer, tagConfidence}

type Reasoner struct {
	oracle     oracle.Oracle
	settings   answering.Settings
	comparison *textutil.PhraseMatcher
	logger     logger.Logger
}

func New(o oracle.Oracle, settings answering.Settings, log logger.Logger) *Reasoner {
	return &Reasoner{
		oracle:     o,
		settings:   settings,
		comparison: textutil.NewPhraseMatcher(settings.ComparisonPhrases),
		logger:     log.WithFields(map[string]interface{}{"component": "reasoner"}),
	}
}

// Reason never fails. Oracle failures and malformed output produce a result with
// SelfConfidence 0 and a Fault tag.
func (r *Reasoner) Reason(ctx context.Context, q models.Question, pc models.ProductContext, temperature float64) models.ReasoningResult {
	analysis := Analyze(q.Text, r.comparison)
	prompt := r.prompt(q, pc, analysis)

	text, err := r.oracle.Invoke(oracle.WithStage(ctx, "reason"), prompt, temperature, r.settings.Reason.MaxTokens)
	if err != nil {
		r.logger.Warn("reasoning oracle failed", map[string]interface{}{
			"questionId": q.ID,
			"error":      err.Error(),
		})
		return models.ReasoningResult{Temperature: temperature, Fault: oracle.Fault(err)}
	}

	parsed := r.parse(text)
	result, ok := parsed.Get()
	if !ok {
		malformed := apperrors.NewOracleMalformedOutputError("reason", parsed.Missing())
		r.logger.WithError(malformed).Warn("reasoning output malformed", map[string]interface{}{
			"questionId": q.ID,
			"missing":    parsed.Missing(),
		})
		result = r.bestEffort(parsed.Raw())
	}
	result.Temperature = temperature
	return result
}

func (r *Reasoner) parse(text string) oracle.Parsed[models.ReasoningResult] {
	tags := oracle.ParseTags(text, allTags...)
	confidence, ok := tags.Float(tagConfidence)
	missing := tags.Missing(tagAnswer)
	if !ok {
		missing = append(missing, tagConfidence)
	}
	if len(missing) > 0 {
		return oracle.Malformed[models.ReasoningResult](text, missing)
	}

	result := models.ReasoningResult{
		AnswerText:     r.normalize(tags.String(tagAnswer)),
		SelfConfidence: scaleConfidence(confidence),
		Rationale:      rationale(tags),
	}
	if _, present := tags[tagFacts]; present && len(tags.Lines(tagFacts)) == 0 {
		// no supporting fact located
		result.SelfConfidence = 0
	}
	if result.AnswerText == "" {
		result.SelfConfidence = 0
	}
	return oracle.Ok(result)
}

func (r *Reasoner) bestEffort(raw string) models.ReasoningResult {
	tags := oracle.ParseTags(raw, allTags...)
	return models.ReasoningResult{
		AnswerText: r.normalize(tags.String(tagAnswer)),
		Rationale:  rationale(tags),
		Fault:      models.FaultMalformedOutput,
	}
}

// normalize collapses whitespace and keeps whole sentences within the answer limit.
func (r *Reasoner) normalize(answer string) string {
	answer = strings.Trim(textutil.CollapseSpace(answer), "\"'")
	limit := r.settings.MaxAnswerChars
	if limit <= 0 || len([]rune(answer)) <= limit {
		return answer
	}

	var b strings.Builder
	for _, s := range textutil.SplitSentences(answer) {
		n := len([]rune(b.String()))
		if n > 0 {
			n++
		}
		if n+len([]rune(s)) > limit {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
	if b.Len() > 0 {
		return b.String()
	}

	// a single sentence longer than the limit is cut at a word boundary
	cut := []rune(answer)[:limit]
	if i := strings.LastIndexByte(string(cut), ' '); i > 0 {
		return string(cut)[:i]
	}
	return string(cut)
}

func (r *Reasoner) prompt(q models.Question, pc models.ProductContext, a Analysis) string {
	var parts []string
	parts = append(parts, Marker)
	parts = append(parts, "You answer buyer questions on a marketplace listing as the seller. Use ONLY the product data below.")

	parts = append(parts, "\nProduct data:")
	parts = append(parts, productcontext.Describe(pc))

	parts = append(parts, fmt.Sprintf("\nBuyer question: %s", q.Text))
	if len(a.SubQuestions) > 1 {
		parts = append(parts, "The question has several parts. Answer every one of them:")
		for i, sq := range a.SubQuestions {
			parts = append(parts, fmt.Sprintf("%d) %s", i+1, sq))
		}
	}
	if a.Negated {
		parts = append(parts, "The question is phrased negatively. Make sure yes/no in your answer keeps the correct polarity.")
	}
	if a.Comparison {
		parts = append(parts, "The buyer compares with or asks about compatibility with another item. Answer about THIS listed product.")
	}

	parts = append(parts, "\nWork in five steps:")
	parts = append(parts, "1. PRODUCT_TYPE: what the product is and what it is for")
	parts = append(parts, "2. INTENT: what the buyer wants to know and any implicit concern")
	parts = append(parts, "3. FACTS: the product data lines that support the answer, one per line, or \"none\"")
	parts = append(parts, "4. CERTAINTY: how sure the facts make you")
	parts = append(parts, fmt.Sprintf("5. ANSWER: a concise, positive but honest reply under %d characters.", r.settings.MaxAnswerChars))
	parts = append(parts, "   Never start with a bare \"no\"; if the answer is negative, redirect to what the product does offer.")
	parts = append(parts, "   Never invent facts. If the data does not support an answer, say so and give CONFIDENCE 0.")

	parts = append(parts, "\nReply exactly in this format:")
	for _, tag := range allTags {
		parts = append(parts, tag+": ...")
	}
	parts = append(parts, "(CONFIDENCE is 0-100)")
	return strings.Join(parts, "\n")
}

func rationale(tags oracle.Tags) string {
	var parts []string
	for _, tag := range []string{tagProductType, tagIntent, tagFacts, tagCertainty} {
		if v := tags.String(tag); v != "" {
			parts = append(parts, strings.ToLower(tag)+": "+textutil.CollapseSpace(v))
		}
	}
	return strings.Join(parts, "; ")
}

func scaleConfidence(v float64) int {
	if v > 0 && v < 1 {
		v *= 100
	}
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return int(v + 0.5)
}
