// Package validator checks a candidate answer for contradiction, type coherence and sales
// tone. Every failed check scales the score down.
package validator

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

// Marker identifies validation prompts.
const Marker = "TASK: ANSWER_VALIDATION"

const (
	tagContradiction = "CONTRADICTION"
	tagTypeCoherent  = "TYPE_COHERENT"
	tagToneOK        = "TONE_OK"
	tagIssues        = "ISSUES"
)

// Score multipliers per failed check.
const (
	contradictionFactor = 0.3
	incoherenceFactor   = 0.35
	toneFactor          = 0.8
	inconclusiveScore   = 50
)

var negativeOpeners = map[string]bool{
	"no": true, "nope": true, "not": true, "unfortunately": true, "nao": true, "infelizmente": true,
}

var redirections = map[string]bool{
	"but": true, "however": true, "instead": true, "although": true, "though": true,
	"recommend": true, "alternatively": true, "only": true, "mas": true, "porem": true,
	"entretanto": true, "recomendamos": true, "sugerimos": true, "apenas": true,
}

type Validator struct {
	oracle oracle.Oracle
	budget answering.OracleBudget
	logger logger.Logger
}

func New(o oracle.Oracle, settings answering.Settings, log logger.Logger) *Validator {
	return &Validator{
		oracle: o,
		budget: settings.Validate,
		logger: log.WithFields(map[string]interface{}{"component": "validator"}),
	}
}

type verdict struct {
	contradiction bool
	typeCoherent  bool
	toneOK        bool
	notes         []string
}

// Validate never fails. Malformed output is inconclusive (score 50); an unusable oracle
// scores 0 and carries the fault.
func (v *Validator) Validate(ctx context.Context, answerText string, pc models.ProductContext) models.ValidationResult {
	answerText = strings.TrimSpace(answerText)
	if answerText == "" {
		return models.ValidationResult{Issues: []string{models.IssueEmptyAnswer}}
	}
	bare := BareNegation(answerText)

	text, err := v.oracle.Invoke(oracle.WithStage(ctx, "validate"), v.prompt(answerText, pc), v.budget.Temperature, v.budget.MaxTokens)
	if err != nil {
		v.logger.Warn("validation oracle failed", map[string]interface{}{
			"productRef": pc.ProductRef,
			"error":      err.Error(),
		})
		return models.ValidationResult{Fault: oracle.Fault(err)}
	}

	parsed := parse(text)
	vd, ok := parsed.Get()
	if !ok {
		inconclusive := apperrors.NewValidationInconclusiveError("missing: " + strings.Join(parsed.Missing(), ","))
		v.logger.WithError(inconclusive).Warn("validation output malformed, result inconclusive", map[string]interface{}{
			"productRef": pc.ProductRef,
			"missing":    parsed.Missing(),
		})
		res := models.ValidationResult{Inconclusive: true, Score: inconclusiveScore}
		if bare {
			res.Issues = append(res.Issues, models.IssueTone)
			res.Score *= toneFactor
		}
		return res
	}

	res := models.ValidationResult{Score: 100}
	if vd.contradiction {
		res.Issues = append(res.Issues, models.IssueContradiction)
		res.Score *= contradictionFactor
	}
	if !vd.typeCoherent {
		res.Issues = append(res.Issues, models.IssueTypeIncoherent)
		res.Score *= incoherenceFactor
	}
	if !vd.toneOK || bare {
		res.Issues = append(res.Issues, models.IssueTone)
		res.Score *= toneFactor
	}
	res.Coherent = !vd.contradiction && vd.typeCoherent

	if len(vd.notes) > 0 {
		v.logger.Debug("validation notes", map[string]interface{}{
			"productRef": pc.ProductRef,
			"notes":      vd.notes,
		})
	}
	return res
}

func parse(text string) oracle.Parsed[verdict] {
	tags := oracle.ParseTags(text, tagContradiction, tagTypeCoherent, tagToneOK, tagIssues)
	contradiction, okC := tags.Bool(tagContradiction)
	coherent, okT := tags.Bool(tagTypeCoherent)
	var missing []string
	if !okC {
		missing = append(missing, tagContradiction)
	}
	if !okT {
		missing = append(missing, tagTypeCoherent)
	}
	if len(missing) > 0 {
		return oracle.Malformed[verdict](text, missing)
	}

	tone, okTone := tags.Bool(tagToneOK)
	if !okTone {
		tone = true
	}
	return oracle.Ok(verdict{
		contradiction: contradiction,
		typeCoherent:  coherent,
		toneOK:        tone,
		notes:         tags.Lines(tagIssues),
	})
}

// BareNegation reports an answer that opens with a flat negative and never redirects the
// buyer to what the product does offer.
func BareNegation(answer string) bool {
	toks := textutil.Tokens(answer)
	if len(toks) == 0 || !negativeOpeners[toks[0]] {
		return false
	}
	for _, tok := range toks[1:] {
		if redirections[tok] {
			return false
		}
	}
	return true
}

func (v *Validator) prompt(answerText string, pc models.ProductContext) string {
	var parts []string
	parts = append(parts, Marker)
	parts = append(parts, "You review a seller's reply to a buyer before it is published.")
	parts = append(parts, "\nProduct data:")
	parts = append(parts, productcontext.Describe(pc))
	parts = append(parts, fmt.Sprintf("\nReply under review: %s", answerText))

	parts = append(parts, "\nCheck, in order:")
	parts = append(parts, "1. CONTRADICTION: does the reply contradict itself or the product data?")
	parts = append(parts, "2. TYPE_COHERENT: does the reply talk about this kind of product? (a doorbell reply must not discuss megapixels for photography)")
	parts = append(parts, "3. TONE_OK: is the tone positive, honest and appropriate for a sale?")

	parts = append(parts, "\nReply exactly in this format:")
	parts = append(parts, "CONTRADICTION: yes|no")
	parts = append(parts, "TYPE_COHERENT: yes|no")
	parts = append(parts, "TONE_OK: yes|no")
	parts = append(parts, "ISSUES: one per line, or none")
	return strings.Join(parts, "\n")
}
