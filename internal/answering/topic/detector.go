// Package topic classifies buyer questions as product searches, critical safety topics or
// ordinary questions about the listed product.
package topic

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"qa-autoresponder/internal/answering"
	"qa-autoresponder/internal/common/logger"
	"qa-autoresponder/internal/common/metrics"
	"qa-autoresponder/internal/common/oracle"
	"qa-autoresponder/internal/common/textutil"
	"qa-autoresponder/internal/models"
)

// Marker identifies classification prompts.
const Marker = "TASK: TOPIC_CLASSIFICATION"

// Fallback reasons.
const (
	FallbackOracleError     = "oracle_error"
	FallbackMalformedOutput = "malformed_output"
)

const (
	tagProductSearch = "PRODUCT_SEARCH"
	tagCritical      = "CRITICAL"
	tagCategory      = "CATEGORY"
	tagConfidence    = "CONFIDENCE"
	tagReasoning     = "REASONING"
)

// keywordConfidence is reported when only the vocabulary decided.
const keywordConfidence = 0.6

var voltagePattern = regexp.MustCompile(`\b\d{2,3} ?(v|volt|volts|vac|vdc)\b`)

type categoryMatcher struct {
	category models.CriticalCategory
	matcher  *textutil.PhraseMatcher
}

type Detector struct {
	oracle     oracle.Oracle
	budget     answering.OracleBudget
	critical   []categoryMatcher
	purchase   *textutil.PhraseMatcher
	comparison *textutil.PhraseMatcher
	logger     logger.Logger
}

func NewDetector(o oracle.Oracle, settings answering.Settings, log logger.Logger) *Detector {
	d := &Detector{
		oracle:     o,
		budget:     settings.Classify,
		purchase:   textutil.NewPhraseMatcher(settings.ProductSearchPhrases),
		comparison: textutil.NewPhraseMatcher(settings.ComparisonPhrases),
		logger:     log.WithFields(map[string]interface{}{"component": "topic_detector"}),
	}
	for _, cat := range models.CriticalCategories {
		d.critical = append(d.critical, categoryMatcher{
			category: cat,
			matcher:  textutil.NewPhraseMatcher(settings.CriticalTopics[cat]),
		})
	}
	return d
}

// Classify never fails. When the oracle cannot be used the keyword vocabulary decides, and
// a vocabulary hit always marks the question critical even when the oracle disagrees.
func (d *Detector) Classify(ctx context.Context, q models.Question, productHint string) models.TopicClassification {
	keywordCat, keywordHit := d.MatchCritical(q.Text)

	text, err := d.oracle.Invoke(oracle.WithStage(ctx, "classify"), d.prompt(q, productHint), d.budget.Temperature, d.budget.MaxTokens)
	if err != nil {
		d.logger.Warn("classification oracle failed, using keyword fallback", map[string]interface{}{
			"questionId": q.ID,
			"error":      err.Error(),
		})
		return d.fallback(q.Text, FallbackOracleError)
	}

	classification, ok := parse(text).Get()
	if !ok {
		d.logger.Warn("classification output malformed, using keyword fallback", map[string]interface{}{
			"questionId": q.ID,
		})
		return d.fallback(q.Text, FallbackMalformedOutput)
	}

	if keywordHit && (!classification.IsCritical || classification.CriticalCategory == models.CategoryNone) {
		if !classification.IsCritical {
			d.logger.Info("keyword vocabulary overrides oracle critical verdict", map[string]interface{}{
				"questionId": q.ID,
				"category":   string(keywordCat),
			})
		}
		classification.IsCritical = true
		classification.CriticalCategory = keywordCat
	}
	return classification
}

// MatchCritical checks the fixed vocabulary and the voltage pattern.
func (d *Detector) MatchCritical(text string) (models.CriticalCategory, bool) {
	for _, cm := range d.critical {
		if _, ok := cm.matcher.Match(text); ok {
			return cm.category, true
		}
	}
	if voltagePattern.MatchString(textutil.Fold(text)) {
		return models.CategoryElectrical, true
	}
	return models.CategoryNone, false
}

// IsProductSearch reports purchase-intent phrasing that is not a comparison.
func (d *Detector) IsProductSearch(text string) bool {
	if _, ok := d.comparison.Match(text); ok {
		return false
	}
	_, ok := d.purchase.Match(text)
	return ok
}

func (d *Detector) fallback(text, reason string) models.TopicClassification {
	metrics.TopicFallbacks.WithLabelValues(reason).Inc()
	cat, critical := d.MatchCritical(text)
	return models.TopicClassification{
		IsProductSearch:  d.IsProductSearch(text),
		IsCritical:       critical,
		CriticalCategory: cat,
		Confidence:       keywordConfidence,
		UsedFallback:     true,
		FallbackReason:   reason,
	}
}

func (d *Detector) prompt(q models.Question, productHint string) string {
	var parts []string
	parts = append(parts, Marker)
	parts = append(parts, "You screen buyer questions on a marketplace listing before anyone answers them.")
	if productHint != "" {
		parts = append(parts, fmt.Sprintf("\nListed product: %s", productHint))
	}
	parts = append(parts, fmt.Sprintf("Buyer question: %s", q.Text))

	parts = append(parts, "\nDecide two things:")
	parts = append(parts, "1. PRODUCT_SEARCH: is the buyer looking for a DIFFERENT product than the one listed (\"do you have\", \"do you sell\")?")
	parts = append(parts, "   Comparison or compatibility questions about the listed product (\"compared to\", \"compatible with\") are NOT product searches.")
	parts = append(parts, "2. CRITICAL: does the question touch electrical, physical, health/allergen or legal/certification safety?")
	parts = append(parts, "   Reason about the concern, not the words: \"does it overheat\" or \"max load for a 10kg camera\" are critical.")

	parts = append(parts, "\nReply exactly in this format:")
	parts = append(parts, "PRODUCT_SEARCH: yes|no")
	parts = append(parts, "CRITICAL: yes|no")
	parts = append(parts, "CATEGORY: electrical_safety|physical_safety|health_safety|legal_compliance|none")
	parts = append(parts, "CONFIDENCE: 0-100")
	parts = append(parts, "REASONING: one sentence")
	return strings.Join(parts, "\n")
}

func parse(text string) oracle.Parsed[models.TopicClassification] {
	tags := oracle.ParseTags(text, tagProductSearch, tagCritical, tagCategory, tagConfidence, tagReasoning)

	search, okSearch := tags.Bool(tagProductSearch)
	critical, okCritical := tags.Bool(tagCritical)
	var missing []string
	if !okSearch {
		missing = append(missing, tagProductSearch)
	}
	if !okCritical {
		missing = append(missing, tagCritical)
	}
	if len(missing) > 0 {
		return oracle.Malformed[models.TopicClassification](text, missing)
	}

	c := models.TopicClassification{
		IsProductSearch: search,
		IsCritical:      critical,
		Rationale:       tags.String(tagReasoning),
		Confidence:      keywordConfidence,
	}
	if critical {
		c.CriticalCategory = categoryOf(tags.String(tagCategory))
	}
	if conf, ok := tags.Float(tagConfidence); ok {
		if conf > 1 {
			conf /= 100
		}
		c.Confidence = clamp01(conf)
	}
	return oracle.Ok(c)
}

func categoryOf(s string) models.CriticalCategory {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) == 0 {
		return models.CategoryNone
	}
	return models.ParseCriticalCategory(strings.Trim(fields[0], ".,;:()`'\""))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
