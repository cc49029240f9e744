// Package confidence combines the stage signals of one question into a single score.
package confidence

import (
	"qa-autoresponder/internal/answering"
	"qa-autoresponder/internal/common/textutil"
	"qa-autoresponder/internal/models"
)

// Aggregator is pure and safe for concurrent use.
type Aggregator struct {
	weights    models.Weights
	saturation int
	ceiling    float64
}

func NewAggregator(settings answering.Settings) *Aggregator {
	return &Aggregator{
		weights:    settings.Weights,
		saturation: settings.ShapeSaturationWords,
		ceiling:    settings.DegradedCeiling,
	}
}

// Aggregate computes the weighted score in [0,100]. An absent context or a stage fault caps
// the result at the degraded ceiling.
func (a *Aggregator) Aggregate(r models.ReasoningResult, pc models.ProductContext, v models.ValidationResult) models.ConfidenceBreakdown {
	b := models.ConfidenceBreakdown{
		ModelScore:        clamp(float64(r.SelfConfidence), 0, 100),
		CompletenessScore: clamp(pc.Completeness*100, 0, 100),
		ShapeScore:        ShapeScore(r.AnswerText, a.saturation),
		CoherenceScore:    CoherenceLevel(v.Score),
		Weights:           a.weights,
	}
	b.FinalScore = clamp(
		b.ModelScore*a.weights.Model+
			b.CompletenessScore*a.weights.Completeness+
			b.ShapeScore*a.weights.Shape+
			b.CoherenceScore*a.weights.Coherence,
		0, 100)

	if pc.Completeness == 0 || r.Fault != "" || v.Fault != "" {
		b = b.Capped(a.ceiling)
	}
	return b
}

// ShapeScore grades answer length in words, saturating at saturation words.
func ShapeScore(answer string, saturation int) float64 {
	n := textutil.WordCount(answer)
	switch {
	case n == 0:
		return 0
	case n < 5:
		return 40
	case n < 10:
		return 60
	case n < saturation:
		return 80
	}
	return 100
}

// CoherenceLevel maps a validation score to a graduated level.
func CoherenceLevel(score float64) float64 {
	switch {
	case score >= 90:
		return 100
	case score >= 70:
		return 80
	case score >= 40:
		return 50
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
