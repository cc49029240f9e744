package confidence

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"qa-autoresponder/internal/answering"
	"qa-autoresponder/internal/models"
)

func answerOf(words int) string {
	return strings.TrimSpace(strings.Repeat("word ", words))
}

func TestAggregate_ColorScenario(t *testing.T) {
	a := NewAggregator(answering.DefaultSettings())

	b := a.Aggregate(
		models.ReasoningResult{AnswerText: "It is black, a matte finish that suits any desk.", SelfConfidence: 92},
		models.ProductContext{Completeness: 0.9},
		models.ValidationResult{Coherent: true, Score: 100},
	)

	assert.Equal(t, 92.0, b.ModelScore)
	assert.Equal(t, 90.0, b.CompletenessScore)
	assert.Equal(t, 80.0, b.ShapeScore)
	assert.Equal(t, 100.0, b.CoherenceScore)
	assert.InDelta(t, 92*0.5+90*0.2+80*0.1+100*0.2, b.FinalScore, 1e-9)
	assert.GreaterOrEqual(t, b.FinalScore, 85.0)
	assert.Zero(t, b.Ceiling)
}

func TestAggregate_DegradedCeiling(t *testing.T) {
	a := NewAggregator(answering.DefaultSettings())
	good := models.ReasoningResult{AnswerText: answerOf(25), SelfConfidence: 100}
	clean := models.ValidationResult{Coherent: true, Score: 100}

	tests := map[string]struct {
		r  models.ReasoningResult
		pc models.ProductContext
		v  models.ValidationResult
	}{
		"absent context":   {good, models.ProductContext{}, clean},
		"reasoning fault":  {models.ReasoningResult{AnswerText: answerOf(25), SelfConfidence: 100, Fault: models.FaultMalformedOutput}, models.ProductContext{Completeness: 1}, clean},
		"validation fault": {good, models.ProductContext{Completeness: 1}, models.ValidationResult{Fault: models.FaultOracleTimeout}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			b := a.Aggregate(tt.r, tt.pc, tt.v)
			assert.LessOrEqual(t, b.FinalScore, 40.0)
			assert.Less(t, b.FinalScore, answering.DefaultSettings().Thresholds.Low)
		})
	}
}

func TestAggregate_BoundedAndMonotone(t *testing.T) {
	a := NewAggregator(answering.DefaultSettings())
	confidences := []int{0, 10, 35, 60, 85, 100}
	completeness := []float64{0, 0.1, 0.5, 0.9, 1}
	words := []int{0, 3, 7, 15, 20, 40}
	validation := []float64{0, 30, 45, 75, 95, 100}

	score := func(ci, pi, wi, vi int) float64 {
		return a.Aggregate(
			models.ReasoningResult{AnswerText: answerOf(words[wi]), SelfConfidence: confidences[ci]},
			models.ProductContext{Completeness: completeness[pi]},
			models.ValidationResult{Score: validation[vi]},
		).FinalScore
	}

	for ci := range confidences {
		for pi := range completeness {
			for wi := range words {
				for vi := range validation {
					s := score(ci, pi, wi, vi)
					assert.GreaterOrEqual(t, s, 0.0)
					assert.LessOrEqual(t, s, 100.0)

					if ci+1 < len(confidences) {
						assert.GreaterOrEqual(t, score(ci+1, pi, wi, vi), s, "model")
					}
					if pi+1 < len(completeness) {
						assert.GreaterOrEqual(t, score(ci, pi+1, wi, vi), s, "completeness")
					}
					if wi+1 < len(words) {
						assert.GreaterOrEqual(t, score(ci, pi, wi+1, vi), s, "shape")
					}
					if vi+1 < len(validation) {
						assert.GreaterOrEqual(t, score(ci, pi, wi, vi+1), s, "coherence")
					}
				}
			}
		}
	}
}

func TestShapeScore(t *testing.T) {
	assert.Equal(t, 0.0, ShapeScore("", 20))
	assert.Equal(t, 40.0, ShapeScore(answerOf(4), 20))
	assert.Equal(t, 60.0, ShapeScore(answerOf(9), 20))
	assert.Equal(t, 80.0, ShapeScore(answerOf(19), 20))
	assert.Equal(t, 100.0, ShapeScore(answerOf(20), 20))
}

func TestCoherenceLevel(t *testing.T) {
	assert.Equal(t, 100.0, CoherenceLevel(90))
	assert.Equal(t, 80.0, CoherenceLevel(80))
	assert.Equal(t, 50.0, CoherenceLevel(50))
	assert.Equal(t, 0.0, CoherenceLevel(30))
}
