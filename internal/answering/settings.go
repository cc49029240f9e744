// Package answering holds the immutable decision settings shared by every stage of the
// question answering pipeline. A Settings value is built once at startup and passed to each
// component explicitly; nothing in the pipeline reads rules from package state.
package answering

import (
	"fmt"
	"math"

	"qa-autoresponder/internal/models"
)

// Voter selection strategies.
const (
	StrategyAgreement   = "agreement"
	StrategyOracleJudge = "oracle_judge"
)

type Thresholds struct {
	Low    float64
	Review float64
}

type VoterSettings struct {
	Count            int
	Bonus            float64
	MaxConfidence    float64
	AmbiguousBand    float64
	Strategy         string
	Parallel         bool
	DraftForCritical bool
}

// OracleBudget is the per-stage sampling configuration.
type OracleBudget struct {
	Temperature float64
	MaxTokens   int
}

type Settings struct {
	Thresholds           Thresholds
	Weights              models.Weights
	ShapeSaturationWords int
	DegradedCeiling      float64
	MaxAnswerChars       int
	MaxFeatures          int
	MaxSpecs             int
	MaxValueChars        int
	Voter                VoterSettings

	CriticalTopics       map[models.CriticalCategory][]string
	ProductSearchPhrases []string
	ComparisonPhrases    []string

	Classify OracleBudget
	Extract  OracleBudget
	Reason   OracleBudget
	Validate OracleBudget
}

// DefaultCriticalTopics is the built-in safety vocabulary. It is a floor: configured
// vocabularies are merged into it, never substituted for it.
func DefaultCriticalTopics() map[models.CriticalCategory][]string {
	return map[models.CriticalCategory][]string{
		models.CategoryElectrical: {
			"voltage", "volt", "volts", "bivolt", "transformer", "adapter plug", "power supply",
			"short circuit", "shock", "electric shock", "wiring", "grounding", "outlet", "wall socket", "power socket",
			"overheat", "overheats", "overheating", "battery fire", "tensao", "voltagem", "transformador",
			"choque", "curto circuito", "tomada",
		},
		models.CategoryPhysical: {
			"max load", "maximum load", "weight capacity", "weight limit", "supports how much",
			"will it break", "break under", "collapse", "sharp edge", "sharp edges", "choking", "choking hazard",
			"catch fire", "fire hazard", "flammable", "burn hazard", "burn my", "burn the skin",
			"explode", "child safe", "safe for kids", "safe for children", "injury", "carga maxima",
			"aguenta", "suporta quanto", "inflamavel", "queimar",
		},
		models.CategoryHealth: {
			"allergy", "allergic", "allergen", "gluten", "lactose", "latex", "tree nut", "tree nuts", "nut free", "peanut",
			"bpa", "toxic", "non toxic", "food safe", "food grade", "pregnant", "pregnancy",
			"medical", "medication", "skin irritation", "hypoallergenic", "alergia", "alergico",
			"toxico", "gravida", "remedio",
		},
		models.CategoryLegal: {
			"certified", "certification", "certificate", "anatel", "inmetro", "anvisa", "fcc",
			"ce mark", "ul listed", "is it legal", "street legal", "legal to use", "license", "licensed", "warranty void",
			"homologado", "homologacao", "certificado",
		},
	}
}

// DefaultProductSearchPhrases are purchase-intent openers that ask for a different product.
func DefaultProductSearchPhrases() []string {
	return []string{
		"do you have", "do you sell", "do you carry", "do you stock", "is there another",
		"any other model", "tem outro", "tem outra", "voce tem", "vende", "vendem",
	}
}

// DefaultComparisonPhrases mark compatibility or comparison questions about the listed product.
func DefaultComparisonPhrases() []string {
	return []string{
		"compared to", "compare", "compatible with", "compatible", "vs", "versus",
		"difference between", "better than", "works with", "fits", "compativel", "serve no",
		"diferenca entre", "melhor que",
	}
}

func DefaultSettings() Settings {
	return Settings{
		Thresholds: Thresholds{Low: 70, Review: 85},
		Weights: models.Weights{
			Model:        0.5,
			Completeness: 0.2,
			Shape:        0.1,
			Coherence:    0.2,
		},
		ShapeSaturationWords: 20,
		DegradedCeiling:      40,
		MaxAnswerChars:       350,
		MaxFeatures:          10,
		MaxSpecs:             25,
		MaxValueChars:        200,
		Voter: VoterSettings{
			Count:            3,
			Bonus:            10,
			MaxConfidence:    95,
			AmbiguousBand:    10,
			Strategy:         StrategyAgreement,
			Parallel:         true,
			DraftForCritical: true,
		},
		CriticalTopics:       DefaultCriticalTopics(),
		ProductSearchPhrases: DefaultProductSearchPhrases(),
		ComparisonPhrases:    DefaultComparisonPhrases(),
		Classify:             OracleBudget{Temperature: 0, MaxTokens: 200},
		Extract:              OracleBudget{Temperature: 0, MaxTokens: 600},
		Reason:               OracleBudget{Temperature: 0.2, MaxTokens: 500},
		Validate:             OracleBudget{Temperature: 0, MaxTokens: 200},
	}
}

// MergeCriticalTopics adds extra phrases to the defaults without dropping any default entry.
func MergeCriticalTopics(extra map[models.CriticalCategory][]string) map[models.CriticalCategory][]string {
	merged := DefaultCriticalTopics()
	for cat, phrases := range extra {
		seen := make(map[string]bool, len(merged[cat]))
		for _, p := range merged[cat] {
			seen[p] = true
		}
		for _, p := range phrases {
			if !seen[p] {
				merged[cat] = append(merged[cat], p)
				seen[p] = true
			}
		}
	}
	return merged
}

// InAmbiguousBand reports whether score sits close enough to the low threshold to warrant a vote.
func (s Settings) InAmbiguousBand(score float64) bool {
	return score >= s.Thresholds.Low-s.Voter.AmbiguousBand && score < s.Thresholds.Low+s.Voter.AmbiguousBand
}

// Check reports the first setting that would make routing inconsistent.
func (s Settings) Check() error {
	if math.Abs(s.Weights.Sum()-1) > 1e-6 {
		return fmt.Errorf("answering.weights must sum to 1, got %.4f", s.Weights.Sum())
	}
	for name, w := range map[string]float64{
		"model": s.Weights.Model, "completeness": s.Weights.Completeness,
		"shape": s.Weights.Shape, "coherence": s.Weights.Coherence,
	} {
		if w < 0 {
			return fmt.Errorf("answering.weights.%s must not be negative", name)
		}
	}
	if s.Thresholds.Low < 0 || s.Thresholds.Review > 100 || s.Thresholds.Low > s.Thresholds.Review {
		return fmt.Errorf("answering.thresholds must satisfy 0 <= low <= review <= 100, got low=%.1f review=%.1f",
			s.Thresholds.Low, s.Thresholds.Review)
	}
	if s.Voter.Count < 1 {
		return fmt.Errorf("answering.voter.count must be at least 1")
	}
	if s.Voter.MaxConfidence <= 0 || s.Voter.MaxConfidence >= 100 {
		return fmt.Errorf("answering.voter.max_confidence must be in (0,100)")
	}
	if s.Voter.Strategy != StrategyAgreement && s.Voter.Strategy != StrategyOracleJudge {
		return fmt.Errorf("answering.voter.strategy %q is not supported", s.Voter.Strategy)
	}
	if s.ShapeSaturationWords < 1 {
		return fmt.Errorf("answering.shape_saturation_words must be positive")
	}
	if s.DegradedCeiling < 0 || s.DegradedCeiling > 100 {
		return fmt.Errorf("answering.degraded_ceiling must be in [0,100]")
	}
	return nil
}
