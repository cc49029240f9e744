// internal/models/reasoning.go
package models

// Fault tags carried by stage results when the oracle could not be used.
const (
	FaultOracleTimeout     = "oracle_timeout"
	FaultOracleUnavailable = "oracle_unavailable"
	FaultMalformedOutput   = "malformed_output"
)

// ReasoningResult is replaced as a whole on regeneration, never patched.
type ReasoningResult struct {
	AnswerText     string  `json:"answerText"`
	SelfConfidence int     `json:"selfConfidence"`
	Rationale      string  `json:"rationale,omitempty"`
	Temperature    float64 `json:"temperature"`
	Fault          string  `json:"fault,omitempty"`
}

// ValidationResult is the Validator output. Score is in [0,100].
type ValidationResult struct {
	Coherent     bool     `json:"coherent"`
	Issues       []string `json:"issues,omitempty"`
	Score        float64  `json:"score"`
	Inconclusive bool     `json:"inconclusive"`
	Fault        string   `json:"fault,omitempty"`
}

// Validation issue tags.
const (
	IssueContradiction  = "contradiction"
	IssueTypeIncoherent = "type_incoherent"
	IssueTone           = "tone"
	IssueEmptyAnswer    = "empty_answer"
)

// Weights of the confidence aggregation. They must sum to 1.
type Weights struct {
	Model        float64 `json:"model" mapstructure:"model"`
	Completeness float64 `json:"completeness" mapstructure:"completeness"`
	Shape        float64 `json:"shape" mapstructure:"shape"`
	Coherence    float64 `json:"coherence" mapstructure:"coherence"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Model + w.Completeness + w.Shape + w.Coherence
}

// ConfidenceBreakdown is derived and read-only once computed.
type ConfidenceBreakdown struct {
	ModelScore        float64 `json:"modelScore"`
	CompletenessScore float64 `json:"completenessScore"`
	ShapeScore        float64 `json:"shapeScore"`
	CoherenceScore    float64 `json:"coherenceScore"`
	Weights           Weights `json:"weights"`
	FinalScore        float64 `json:"finalScore"`
	Ceiling           float64 `json:"ceiling,omitempty"`
}

// Capped returns a copy with FinalScore limited to max.
func (b ConfidenceBreakdown) Capped(max float64) ConfidenceBreakdown {
	if b.FinalScore > max {
		b.FinalScore = max
		b.Ceiling = max
	}
	return b
}
