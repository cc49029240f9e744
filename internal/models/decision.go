// internal/models/decision.go
package models

import "time"

// Action is the terminal routing outcome of a question.
type Action string

const (
	ActionAutoAnswer    Action = "auto_answer"
	ActionAnswerAndFlag Action = "answer_and_flag"
	ActionEscalate      Action = "escalate"
)

// Decision reason tags.
const (
	ReasonProductSearch          = "product_search"
	ReasonCriticalTopicPrefix    = "critical_topic:"
	ReasonLowConfidence          = "low_confidence"
	ReasonNeedsReview            = "needs_review"
	ReasonHighConfidence         = "high_confidence"
	ReasonTopicFallback          = "topic_fallback"
	ReasonContextAbsent          = "context_absent"
	ReasonValidationInconclusive = "validation_inconclusive"
	ReasonConsistencyVote        = "consistency_vote"
)

// CriticalReason builds the reason tag for a critical category.
func CriticalReason(c CriticalCategory) string {
	if c == CategoryNone {
		return ReasonCriticalTopicPrefix + "unspecified"
	}
	return ReasonCriticalTopicPrefix + string(c)
}

// Decision is the finalized outcome handed to delivery and escalation.
// Answer is set iff Action != ActionEscalate.
type Decision struct {
	ID             string               `json:"id"`
	QuestionID     string               `json:"questionId"`
	Action         Action               `json:"action"`
	Answer         *string              `json:"answer,omitempty"`
	Confidence     float64              `json:"confidence"`
	Reasons        []string             `json:"reasons"`
	Classification TopicClassification  `json:"classification"`
	Breakdown      *ConfidenceBreakdown `json:"breakdown,omitempty"`
	SuggestedDraft string               `json:"suggestedDraft,omitempty"`
	DecidedAt      time.Time            `json:"decidedAt"`
}

// HasAnswer reports whether the decision carries an answer for delivery.
func (d *Decision) HasAnswer() bool {
	return d != nil && d.Answer != nil
}

// AnswerText returns the answer or an empty string.
func (d *Decision) AnswerText() string {
	if !d.HasAnswer() {
		return ""
	}
	return *d.Answer
}

// HasReason reports whether tag is among the decision reasons.
func (d *Decision) HasReason(tag string) bool {
	for _, r := range d.Reasons {
		if r == tag {
			return true
		}
	}
	return false
}
