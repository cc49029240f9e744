// internal/workers/answering/answer-question/models.go
package answerquestion

import "qa-autoresponder/internal/models"

type Input struct {
	Question models.Question `json:"question"`
}

// Output carries the decision plus the action and answer flattened for gateway conditions.
type Output struct {
	Decision   models.Decision `json:"decision"`
	Action     models.Action   `json:"action"`
	AnswerText string          `json:"answerText,omitempty"`
	Dispatched bool            `json:"dispatched"`
}
