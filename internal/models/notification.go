// internal/models/notification.go
package models

// EscalationNotice is what human reviewers receive for escalated and flagged questions.
type EscalationNotice struct {
	ID         string   `json:"id"`
	QuestionID string   `json:"questionId"`
	ProductRef string   `json:"productRef"`
	Question   string   `json:"question"`
	Action     Action   `json:"action"`
	Reasons    []string `json:"reasons"`
	Confidence float64  `json:"confidence"`
	Answer     string   `json:"answer,omitempty"`
	Draft      string   `json:"draft,omitempty"`
	DecidedAt  string   `json:"decidedAt"`
}
