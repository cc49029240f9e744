// internal/workers/marketplace/post-answer/models.go
package postanswer

type Input struct {
	QuestionID string `json:"questionId"`
	AnswerText string `json:"answerText"`
}

type Output struct {
	Posted   bool   `json:"posted"`
	PostedAt string `json:"postedAt"`
}

type answerRequest struct {
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
}
