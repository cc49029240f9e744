// internal/workers/answering/answer-question/config.go
package answerquestion

import "time"

type Config struct {
	Timeout time.Duration
	// InlineDispatch posts the answer and notifies reviewers from this job instead of
	// leaving it to the post-answer and notify-escalation tasks.
	InlineDispatch bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 120 * time.Second,
	}
}
