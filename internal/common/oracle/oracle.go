// Package oracle abstracts the text-generation service the pipeline reasons with.
package oracle

import (
	"context"
	"errors"
)

// Oracle generates text for a prompt. Implementations must honor ctx cancellation.
type Oracle interface {
	Invoke(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)

func (f Func) Invoke(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	return f(ctx, prompt, temperature, maxTokens)
}

var ErrEmptyResponse = errors.New("oracle returned an empty response")

// PermanentError marks a provider failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent oracle failure: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the resilient wrapper stops retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func isPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

type stageKey struct{}

// WithStage labels oracle calls made with ctx for logs and metrics.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey{}, stage)
}

// StageFrom returns the stage label of ctx, or "unknown".
func StageFrom(ctx context.Context) string {
	if s, ok := ctx.Value(stageKey{}).(string); ok && s != "" {
		return s
	}
	return "unknown"
}
