// internal/common/oracle/resilient.go
package oracle

import (
	"context"
	"errors"
	"time"

	apperrors "qa-autoresponder/internal/common/errors"
	"qa-autoresponder/internal/common/logger"
	"qa-autoresponder/internal/models"
)

// Call outcomes reported to the observer.
const (
	OutcomeOK        = "ok"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

type Options struct {
	Timeout    time.Duration // per attempt; zero leaves the deadline to the caller
	MaxRetries int
	BaseDelay  time.Duration
	Observe    func(stage, outcome string)
}

// Resilient bounds every call with a timeout and retries transient failures with
// exponential backoff. Exhaustion yields ORACLE_TIMEOUT or ORACLE_UNAVAILABLE. When the
// caller's context ends, its error is returned unchanged.
type Resilient struct {
	inner  Oracle
	opts   Options
	logger logger.Logger
}

func NewResilient(inner Oracle, opts Options, log logger.Logger) *Resilient {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 100 * time.Millisecond
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Observe == nil {
		opts.Observe = func(string, string) {}
	}
	return &Resilient{
		inner:  inner,
		opts:   opts,
		logger: log.WithFields(map[string]interface{}{"component": "oracle"}),
	}
}

func (r *Resilient) Invoke(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	stage := StageFrom(ctx)
	var lastErr error
	timedOut := false
	attempts := 0

	for attempt := 0; attempt <= r.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := r.opts.BaseDelay * time.Duration(1<<(attempt-1))
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				r.opts.Observe(stage, OutcomeCancelled)
				return "", ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			r.opts.Observe(stage, OutcomeCancelled)
			return "", err
		}

		attempts++
		text, callTimedOut, err := r.attempt(ctx, prompt, temperature, maxTokens)
		if err == nil {
			r.opts.Observe(stage, OutcomeOK)
			return text, nil
		}
		if ctx.Err() != nil {
			r.opts.Observe(stage, OutcomeCancelled)
			return "", ctx.Err()
		}

		lastErr = err
		timedOut = callTimedOut
		if timedOut {
			r.opts.Observe(stage, OutcomeTimeout)
		} else {
			r.opts.Observe(stage, OutcomeError)
		}
		r.logger.Warn("oracle call failed", map[string]interface{}{
			"stage":   stage,
			"attempt": attempts,
			"timeout": timedOut,
			"error":   err,
		})

		if isPermanent(err) {
			break
		}
	}

	if timedOut {
		return "", apperrors.NewOracleTimeoutError(stage, attempts)
	}
	return "", apperrors.NewOracleUnavailableError(stage, lastErr)
}

func (r *Resilient) attempt(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, bool, error) {
	callCtx := ctx
	cancel := func() {}
	if r.opts.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
	}
	defer cancel()

	text, err := r.inner.Invoke(callCtx, prompt, temperature, maxTokens)
	if err == nil {
		return text, false, nil
	}
	timedOut := errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded
	return "", timedOut, err
}

// Fault maps an oracle error to the fault tag stage results carry.
func Fault(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, apperrors.ErrOracleTimeout), errors.Is(err, context.DeadlineExceeded):
		return models.FaultOracleTimeout
	default:
		return models.FaultOracleUnavailable
	}
}
