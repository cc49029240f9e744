package camunda

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"qa-autoresponder/internal/common/config"
	"qa-autoresponder/internal/common/logger"
)

func TestIsRetryableZeebeError(t *testing.T) {
	tests := []struct {
		err       string
		retryable bool
	}{
		{"rpc error: code = Unavailable desc = connection refused", true},
		{"context deadline exceeded", true},
		{"dial tcp: lookup zeebe: no such host", true},
		{"rpc error: code = PermissionDenied", false},
		{"invalid gateway address", false},
	}
	for _, tt := range tests {
		t.Run(tt.err, func(t *testing.T) {
			assert.Equal(t, tt.retryable, isRetryableZeebeError(errors.New(tt.err)))
		})
	}
}

func TestBackoff(t *testing.T) {
	cfg := &RetryConfig{BaseDelay: time.Second, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, backoff(cfg, 0))
	assert.Equal(t, 2*time.Second, backoff(cfg, 1))
	assert.Equal(t, 4*time.Second, backoff(cfg, 2))
	assert.Equal(t, 5*time.Second, backoff(cfg, 3))
	assert.Equal(t, 5*time.Second, backoff(cfg, 40))
}

func TestStartWorker_Disabled(t *testing.T) {
	w := StartWorker(nil, "answer-question", config.WorkerConfig{Enabled: false}, nil, logger.NewTestLogger(t))

	assert.Nil(t, w)
	w.Stop()
}
