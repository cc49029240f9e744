package postanswer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "qa-autoresponder/internal/common/errors"
	commonhttp "qa-autoresponder/internal/common/http"
	"qa-autoresponder/internal/common/logger"
	"qa-autoresponder/internal/common/validation"
	"qa-autoresponder/pkg/registry"
)

// ==========================
// Test Helper Functions
// ==========================

type posterFunc func(ctx context.Context, questionID, answerText string) error

func (f posterFunc) Post(ctx context.Context, questionID, answerText string) error {
	return f(ctx, questionID, answerText)
}

func createTestHandler(t *testing.T, poster Poster) *Handler {
	t.Helper()
	schema, err := validation.NewRegistryValidator(registry.Default())
	require.NoError(t, err)
	h := NewHandler(LoadConfig(), poster, schema, logger.NewTestLogger(t))
	h.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return h
}

// ==========================
// Client
// ==========================

func TestClient_Post(t *testing.T) {
	var got answerRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/questions/Q%2F1/answers", r.URL.EscapedPath())
		assert.Equal(t, "token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", commonhttp.NewClient(time.Second).WithHeader("Authorization", "token"))

	require.NoError(t, client.Post(context.Background(), "Q/1", "It is black."))
	assert.Equal(t, "It is black.", got.Text)
	assert.Equal(t, "Q/1", got.QuestionID)
}

func TestClient_Post_Statuses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"already answered", http.StatusConflict, false},
		{"server error", http.StatusBadGateway, true},
		{"rejected", http.StatusUnprocessableEntity, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := NewClient(server.URL, commonhttp.NewClient(time.Second)).Post(context.Background(), "Q1", "yes")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// ==========================
// Handler
// ==========================

func TestHandler_ParseInput(t *testing.T) {
	h := createTestHandler(t, posterFunc(nil))

	input, err := h.ParseInput(`{"questionId":"Q1","answerText":"It is black."}`)
	require.NoError(t, err)
	assert.Equal(t, "Q1", input.QuestionID)

	for _, bad := range []string{`{"questionId":"Q1"}`, `{"questionId":"","answerText":"x"}`, `nope`} {
		_, err := h.ParseInput(bad)
		code, ok := apperrors.CodeOf(err)
		require.True(t, ok, bad)
		assert.Equal(t, apperrors.ErrCodeInvalidQuestion, code, bad)
	}
}

func TestHandler_Execute_Success(t *testing.T) {
	var posts int32
	h := createTestHandler(t, posterFunc(func(ctx context.Context, questionID, answerText string) error {
		atomic.AddInt32(&posts, 1)
		assert.Equal(t, "It is black.", answerText)
		return nil
	}))

	out, err := h.Execute(context.Background(), &Input{QuestionID: "Q1", AnswerText: " It is black. "})

	require.NoError(t, err)
	assert.True(t, out.Posted)
	assert.Equal(t, "2026-03-01T12:00:00Z", out.PostedAt)
	assert.Equal(t, int32(1), atomic.LoadInt32(&posts))
}

func TestHandler_Execute_DeliveryFailure(t *testing.T) {
	h := createTestHandler(t, posterFunc(func(ctx context.Context, questionID, answerText string) error {
		return &commonhttp.StatusError{StatusCode: http.StatusServiceUnavailable}
	}))

	_, err := h.Execute(context.Background(), &Input{QuestionID: "Q1", AnswerText: "yes"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAnswerDeliveryFailed))
	assert.True(t, apperrors.Normalize(err).Retryable)
}

func TestHandler_Execute_BlankAnswer(t *testing.T) {
	called := false
	h := createTestHandler(t, posterFunc(func(ctx context.Context, questionID, answerText string) error {
		called = true
		return nil
	}))

	_, err := h.Execute(context.Background(), &Input{QuestionID: "Q1", AnswerText: "   "})

	assert.True(t, errors.Is(err, apperrors.ErrInvalidQuestion))
	assert.False(t, called)
}
