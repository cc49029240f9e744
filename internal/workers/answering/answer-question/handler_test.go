package answerquestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qa-autoresponder/internal/answering"
	"qa-autoresponder/internal/answering/confidence"
	"qa-autoresponder/internal/answering/pipeline"
	"qa-autoresponder/internal/answering/productcontext"
	"qa-autoresponder/internal/answering/reasoner"
	"qa-autoresponder/internal/answering/topic"
	"qa-autoresponder/internal/answering/validator"
	"qa-autoresponder/internal/answering/voter"
	"qa-autoresponder/internal/common/decisions"
	apperrors "qa-autoresponder/internal/common/errors"
	"qa-autoresponder/internal/common/logger"
	"qa-autoresponder/internal/common/oracle/oracletest"
	"qa-autoresponder/internal/common/validation"
	"qa-autoresponder/internal/models"
	"qa-autoresponder/pkg/registry"
)

// ==========================
// Test Helper Functions
// ==========================

type processorFunc func(ctx context.Context, q models.Question) (*models.Decision, error)

func (f processorFunc) Process(ctx context.Context, q models.Question) (*models.Decision, error) {
	return f(ctx, q)
}

type recordingDispatcher struct {
	dispatched []string
	err        error
}

func (r *recordingDispatcher) Dispatch(ctx context.Context, q models.Question, d *models.Decision) error {
	r.dispatched = append(r.dispatched, q.ID)
	return r.err
}

func autoAnswer(q models.Question) *models.Decision {
	answer := "It is black."
	return &models.Decision{
		ID:         "d-" + q.ID,
		QuestionID: q.ID,
		Action:     models.ActionAutoAnswer,
		Answer:     &answer,
		Confidence: 92,
		Reasons:    []string{models.ReasonHighConfidence},
	}
}

func createTestHandler(t *testing.T, config *Config, engine Processor, dispatcher Dispatcher) *Handler {
	t.Helper()
	if config == nil {
		config = LoadConfig()
	}
	schema, err := validation.NewRegistryValidator(registry.Default())
	require.NoError(t, err)
	return NewHandler(config, engine, dispatcher, schema, logger.NewTestLogger(t))
}

func codeOf(t *testing.T, err error) apperrors.ErrorCode {
	t.Helper()
	code, ok := apperrors.CodeOf(err)
	require.True(t, ok, "expected a coded error, got %v", err)
	return code
}

// ==========================
// Input Parsing
// ==========================

func TestHandler_ParseInput(t *testing.T) {
	h := createTestHandler(t, nil, processorFunc(nil), nil)

	tests := []struct {
		name      string
		variables string
		wantErr   bool
	}{
		{
			name:      "valid question",
			variables: `{"question":{"id":"q-1","text":"What color is it?","productRef":"MLB1","locale":"en"}}`,
		},
		{
			name:      "extra process variables are ignored",
			variables: `{"question":{"id":"q-1","text":"Is it dimmable?"},"correlationKey":"abc"}`,
		},
		{
			name:      "missing text",
			variables: `{"question":{"id":"q-1"}}`,
			wantErr:   true,
		},
		{
			name:      "empty id",
			variables: `{"question":{"id":"","text":"Is it dimmable?"}}`,
			wantErr:   true,
		},
		{
			name:      "missing question",
			variables: `{"questionId":"q-1"}`,
			wantErr:   true,
		},
		{
			name:      "not json",
			variables: `{question`,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := h.ParseInput(tt.variables)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperrors.ErrCodeInvalidQuestion, codeOf(t, err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "q-1", input.Question.ID)
		})
	}
}

// ==========================
// Execute
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	var seen models.Question
	engine := processorFunc(func(ctx context.Context, q models.Question) (*models.Decision, error) {
		seen = q
		return autoAnswer(q), nil
	})
	h := createTestHandler(t, nil, engine, nil)

	out, err := h.Execute(context.Background(), &Input{Question: models.Question{ID: "q-1", Text: "  What color is it?  "}})

	require.NoError(t, err)
	assert.Equal(t, "What color is it?", seen.Text)
	assert.Equal(t, models.ActionAutoAnswer, out.Action)
	assert.Equal(t, "It is black.", out.AnswerText)
	assert.Equal(t, "q-1", out.Decision.QuestionID)
	assert.False(t, out.Dispatched)
}

func TestHandler_Execute_BlankText(t *testing.T) {
	called := false
	engine := processorFunc(func(ctx context.Context, q models.Question) (*models.Decision, error) {
		called = true
		return nil, nil
	})
	h := createTestHandler(t, nil, engine, nil)

	_, err := h.Execute(context.Background(), &Input{Question: models.Question{ID: "q-1", Text: "   "}})

	assert.Equal(t, apperrors.ErrCodeInvalidQuestion, codeOf(t, err))
	assert.False(t, called)
}

func TestHandler_Execute_EngineError(t *testing.T) {
	engine := processorFunc(func(ctx context.Context, q models.Question) (*models.Decision, error) {
		return nil, apperrors.NewDecisionStoreFailedError("get", errors.New("redis down"))
	})
	h := createTestHandler(t, nil, engine, nil)

	_, err := h.Execute(context.Background(), &Input{Question: models.Question{ID: "q-1", Text: "Is it dimmable?"}})

	assert.Equal(t, apperrors.ErrCodeDecisionStoreFailed, codeOf(t, err))
}

func TestHandler_Execute_InlineDispatch(t *testing.T) {
	engine := processorFunc(func(ctx context.Context, q models.Question) (*models.Decision, error) {
		return autoAnswer(q), nil
	})

	t.Run("dispatches when enabled", func(t *testing.T) {
		dispatcher := &recordingDispatcher{}
		h := createTestHandler(t, &Config{Timeout: time.Second, InlineDispatch: true}, engine, dispatcher)

		out, err := h.Execute(context.Background(), &Input{Question: models.Question{ID: "q-1", Text: "What color?"}})

		require.NoError(t, err)
		assert.True(t, out.Dispatched)
		assert.Equal(t, []string{"q-1"}, dispatcher.dispatched)
	})

	t.Run("skips when disabled", func(t *testing.T) {
		dispatcher := &recordingDispatcher{}
		h := createTestHandler(t, &Config{Timeout: time.Second}, engine, dispatcher)

		out, err := h.Execute(context.Background(), &Input{Question: models.Question{ID: "q-1", Text: "What color?"}})

		require.NoError(t, err)
		assert.False(t, out.Dispatched)
		assert.Empty(t, dispatcher.dispatched)
	})

	t.Run("delivery failure fails the job", func(t *testing.T) {
		dispatcher := &recordingDispatcher{err: apperrors.NewAnswerDeliveryFailedError("q-1", errors.New("502"))}
		h := createTestHandler(t, &Config{Timeout: time.Second, InlineDispatch: true}, engine, dispatcher)

		_, err := h.Execute(context.Background(), &Input{Question: models.Question{ID: "q-1", Text: "What color?"}})

		assert.Equal(t, apperrors.ErrCodeAnswerDeliveryFailed, codeOf(t, err))
	})
}

// ==========================
// Pipeline Integration
// ==========================

type emptyCatalog struct{}

func (emptyCatalog) Fetch(ctx context.Context, productRef string) (*models.RawProduct, error) {
	return nil, nil
}

func TestHandler_Execute_WithPipeline(t *testing.T) {
	o := oracletest.New().
		On(topic.Marker, "PRODUCT_SEARCH: no\nCRITICAL: no\nCATEGORY: none\nCONFIDENCE: 90\nREASONING: ordinary").
		On(reasoner.Marker, "ANSWER: It comes in several colors, pick the one you like.\nCONFIDENCE: 100").
		On(validator.Marker, "CONTRADICTION: no\nTYPE_COHERENT: yes\nTONE_OK: yes\nISSUES: none")

	s := answering.DefaultSettings()
	log := logger.NewTestLogger(t)
	r := reasoner.New(o, s, log)
	engine := pipeline.NewEngine(decisions.NewMemoryStore(), pipeline.Components{
		Classifier: topic.NewDetector(o, s, log),
		Builder:    productcontext.NewBuilder(emptyCatalog{}, o, s, log),
		Reasoner:   r,
		Validator:  validator.New(o, s, log),
		Aggregator: confidence.NewAggregator(s),
		Voter:      voter.New(r, nil, s, log),
	}, s, log)

	h := createTestHandler(t, nil, engine, nil)
	input, err := h.ParseInput(`{"question":{"id":"q-ghost","text":"What color is it?","productRef":"MLB-GONE"}}`)
	require.NoError(t, err)

	out, err := h.Execute(context.Background(), input)

	require.NoError(t, err)
	assert.Equal(t, models.ActionEscalate, out.Action)
	assert.Empty(t, out.AnswerText)
	assert.Contains(t, out.Decision.Reasons, models.ReasonContextAbsent)
	assert.Less(t, out.Decision.Confidence, s.Thresholds.Low)
	assert.Zero(t, o.CallsMatching(productcontext.Marker))
}
