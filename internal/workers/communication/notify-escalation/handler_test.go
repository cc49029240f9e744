package notifyescalation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "qa-autoresponder/internal/common/errors"
	"qa-autoresponder/internal/common/logger"
	"qa-autoresponder/internal/common/validation"
	"qa-autoresponder/internal/models"
	"qa-autoresponder/pkg/registry"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	mu     sync.Mutex
	inputs []*ses.SendEmailInput
	err    error
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

type MockSNSService struct {
	mu     sync.Mutex
	inputs []*sns.PublishInput
	err    error
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sns.PublishOutput{MessageId: aws.String("sns-1")}, nil
}

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{
		EmailEnabled: true,
		FromEmail:    "noreply@example.com",
		Recipients:   []string{"reviewers@example.com"},
		SNSEnabled:   true,
		TopicARN:     "arn:aws:sns:us-east-1:123456789012:qa-escalations",
		Timeout:      time.Second,
	}
}

func createTestNotifier(t *testing.T, config *Config, sesSvc SESService, snsSvc SNSService) *Notifier {
	t.Helper()
	n := NewNotifier(config, sesSvc, snsSvc, logger.NewTestLogger(t))
	n.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return n
}

func escalated() (models.Question, models.Decision) {
	q := models.Question{ID: "q-volt", Text: "Can I plug it into 220V?", ProductRef: "MLB-LAMP"}
	d := models.Decision{
		ID:             "d-1",
		QuestionID:     q.ID,
		Action:         models.ActionEscalate,
		Reasons:        []string{"critical_topic:electrical_safety"},
		SuggestedDraft: "The label says 110V only.",
		DecidedAt:      time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC),
	}
	return q, d
}

func flagged() (models.Question, models.Decision) {
	answer := "It weighs 1.2 kg."
	q := models.Question{ID: "q-weight", Text: "How heavy is it?", ProductRef: "MLB-LAMP"}
	d := models.Decision{
		ID:         "d-2",
		QuestionID: q.ID,
		Action:     models.ActionAnswerAndFlag,
		Answer:     &answer,
		Confidence: 78,
		Reasons:    []string{models.ReasonNeedsReview},
	}
	return q, d
}

// ==========================
// Notifier
// ==========================

func TestNotice(t *testing.T) {
	q, d := escalated()
	n := Notice(q, d, d.Reasons)

	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "q-volt", n.QuestionID)
	assert.Equal(t, models.ActionEscalate, n.Action)
	assert.Empty(t, n.Answer)
	assert.Equal(t, "The label says 110V only.", n.Draft)
	assert.Equal(t, "2026-03-01T11:59:00Z", n.DecidedAt)

	d.Reasons[0] = "mutated"
	assert.Equal(t, "critical_topic:electrical_safety", n.Reasons[0])
}

func TestNotifier_Send_BothChannels(t *testing.T) {
	sesSvc, snsSvc := &MockSESService{}, &MockSNSService{}
	n := createTestNotifier(t, createTestConfig(), sesSvc, snsSvc)
	q, d := escalated()

	out, err := n.Send(context.Background(), Notice(q, d, d.Reasons))

	require.NoError(t, err)
	assert.Equal(t, StatusSent, out.Status)
	assert.Equal(t, []string{ChannelEmail, ChannelSNS}, out.Channels)
	assert.Equal(t, "2026-03-01T12:00:00Z", out.SentAt)

	require.Len(t, sesSvc.inputs, 1)
	email := sesSvc.inputs[0]
	assert.Equal(t, []string{"reviewers@example.com"}, email.Destination.ToAddresses)
	assert.Equal(t, "[escalated] buyer question q-volt", *email.Message.Subject.Data)
	body := *email.Message.Body.Text.Data
	assert.Contains(t, body, "Can I plug it into 220V?")
	assert.Contains(t, body, "critical_topic:electrical_safety")
	assert.Contains(t, body, "Suggested draft (not posted)")
	assert.NotContains(t, body, "Answer posted to the buyer")

	require.Len(t, snsSvc.inputs, 1)
	published := snsSvc.inputs[0]
	assert.Equal(t, createTestConfig().TopicARN, *published.TopicArn)
	assert.Equal(t, "escalate", *published.MessageAttributes["action"].StringValue)

	var notice models.EscalationNotice
	require.NoError(t, json.Unmarshal([]byte(*published.Message), &notice))
	assert.Equal(t, "q-volt", notice.QuestionID)
	assert.Equal(t, out.NotificationID, notice.ID)
}

func TestNotifier_Send_FlaggedAnswerInBody(t *testing.T) {
	sesSvc := &MockSESService{}
	cfg := createTestConfig()
	cfg.SNSEnabled = false
	n := createTestNotifier(t, cfg, sesSvc, nil)
	q, d := flagged()

	out, err := n.Send(context.Background(), Notice(q, d, d.Reasons))

	require.NoError(t, err)
	assert.Equal(t, []string{ChannelEmail}, out.Channels)
	require.Len(t, sesSvc.inputs, 1)
	assert.True(t, strings.HasPrefix(*sesSvc.inputs[0].Message.Subject.Data, "[review]"))
	body := *sesSvc.inputs[0].Message.Body.Text.Data
	assert.Contains(t, body, "Answer posted to the buyer:\n  It weighs 1.2 kg.")
	assert.Contains(t, body, "Confidence: 78")
}

func TestNotifier_Send_PartialFailureSucceeds(t *testing.T) {
	sesSvc := &MockSESService{err: errors.New("throttled")}
	snsSvc := &MockSNSService{}
	n := createTestNotifier(t, createTestConfig(), sesSvc, snsSvc)
	q, d := escalated()

	out, err := n.Send(context.Background(), Notice(q, d, d.Reasons))

	require.NoError(t, err)
	assert.Equal(t, StatusSent, out.Status)
	assert.Equal(t, []string{ChannelSNS}, out.Channels)
}

func TestNotifier_Send_AllChannelsFail(t *testing.T) {
	n := createTestNotifier(t, createTestConfig(),
		&MockSESService{err: errors.New("throttled")},
		&MockSNSService{err: errors.New("topic missing")})
	q, d := escalated()

	out, err := n.Send(context.Background(), Notice(q, d, d.Reasons))

	require.Error(t, err)
	assert.Equal(t, StatusFailed, out.Status)
	assert.True(t, errors.Is(err, apperrors.ErrNotificationSendFailed))
	assert.Equal(t, apperrors.ErrCodeNotificationSendFailed, apperrors.Normalize(err).Code)
}

func TestNotifier_Send_Disabled(t *testing.T) {
	sesSvc, snsSvc := &MockSESService{}, &MockSNSService{}
	n := createTestNotifier(t, &Config{Timeout: time.Second}, sesSvc, snsSvc)
	q, d := escalated()

	out, err := n.Send(context.Background(), Notice(q, d, d.Reasons))

	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, out.Status)
	assert.Empty(t, sesSvc.inputs)
	assert.Empty(t, snsSvc.inputs)
}

func TestNotifier_Notify(t *testing.T) {
	snsSvc := &MockSNSService{}
	cfg := createTestConfig()
	cfg.EmailEnabled = false
	n := createTestNotifier(t, cfg, nil, snsSvc)
	q, d := flagged()

	require.NoError(t, n.Notify(context.Background(), q, d, d.Reasons))
	assert.Len(t, snsSvc.inputs, 1)
}

// ==========================
// Handler
// ==========================

func createTestHandler(t *testing.T, sesSvc SESService, snsSvc SNSService) *Handler {
	t.Helper()
	schema, err := validation.NewRegistryValidator(registry.Default())
	require.NoError(t, err)
	cfg := createTestConfig()
	return NewHandler(cfg, createTestNotifier(t, cfg, sesSvc, snsSvc), schema, logger.NewTestLogger(t))
}

func TestHandler_ParseInput(t *testing.T) {
	h := createTestHandler(t, &MockSESService{}, &MockSNSService{})

	input, err := h.ParseInput(`{
		"question": {"id": "q-1", "text": "Is it safe for kids?", "productRef": "MLB1"},
		"decision": {"questionId": "q-1", "action": "escalate", "confidence": 0, "reasons": ["critical_topic:physical_safety"]}
	}`)
	require.NoError(t, err)
	assert.Equal(t, models.ActionEscalate, input.Decision.Action)
	assert.Equal(t, []string{"critical_topic:physical_safety"}, input.Decision.Reasons)

	_, err = h.ParseInput(`{"question": {"id": "q-1", "text": "x"}, "decision": {"action": "ignore"}}`)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidQuestion))
}

func TestHandler_Execute(t *testing.T) {
	t.Run("escalation is sent", func(t *testing.T) {
		sesSvc := &MockSESService{}
		h := createTestHandler(t, sesSvc, &MockSNSService{})
		q, d := escalated()

		out, err := h.Execute(context.Background(), &Input{Question: q, Decision: d})

		require.NoError(t, err)
		assert.Equal(t, StatusSent, out.Status)
		assert.Len(t, sesSvc.inputs, 1)
	})

	t.Run("auto answers are skipped", func(t *testing.T) {
		sesSvc := &MockSESService{}
		h := createTestHandler(t, sesSvc, &MockSNSService{})
		q, d := flagged()
		d.Action = models.ActionAutoAnswer

		out, err := h.Execute(context.Background(), &Input{Question: q, Decision: d})

		require.NoError(t, err)
		assert.Equal(t, StatusSkipped, out.Status)
		assert.Empty(t, sesSvc.inputs)
	})

	t.Run("send failure fails the job", func(t *testing.T) {
		h := createTestHandler(t, &MockSESService{err: errors.New("x")}, &MockSNSService{err: errors.New("y")})
		q, d := escalated()

		_, err := h.Execute(context.Background(), &Input{Question: q, Decision: d})

		assert.True(t, errors.Is(err, apperrors.ErrNotificationSendFailed))
	})
}
