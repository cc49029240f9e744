// internal/workers/communication/notify-escalation/notifier.go
package notifyescalation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/google/uuid"

	apperrors "qa-autoresponder/internal/common/errors"
	"qa-autoresponder/internal/common/logger"
	"qa-autoresponder/internal/models"
)

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

var bodyTemplate = template.Must(template.New("escalation").Funcs(template.FuncMap{"join": strings.Join}).Parse(`A buyer question needs a human reviewer.

Question {{.QuestionID}} on {{if .ProductRef}}{{.ProductRef}}{{else}}an unknown listing{{end}}:
  {{.Question}}

Action:     {{.Action}}
Confidence: {{printf "%.0f" .Confidence}}
Reasons:    {{join .Reasons ", "}}
{{- if .Answer}}

Answer posted to the buyer:
  {{.Answer}}
{{- end}}
{{- if .Draft}}

Suggested draft (not posted):
  {{.Draft}}
{{- end}}
`))

// Notifier sends escalation notices by SES email and SNS. It never alters a decision.
type Notifier struct {
	config *Config
	ses    SESService
	sns    SNSService
	now    func() time.Time
	logger logger.Logger
}

func NewNotifier(config *Config, sesClient SESService, snsClient SNSService, log logger.Logger) *Notifier {
	return &Notifier{
		config: config,
		ses:    sesClient,
		sns:    snsClient,
		now:    time.Now,
		logger: log.WithFields(map[string]interface{}{"component": "escalation-notifier"}),
	}
}

// Notice builds the reviewer-facing notice for a routed decision.
func Notice(q models.Question, d models.Decision, reasons []string) models.EscalationNotice {
	n := models.EscalationNotice{
		ID:         uuid.New().String(),
		QuestionID: q.ID,
		ProductRef: q.ProductRef,
		Question:   q.Text,
		Action:     d.Action,
		Reasons:    append([]string(nil), reasons...),
		Confidence: d.Confidence,
		Answer:     d.AnswerText(),
		Draft:      d.SuggestedDraft,
	}
	if !d.DecidedAt.IsZero() {
		n.DecidedAt = d.DecidedAt.UTC().Format(time.RFC3339)
	}
	return n
}

// Notify implements the dispatcher's escalation collaborator.
func (n *Notifier) Notify(ctx context.Context, q models.Question, d models.Decision, reasons []string) error {
	_, err := n.Send(ctx, Notice(q, d, reasons))
	return err
}

// Send delivers notice on every enabled channel. It fails only when every enabled channel
// failed, so a retried job does not repeat a delivery that already went out.
func (n *Notifier) Send(ctx context.Context, notice models.EscalationNotice) (*Output, error) {
	out := &Output{
		NotificationID: notice.ID,
		Status:         StatusDisabled,
		SentAt:         n.now().UTC().Format(time.RFC3339),
	}

	var failures []error
	attempted := 0

	if n.config.EmailEnabled && len(n.config.Recipients) > 0 && n.ses != nil {
		attempted++
		if err := n.sendEmail(ctx, notice); err != nil {
			n.logger.Error("email send failed", map[string]interface{}{
				"questionId": notice.QuestionID,
				"error":      err.Error(),
			})
			failures = append(failures, apperrors.NewNotificationSendFailedError(ChannelEmail, err))
		} else {
			out.Channels = append(out.Channels, ChannelEmail)
		}
	}

	if n.config.SNSEnabled && n.config.TopicARN != "" && n.sns != nil {
		attempted++
		if err := n.publish(ctx, notice); err != nil {
			n.logger.Error("sns publish failed", map[string]interface{}{
				"questionId": notice.QuestionID,
				"error":      err.Error(),
			})
			failures = append(failures, apperrors.NewNotificationSendFailedError(ChannelSNS, err))
		} else {
			out.Channels = append(out.Channels, ChannelSNS)
		}
	}

	switch {
	case attempted == 0:
		n.logger.Warn("no escalation channel enabled", map[string]interface{}{"questionId": notice.QuestionID})
		return out, nil
	case len(out.Channels) == 0:
		out.Status = StatusFailed
		return out, errors.Join(failures...)
	}

	out.Status = StatusSent
	n.logger.Info("escalation notice sent", map[string]interface{}{
		"questionId": notice.QuestionID,
		"action":     string(notice.Action),
		"channels":   out.Channels,
	})
	return out, nil
}

func subject(notice models.EscalationNotice) string {
	if notice.Action == models.ActionEscalate {
		return fmt.Sprintf("[escalated] buyer question %s", notice.QuestionID)
	}
	return fmt.Sprintf("[review] answered question %s", notice.QuestionID)
}

func renderBody(notice models.EscalationNotice) (string, error) {
	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, notice); err != nil {
		return "", fmt.Errorf("render notice: %w", err)
	}
	return buf.String(), nil
}

func (n *Notifier) sendEmail(ctx context.Context, notice models.EscalationNotice) error {
	body, err := renderBody(notice)
	if err != nil {
		return err
	}
	_, err = n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &sestypes.Destination{
			ToAddresses: n.config.Recipients,
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject(notice))},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.config.FromEmail),
	})
	return err
}

func (n *Notifier) publish(ctx context.Context, notice models.EscalationNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}
	_, err = n.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.config.TopicARN),
		Subject:  aws.String(subject(notice)),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"action": {DataType: aws.String("String"), StringValue: aws.String(string(notice.Action))},
		},
	})
	return err
}
