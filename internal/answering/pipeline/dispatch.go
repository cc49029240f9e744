package pipeline

import (
	"context"
	"sync"
	"time"

	apperrors "qa-autoresponder/internal/common/errors"
	"qa-autoresponder/internal/common/logger"
	"qa-autoresponder/internal/common/metrics"
	"qa-autoresponder/internal/models"
)

// Deliverer publishes an answer to the marketplace.
type Deliverer interface {
	Post(ctx context.Context, questionID, answerText string) error
}

// Notifier tells human reviewers about escalated or flagged questions.
type Notifier interface {
	Notify(ctx context.Context, q models.Question, d models.Decision, reasons []string) error
}

// Dispatcher hands a decision to the delivery and escalation collaborators. Neither can
// change the decision.
type Dispatcher struct {
	deliverer     Deliverer
	notifier      Notifier
	notifyTimeout time.Duration
	wg            sync.WaitGroup
	logger        logger.Logger
}

func NewDispatcher(deliverer Deliverer, notifier Notifier, notifyTimeout time.Duration, log logger.Logger) *Dispatcher {
	if notifyTimeout <= 0 {
		notifyTimeout = 30 * time.Second
	}
	return &Dispatcher{
		deliverer:     deliverer,
		notifier:      notifier,
		notifyTimeout: notifyTimeout,
		logger:        log.WithFields(map[string]interface{}{"component": "dispatcher"}),
	}
}

// Dispatch posts the answer when there is one, then notifies reviewers in the background
// for escalate and answer_and_flag. A delivery failure returns ANSWER_DELIVERY_FAILED
// before anyone is notified, so a retry does not notify twice.
func (d *Dispatcher) Dispatch(ctx context.Context, q models.Question, dec *models.Decision) error {
	if dec.HasAnswer() && d.deliverer != nil {
		if err := d.deliverer.Post(ctx, q.ID, dec.AnswerText()); err != nil {
			metrics.DispatchFailures.WithLabelValues("delivery").Inc()
			return apperrors.NewAnswerDeliveryFailedError(q.ID, err)
		}
	}

	if d.notifier == nil || dec.Action == models.ActionAutoAnswer {
		return nil
	}

	decision := *dec
	reasons := append([]string(nil), dec.Reasons...)
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.notifyTimeout)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		if err := d.notifier.Notify(notifyCtx, q, decision, reasons); err != nil {
			metrics.DispatchFailures.WithLabelValues("notification").Inc()
			d.logger.Error("escalation notification failed", map[string]interface{}{
				"questionId": q.ID,
				"action":     string(decision.Action),
				"error":      err.Error(),
			})
		}
	}()
	return nil
}

// Wait blocks until every pending notification has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
