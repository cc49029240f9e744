// internal/workers/communication/notify-escalation/handler.go
package notifyescalation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "qa-autoresponder/internal/common/errors"
	"qa-autoresponder/internal/common/logger"
	"qa-autoresponder/internal/common/metrics"
	"qa-autoresponder/internal/common/validation"
	"qa-autoresponder/internal/models"
)

const TaskType = "notify-escalation"

type Handler struct {
	config   *Config
	notifier *Notifier
	schema   *validation.Validator
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
}

func NewHandler(config *Config, notifier *Notifier, schema *validation.Validator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		notifier: notifier,
		schema:   schema,
		errors:   apperrors.NewErrorHandler(log),
		logger:   log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	start := time.Now()
	defer func() {
		metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	}()

	input, err := h.ParseInput(job.Variables)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) ParseInput(variables string) (*Input, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(variables), &raw); err != nil {
		return nil, apperrors.NewInvalidQuestionError(fmt.Sprintf("parse input: %v", err))
	}
	if h.schema != nil {
		result, err := h.schema.Validate(TaskType, raw)
		if err != nil {
			return nil, apperrors.NewInvalidQuestionError(err.Error())
		}
		if !result.Valid {
			return nil, apperrors.NewInvalidQuestionError(result.Error())
		}
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewInvalidQuestionError(fmt.Sprintf("decode input: %v", err))
	}
	return &input, nil
}

// Execute notifies reviewers about escalate and answer_and_flag decisions. Auto answers
// are skipped.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.Decision.Action == models.ActionAutoAnswer {
		return &Output{Status: StatusSkipped}, nil
	}

	out, err := h.notifier.Send(ctx, Notice(input.Question, input.Decision, input.Decision.Reasons))
	if err != nil {
		metrics.DispatchFailures.WithLabelValues("notification").Inc()
		return nil, err
	}
	return out, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{"error": err})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{"error": err})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	stdErr := apperrors.Normalize(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.errors.HandleJobError(context.Background(), client, job, stdErr)
}
