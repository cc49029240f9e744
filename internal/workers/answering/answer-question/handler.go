// internal/workers/answering/answer-question/handler.go
package answerquestion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "qa-autoresponder/internal/common/errors"
	"qa-autoresponder/internal/common/logger"
	"qa-autoresponder/internal/common/metrics"
	"qa-autoresponder/internal/common/validation"
	"qa-autoresponder/internal/models"
)

const TaskType = "answer-question"

// Processor turns a question into its final decision.
type Processor interface {
	Process(ctx context.Context, q models.Question) (*models.Decision, error)
}

// Dispatcher delivers a decision to the marketplace and reviewers.
type Dispatcher interface {
	Dispatch(ctx context.Context, q models.Question, d *models.Decision) error
}

type Handler struct {
	config     *Config
	engine     Processor
	dispatcher Dispatcher
	schema     *validation.Validator
	errors     *apperrors.ErrorHandler
	logger     logger.Logger
}

// NewHandler builds the handler. dispatcher may be nil when inline dispatch is off and
// schema may be nil to skip input validation.
func NewHandler(config *Config, engine Processor, dispatcher Dispatcher, schema *validation.Validator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		engine:     engine,
		dispatcher: dispatcher,
		schema:     schema,
		errors:     apperrors.NewErrorHandler(log),
		logger:     log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer func() {
		metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()
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

// ParseInput validates the job variables against the registered input schema before
// decoding them.
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

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	q := input.Question
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, apperrors.NewInvalidQuestionError("question text is empty")
	}

	decision, err := h.engine.Process(ctx, q)
	if err != nil {
		return nil, err
	}

	output := &Output{
		Decision:   *decision,
		Action:     decision.Action,
		AnswerText: decision.AnswerText(),
	}

	if h.config.InlineDispatch && h.dispatcher != nil {
		if err := h.dispatcher.Dispatch(ctx, q, decision); err != nil {
			return nil, err
		}
		output.Dispatched = true
	}

	h.logger.Info("question decided", map[string]interface{}{
		"questionId": q.ID,
		"action":     string(decision.Action),
		"confidence": decision.Confidence,
		"reasons":    decision.Reasons,
		"dispatched": output.Dispatched,
	})
	return output, nil
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
