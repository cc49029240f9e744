// Package pipeline decides buyer questions end to end. Each question runs through an explicit
// stage machine; the decision store makes processing idempotent per question ID.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"qa-autoresponder/internal/answering"
	"qa-autoresponder/internal/answering/router"
	"qa-autoresponder/internal/answering/voter"
	"qa-autoresponder/internal/common/decisions"
	apperrors "qa-autoresponder/internal/common/errors"
	"qa-autoresponder/internal/common/logger"
	"qa-autoresponder/internal/common/metrics"
	"qa-autoresponder/internal/common/observability"
	"qa-autoresponder/internal/models"
)

type Stage string

const (
	StageDedup        Stage = "dedup"
	StageClassify     Stage = "classify"
	StageBuildContext Stage = "build_context"
	StageReason       Stage = "reason"
	StageValidate     Stage = "validate"
	StageAggregate    Stage = "aggregate"
	StageVote         Stage = "vote"
	StageRoute        Stage = "route"
	StageDone         Stage = "done"
)

// Voter run triggers.
const (
	TriggerCritical  = "critical"
	TriggerAmbiguous = "ambiguous"
)

type Classifier interface {
	Classify(ctx context.Context, q models.Question, productHint string) models.TopicClassification
}

// ContextBuilder returns an absent context for unknown products. An error means the product
// store could not answer and the question has to be retried.
type ContextBuilder interface {
	Build(ctx context.Context, productRef string) (models.ProductContext, error)
}

// contextPeeker is implemented by builders that can return a cached context cheaply.
type contextPeeker interface {
	Peek(ctx context.Context, productRef string) (models.ProductContext, bool)
}

type Reasoner interface {
	Reason(ctx context.Context, q models.Question, pc models.ProductContext, temperature float64) models.ReasoningResult
}

type Validator interface {
	Validate(ctx context.Context, answerText string, pc models.ProductContext) models.ValidationResult
}

type Aggregator interface {
	Aggregate(r models.ReasoningResult, pc models.ProductContext, v models.ValidationResult) models.ConfidenceBreakdown
}

type Voter interface {
	Vote(ctx context.Context, q models.Question, pc models.ProductContext) (voter.Outcome, error)
}

// Components are the stage implementations the engine drives.
type Components struct {
	Classifier Classifier
	Builder    ContextBuilder
	Reasoner   Reasoner
	Validator  Validator
	Aggregator Aggregator
	Voter      Voter
}

type Option func(*Engine)

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

func WithObservability(o *observability.Observability) Option {
	return func(e *Engine) { e.obs = o }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

type Engine struct {
	store    decisions.Store
	c        Components
	settings answering.Settings
	tracer   trace.Tracer
	obs      *observability.Observability
	now      func() time.Time
	group    singleflight.Group
	logger   logger.Logger
}

func NewEngine(store decisions.Store, c Components, settings answering.Settings, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		c:        c,
		settings: settings,
		tracer:   noop.NewTracerProvider().Tracer("pipeline"),
		now:      time.Now,
		logger:   log.WithFields(map[string]interface{}{"component": "pipeline"}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run is the working state of one question. It never outlives Process.
type run struct {
	q              models.Question
	classification models.TopicClassification
	pc             models.ProductContext
	contextBuilt   bool
	reasoning      models.ReasoningResult
	validation     models.ValidationResult
	breakdown      *models.ConfidenceBreakdown
	voted          bool
	replaced       bool
	draft          string
	decision       models.Decision
}

// Process returns the decision for q, computing it at most once per question ID. A stored
// decision is returned without any oracle call. Errors are INVALID_QUESTION,
// DECISION_STORE_FAILED, CONTEXT_STORE_FAILED and PROCESSING_CANCELLED; in every error case
// nothing is stored.
//
// Concurrent calls for one ID share a single run. When that run is cancelled by the caller
// that started it, the remaining callers start a new run under their own contexts.
func (e *Engine) Process(ctx context.Context, q models.Question) (*models.Decision, error) {
	if q.ID == "" {
		return nil, apperrors.NewInvalidQuestionError("question id is required")
	}

	for {
		ch := e.group.DoChan(q.ID, func() (interface{}, error) {
			return e.process(ctx, q)
		})

		var res singleflight.Result
		select {
		case res = <-ch:
		case <-ctx.Done():
			return nil, apperrors.NewProcessingCancelledError(string(StageDedup), ctx.Err())
		}

		if res.Err != nil {
			if res.Shared && ctx.Err() == nil && errors.Is(res.Err, apperrors.ErrProcessingCancelled) {
				continue
			}
			return nil, res.Err
		}
		d := *res.Val.(*models.Decision)
		return &d, nil
	}
}

func (e *Engine) process(ctx context.Context, q models.Question) (*models.Decision, error) {
	start := e.now()
	ctx, span := e.tracer.Start(ctx, "question.process", trace.WithAttributes(
		attribute.String("question.id", q.ID),
		attribute.String("product.ref", q.ProductRef),
	))
	defer span.End()

	d, err := e.decide(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.obs.RecordQuestion(ctx, "error", e.now().Sub(start))
		e.logger.Warn("question not decided", map[string]interface{}{
			"questionId": q.ID,
			"error":      err.Error(),
		})
		return nil, err
	}

	span.SetAttributes(attribute.String("decision.action", string(d.Action)))
	e.obs.RecordQuestion(ctx, string(d.Action), e.now().Sub(start))
	metrics.QuestionDuration.Observe(e.now().Sub(start).Seconds())
	return d, nil
}

func (e *Engine) decide(ctx context.Context, q models.Question) (*models.Decision, error) {
	existing, err := e.store.Get(ctx, q.ID)
	if err != nil {
		return nil, apperrors.NewDecisionStoreFailedError("get", err)
	}
	if existing != nil {
		metrics.DuplicateQuestions.Inc()
		e.logger.Info("question already decided", map[string]interface{}{
			"questionId": q.ID,
			"action":     string(existing.Action),
		})
		return existing, nil
	}

	r := &run{q: q}
	stage := StageClassify
	for stage != StageDone {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.NewProcessingCancelledError(string(stage), err)
		}
		next, err := e.step(ctx, stage, r)
		if err != nil {
			if _, ok := apperrors.CodeOf(err); ok {
				return nil, err
			}
			return nil, apperrors.NewProcessingCancelledError(string(stage), err)
		}
		stage = next
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewProcessingCancelledError(string(StageDone), err)
	}

	d := r.decision
	d.ID = uuid.New().String()
	d.QuestionID = q.ID
	d.DecidedAt = e.now().UTC()

	stored, created, err := e.store.PutIfAbsent(ctx, &d)
	if err != nil {
		return nil, apperrors.NewDecisionStoreFailedError("put", err)
	}
	if !created {
		e.logger.Info("decision already stored by another worker, keeping it", map[string]interface{}{
			"questionId": q.ID,
		})
		return stored, nil
	}

	metrics.Decisions.WithLabelValues(string(stored.Action)).Inc()
	if stored.Breakdown != nil {
		metrics.FinalScore.Observe(stored.Breakdown.FinalScore)
	}
	e.logger.Info("question decided", map[string]interface{}{
		"questionId": q.ID,
		"productRef": q.ProductRef,
		"action":     string(stored.Action),
		"finalScore": stored.Confidence,
		"reasons":    stored.Reasons,
	})
	return stored, nil
}

func (e *Engine) step(ctx context.Context, stage Stage, r *run) (Stage, error) {
	ctx, span := e.tracer.Start(ctx, "stage."+string(stage))
	defer span.End()

	switch stage {
	case StageClassify:
		r.classification = e.c.Classifier.Classify(ctx, r.q, e.hint(ctx, r.q.ProductRef))
		switch {
		case r.classification.IsProductSearch:
			return StageRoute, nil
		case r.classification.IsCritical && !e.settings.Voter.DraftForCritical:
			return StageRoute, nil
		}
		return StageBuildContext, nil

	case StageBuildContext:
		pc, err := e.c.Builder.Build(ctx, r.q.ProductRef)
		if err != nil {
			return StageBuildContext, err
		}
		r.pc = pc
		r.contextBuilt = true
		if r.classification.IsCritical {
			if r.pc.Absent() {
				return StageRoute, nil
			}
			return StageVote, nil
		}
		return StageReason, nil

	case StageReason:
		r.reasoning = e.c.Reasoner.Reason(ctx, r.q, r.pc, e.settings.Reason.Temperature)
		return StageValidate, nil

	case StageValidate:
		r.validation = e.c.Validator.Validate(ctx, r.reasoning.AnswerText, r.pc)
		return StageAggregate, nil

	case StageAggregate:
		b := e.c.Aggregator.Aggregate(r.reasoning, r.pc, r.validation)
		if r.voted {
			b = b.Capped(e.settings.Voter.MaxConfidence)
		}
		r.breakdown = &b
		span.SetAttributes(attribute.Float64("final_score", b.FinalScore))
		if !r.voted && e.ambiguous(r) {
			return StageVote, nil
		}
		return StageRoute, nil

	case StageVote:
		return e.vote(ctx, r)

	case StageRoute:
		score := 0.0
		if r.breakdown != nil {
			score = r.breakdown.FinalScore
		}
		d := router.Route(router.Input{
			Classification: r.classification,
			FinalScore:     score,
			Answer:         r.reasoning.AnswerText,
			Tags:           reasonTags(r),
		}, e.settings.Thresholds)
		d.Breakdown = r.breakdown
		d.SuggestedDraft = r.draft
		r.decision = d
		return StageDone, nil
	}
	return StageDone, errors.New("unknown stage " + string(stage))
}

func (e *Engine) vote(ctx context.Context, r *run) (Stage, error) {
	trigger := TriggerAmbiguous
	if r.classification.IsCritical {
		trigger = TriggerCritical
	}
	metrics.VoterRuns.WithLabelValues(trigger).Inc()

	out, err := e.c.Voter.Vote(ctx, r.q, r.pc)
	if err != nil {
		return StageVote, err
	}
	r.voted = true

	if r.classification.IsCritical {
		// the draft goes to the human reviewer and is never delivered
		if out.Candidates > 0 {
			r.draft = out.Result.AnswerText
		}
		return StageRoute, nil
	}
	if out.Candidates == 0 {
		b := r.breakdown.Capped(e.settings.Voter.MaxConfidence)
		r.breakdown = &b
		return StageRoute, nil
	}
	r.reasoning = out.Result
	r.replaced = true
	return StageValidate, nil
}

// ambiguous reports a clean score close to the low threshold.
func (e *Engine) ambiguous(r *run) bool {
	if r.reasoning.Fault != "" || r.validation.Fault != "" || r.pc.Absent() {
		return false
	}
	return e.settings.InAmbiguousBand(r.breakdown.FinalScore)
}

func (e *Engine) hint(ctx context.Context, productRef string) string {
	p, ok := e.c.Builder.(contextPeeker)
	if !ok {
		return ""
	}
	if pc, found := p.Peek(ctx, productRef); found {
		return pc.Identity.Title
	}
	return ""
}

func reasonTags(r *run) []string {
	var tags []string
	if r.classification.UsedFallback {
		tags = append(tags, models.ReasonTopicFallback)
	}
	if r.contextBuilt && r.pc.Absent() {
		tags = append(tags, models.ReasonContextAbsent)
	}
	tags = append(tags, r.reasoning.Fault, r.validation.Fault)
	if r.validation.Inconclusive {
		tags = append(tags, models.ReasonValidationInconclusive)
	}
	if r.replaced {
		tags = append(tags, models.ReasonConsistencyVote)
	}
	return tags
}

type Result struct {
	Question models.Question
	Decision *models.Decision
	Err      error
}

// ProcessBatch decides every question independently. One question's failure never stops
// the others; each Result carries either a decision or the error to requeue on.
func (e *Engine) ProcessBatch(ctx context.Context, questions []models.Question, parallelism int) []Result {
	results := make([]Result, len(questions))
	var g errgroup.Group
	g.SetLimit(max(parallelism, 1))
	for i, q := range questions {
		g.Go(func() error {
			d, err := e.Process(ctx, q)
			results[i] = Result{Question: q, Decision: d, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
