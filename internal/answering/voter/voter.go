// Package voter regenerates several candidate answers and keeps the one most consistent with
// the others. The selection rule is a pluggable Strategy.
package voter

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"

	"qa-autoresponder/internal/answering"
	"qa-autoresponder/internal/common/logger"
	"qa-autoresponder/internal/common/textutil"
	"qa-autoresponder/internal/models"
)

const (
	baseTemperature = 0.2
	temperatureStep = 0.25

	// AgreementThreshold is the token similarity at which two candidates count as agreeing.
	AgreementThreshold = 0.5
)

// Generator produces one candidate answer.
type Generator interface {
	Reason(ctx context.Context, q models.Question, pc models.ProductContext, temperature float64) models.ReasoningResult
}

// Strategy picks the index of the winning candidate. cands is never empty.
type Strategy interface {
	Select(ctx context.Context, q models.Question, pc models.ProductContext, cands []models.ReasoningResult) int
}

type Outcome struct {
	Result     models.ReasoningResult
	Generated  int
	Candidates int
	Agreed     bool
}

type Voter struct {
	generator Generator
	strategy  Strategy
	settings  answering.VoterSettings
	logger    logger.Logger
}

func New(gen Generator, strategy Strategy, settings answering.Settings, log logger.Logger) *Voter {
	if strategy == nil {
		strategy = AgreementStrategy{}
	}
	return &Voter{
		generator: gen,
		strategy:  strategy,
		settings:  settings.Voter,
		logger:    log.WithFields(map[string]interface{}{"component": "voter"}),
	}
}

// Temperature returns the sampling temperature of candidate i.
func Temperature(i int) float64 {
	return baseTemperature + temperatureStep*float64(i)
}

// Vote generates settings.Count candidates and returns the winner with its confidence
// boosted when another candidate agrees, never above MaxConfidence. The only error is the
// context's.
func (v *Voter) Vote(ctx context.Context, q models.Question, pc models.ProductContext) (Outcome, error) {
	n := max(v.settings.Count, 1)
	results := make([]models.ReasoningResult, n)

	var g errgroup.Group
	if v.settings.Parallel {
		g.SetLimit(n)
	} else {
		g.SetLimit(1)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = v.generator.Reason(ctx, q, pc, Temperature(i))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	var cands []models.ReasoningResult
	for _, r := range results {
		if r.Fault == "" && r.AnswerText != "" {
			cands = append(cands, r)
		}
	}
	out := Outcome{Generated: n, Candidates: len(cands)}
	if len(cands) == 0 {
		out.Result = results[0]
		out.Result.SelfConfidence = 0
		v.logger.Warn("no usable candidate", map[string]interface{}{
			"questionId": q.ID,
			"generated":  n,
		})
		return out, nil
	}

	idx := v.strategy.Select(ctx, q, pc, cands)
	if idx < 0 || idx >= len(cands) {
		idx = 0
	}
	winner := cands[idx]
	out.Agreed = Agrees(idx, cands)

	confidence := float64(winner.SelfConfidence)
	if out.Agreed {
		confidence += v.settings.Bonus
	}
	winner.SelfConfidence = int(math.Min(confidence, v.settings.MaxConfidence))
	out.Result = winner

	v.logger.Info("vote completed", map[string]interface{}{
		"questionId": q.ID,
		"candidates": len(cands),
		"winner":     idx,
		"agreed":     out.Agreed,
		"confidence": winner.SelfConfidence,
	})
	return out, nil
}

// Agrees reports whether candidate i is similar enough to at least one other candidate.
func Agrees(i int, cands []models.ReasoningResult) bool {
	tokens := textutil.ContentTokens(cands[i].AnswerText)
	for j := range cands {
		if j != i && textutil.Jaccard(tokens, textutil.ContentTokens(cands[j].AnswerText)) >= AgreementThreshold {
			return true
		}
	}
	return false
}
