package voter

import (
	"context"
	"fmt"
	"strings"

	"qa-autoresponder/internal/answering"
	"qa-autoresponder/internal/answering/productcontext"
	"qa-autoresponder/internal/common/logger"
	"qa-autoresponder/internal/common/oracle"
	"qa-autoresponder/internal/common/textutil"
	"qa-autoresponder/internal/models"
)

const epsilon = 1e-9

// AgreementStrategy picks the candidate with the highest mean token similarity to the
// others. Ties go to the candidate most grounded in the context, then to the higher
// self-confidence, then to the earlier candidate. Paraphrases still score as similar
// because stopwords and accents are ignored.
type AgreementStrategy struct{}

func (AgreementStrategy) Select(ctx context.Context, q models.Question, pc models.ProductContext, cands []models.ReasoningResult) int {
	tokens := make([]map[string]struct{}, len(cands))
	for i, c := range cands {
		tokens[i] = textutil.ContentTokens(c.AnswerText)
	}
	facts := contextTokens(pc)

	best := 0
	bestMean, bestGround := -1.0, -1.0
	for i := range cands {
		mean := 0.0
		if len(cands) > 1 {
			for j := range cands {
				if i != j {
					mean += textutil.Jaccard(tokens[i], tokens[j])
				}
			}
			mean /= float64(len(cands) - 1)
		}
		ground := Grounding(tokens[i], facts)

		switch {
		case mean > bestMean+epsilon:
		case mean < bestMean-epsilon:
			continue
		case ground > bestGround+epsilon:
		case ground < bestGround-epsilon:
			continue
		case cands[i].SelfConfidence > cands[best].SelfConfidence:
		default:
			continue
		}
		best, bestMean, bestGround = i, mean, ground
	}
	return best
}

// Grounding is the share of an answer's content tokens that appear in the context.
func Grounding(answer, facts map[string]struct{}) float64 {
	if len(answer) == 0 {
		return 0
	}
	hit := 0
	for tok := range answer {
		if _, ok := facts[tok]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(answer))
}

func contextTokens(pc models.ProductContext) map[string]struct{} {
	var parts []string
	parts = append(parts, pc.Identity.Title, pc.Identity.Brand, pc.ProductType)
	for _, s := range pc.Specs {
		parts = append(parts, s.Key, s.Value)
	}
	parts = append(parts, pc.Features...)
	return textutil.ContentTokens(strings.Join(parts, " "))
}

// JudgeMarker identifies judgement prompts.
const JudgeMarker = "TASK: CANDIDATE_JUDGEMENT"

const tagBest = "BEST"

// OracleJudgeStrategy asks the oracle which candidate is best and falls back to agreement
// when the verdict is unusable.
type OracleJudgeStrategy struct {
	oracle   oracle.Oracle
	budget   answering.OracleBudget
	fallback AgreementStrategy
	logger   logger.Logger
}

func NewOracleJudgeStrategy(o oracle.Oracle, settings answering.Settings, log logger.Logger) *OracleJudgeStrategy {
	return &OracleJudgeStrategy{
		oracle: o,
		budget: settings.Validate,
		logger: log.WithFields(map[string]interface{}{"component": "voter_judge"}),
	}
}

func (s *OracleJudgeStrategy) Select(ctx context.Context, q models.Question, pc models.ProductContext, cands []models.ReasoningResult) int {
	if len(cands) == 1 {
		return 0
	}
	text, err := s.oracle.Invoke(oracle.WithStage(ctx, "judge"), s.prompt(q, pc, cands), s.budget.Temperature, s.budget.MaxTokens)
	if err != nil {
		s.logger.Warn("judge oracle failed, using agreement", map[string]interface{}{
			"questionId": q.ID,
			"error":      err.Error(),
		})
		return s.fallback.Select(ctx, q, pc, cands)
	}

	best, ok := oracle.ParseTags(text, tagBest).Int(tagBest)
	if !ok || best < 1 || best > len(cands) {
		s.logger.Warn("judge verdict unusable, using agreement", map[string]interface{}{
			"questionId": q.ID,
		})
		return s.fallback.Select(ctx, q, pc, cands)
	}
	return best - 1
}

func (s *OracleJudgeStrategy) prompt(q models.Question, pc models.ProductContext, cands []models.ReasoningResult) string {
	var parts []string
	parts = append(parts, JudgeMarker)
	parts = append(parts, "Several draft replies answer the same buyer question. Pick the one that agrees with the majority and is best supported by the product data.")
	parts = append(parts, "\nProduct data:")
	parts = append(parts, productcontext.Describe(pc))
	parts = append(parts, fmt.Sprintf("\nBuyer question: %s", q.Text))
	parts = append(parts, "\nDrafts:")
	for i, c := range cands {
		parts = append(parts, fmt.Sprintf("%d) %s", i+1, c.AnswerText))
	}
	parts = append(parts, "\nReply exactly in this format:")
	parts = append(parts, fmt.Sprintf("BEST: 1-%d", len(cands)))
	return strings.Join(parts, "\n")
}
