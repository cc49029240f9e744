// Package router maps a classification and a final score to a terminal action. Routing is
// a pure function of its input and the thresholds, so decisions can be replayed.
package router

import (
	"sort"
	"strings"

	"qa-autoresponder/internal/answering"
	"qa-autoresponder/internal/models"
)

type Input struct {
	Classification models.TopicClassification
	FinalScore     float64
	Answer         string
	// Tags are extra reason tags from earlier stages, such as faults.
	Tags []string
}

// Route returns a decision carrying an answer iff the action is not escalate.
func Route(in Input, th answering.Thresholds) models.Decision {
	d := models.Decision{
		Confidence:     in.FinalScore,
		Classification: in.Classification,
	}
	reasons := append([]string(nil), in.Tags...)

	switch {
	case in.Classification.IsProductSearch:
		d.Action = models.ActionEscalate
		reasons = append(reasons, models.ReasonProductSearch)
	case in.Classification.IsCritical:
		d.Action = models.ActionEscalate
		reasons = append(reasons, models.CriticalReason(in.Classification.CriticalCategory))
	case in.FinalScore < th.Low || strings.TrimSpace(in.Answer) == "":
		d.Action = models.ActionEscalate
		reasons = append(reasons, models.ReasonLowConfidence)
	case in.FinalScore < th.Review:
		d.Action = models.ActionAnswerAndFlag
		reasons = append(reasons, models.ReasonNeedsReview)
	default:
		d.Action = models.ActionAutoAnswer
		reasons = append(reasons, models.ReasonHighConfidence)
	}

	if d.Action != models.ActionEscalate {
		answer := in.Answer
		d.Answer = &answer
	}
	d.Reasons = normalize(reasons)
	return d
}

func normalize(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
