// cmd/tools/replay-decisions/main.go
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"qa-autoresponder/internal/answering"
	"qa-autoresponder/internal/answering/router"
	"qa-autoresponder/internal/models"
)

// record is one routed question as exported from the decision store or a scoring run.
// A missing answer is treated as answered, so only the thresholds decide the outcome.
type record struct {
	QuestionID       string        `json:"questionId"`
	IsProductSearch  bool          `json:"isProductSearch"`
	IsCritical       bool          `json:"isCritical"`
	CriticalCategory string        `json:"criticalCategory"`
	FinalScore       float64       `json:"finalScore"`
	Answer           *string       `json:"answer,omitempty"`
	PreviousAction   models.Action `json:"previousAction,omitempty"`
}

type replayed struct {
	QuestionID     string        `json:"questionId"`
	Action         models.Action `json:"action"`
	PreviousAction models.Action `json:"previousAction,omitempty"`
	Changed        bool          `json:"changed"`
	Reasons        []string      `json:"reasons"`
}

type summary struct {
	Total   int
	Changed int
	Actions map[models.Action]int
}

func main() {
	defaults := answering.DefaultSettings().Thresholds
	low := flag.Float64("low", defaults.Low, "escalate below this final score")
	review := flag.Float64("review", defaults.Review, "flag for review below this final score")
	input := flag.String("in", "-", "JSON lines file, - for stdin")
	flag.Parse()

	th := answering.Thresholds{Low: *low, Review: *review}
	if th.Low > th.Review {
		fmt.Fprintf(os.Stderr, "Error: -low (%.1f) must not exceed -review (%.1f)\n", th.Low, th.Review)
		os.Exit(2)
	}

	var r io.Reader = os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening input: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		r = f
	}

	s, err := replay(r, os.Stdout, th)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	printSummary(os.Stderr, s, th)
}

// replay routes every record under th and writes one JSON line per record.
func replay(r io.Reader, w io.Writer, th answering.Thresholds) (summary, error) {
	s := summary{Actions: map[models.Action]int{}}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	enc := json.NewEncoder(w)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var rec record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return s, fmt.Errorf("line %d: %w", line, err)
		}

		answer := "(answer)"
		if rec.Answer != nil {
			answer = *rec.Answer
		}
		d := router.Route(router.Input{
			Classification: models.TopicClassification{
				IsProductSearch:  rec.IsProductSearch,
				IsCritical:       rec.IsCritical,
				CriticalCategory: models.ParseCriticalCategory(rec.CriticalCategory),
			},
			FinalScore: rec.FinalScore,
			Answer:     answer,
		}, th)

		out := replayed{
			QuestionID:     rec.QuestionID,
			Action:         d.Action,
			PreviousAction: rec.PreviousAction,
			Changed:        rec.PreviousAction != "" && rec.PreviousAction != d.Action,
			Reasons:        d.Reasons,
		}
		if err := enc.Encode(out); err != nil {
			return s, err
		}

		s.Total++
		s.Actions[d.Action]++
		if out.Changed {
			s.Changed++
		}
	}
	return s, scanner.Err()
}

func printSummary(w io.Writer, s summary, th answering.Thresholds) {
	fmt.Fprintf(w, "thresholds: low=%.1f review=%.1f\n", th.Low, th.Review)
	actions := make([]string, 0, len(s.Actions))
	for a := range s.Actions {
		actions = append(actions, string(a))
	}
	sort.Strings(actions)
	for _, a := range actions {
		fmt.Fprintf(w, "  %-16s %d\n", a, s.Actions[models.Action(a)])
	}
	fmt.Fprintf(w, "total: %d, changed: %d\n", s.Total, s.Changed)
}
