// Package oracletest provides a scripted oracle for deterministic pipeline tests.
package oracletest

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Responder computes a response for a prompt at a given temperature.
type Responder func(prompt string, temperature float64) (string, error)

type rule struct {
	marker    string
	responses []string
	err       error
	fn        Responder
	served    int
}

// Scripted answers prompts by the first registered marker they contain. Sequential
// responses are served in order and the last one repeats. It is safe for concurrent use.
type Scripted struct {
	mu      sync.Mutex
	rules   []*rule
	calls   int
	prompts []string
	temps   []float64
}

func New() *Scripted {
	return &Scripted{}
}

// On registers responses for prompts containing marker.
func (s *Scripted) On(marker string, responses ...string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, &rule{marker: marker, responses: responses})
	return s
}

// OnError makes prompts containing marker fail with err.
func (s *Scripted) OnError(marker string, err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, &rule{marker: marker, err: err})
	return s
}

// OnFunc computes responses for prompts containing marker.
func (s *Scripted) OnFunc(marker string, fn Responder) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, &rule{marker: marker, fn: fn})
	return s
}

func (s *Scripted) Invoke(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.calls++
	s.prompts = append(s.prompts, prompt)
	s.temps = append(s.temps, temperature)

	var matched *rule
	for _, r := range s.rules {
		if strings.Contains(prompt, r.marker) {
			matched = r
			break
		}
	}
	if matched == nil {
		s.mu.Unlock()
		return "", fmt.Errorf("oracletest: no script for prompt %q", firstLine(prompt))
	}

	switch {
	case matched.fn != nil:
		fn := matched.fn
		s.mu.Unlock()
		return fn(prompt, temperature)
	case matched.err != nil:
		s.mu.Unlock()
		return "", matched.err
	}

	idx := matched.served
	if idx >= len(matched.responses) {
		idx = len(matched.responses) - 1
	}
	matched.served++
	s.mu.Unlock()

	if idx < 0 {
		return "", nil
	}
	return matched.responses[idx], nil
}

// Calls returns the total number of invocations.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// CallsMatching counts invocations whose prompt contains marker.
func (s *Scripted) CallsMatching(marker string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.prompts {
		if strings.Contains(p, marker) {
			n++
		}
	}
	return n
}

// Prompts returns a copy of every prompt received, in order.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// Temperatures returns the sampling temperature of every call, in order.
func (s *Scripted) Temperatures() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.temps...)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
