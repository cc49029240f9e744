// Package decisions persists finalized decisions keyed by question ID. It is the
// idempotency boundary of the pipeline: a stored decision is returned as-is and never
// recomputed.
package decisions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"qa-autoresponder/internal/models"
)

// Store is the decided-question store. Get returns (nil, nil) for an unknown question.
// PutIfAbsent keeps the first decision written for a question and returns whichever
// decision is stored after the call.
type Store interface {
	Get(ctx context.Context, questionID string) (*models.Decision, error)
	PutIfAbsent(ctx context.Context, d *models.Decision) (stored *models.Decision, created bool, err error)
}

// RedisStore keeps decisions as JSON under <prefix><questionID>.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(questionID string) string {
	return s.prefix + questionID
}

func (s *RedisStore) Get(ctx context.Context, questionID string) (*models.Decision, error) {
	raw, err := s.client.Get(ctx, s.key(questionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get decision: %w", err)
	}

	var d models.Decision
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode stored decision %s: %w", questionID, err)
	}
	return &d, nil
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, d *models.Decision) (*models.Decision, bool, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return nil, false, fmt.Errorf("encode decision: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.key(d.QuestionID), payload, s.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx decision: %w", err)
	}
	if created {
		return d, true, nil
	}

	existing, err := s.Get(ctx, d.QuestionID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// expired between SETNX and GET
		return d, false, nil
	}
	return existing, false, nil
}

// MemoryStore is a process-local Store for tests and single-instance runs.
type MemoryStore struct {
	mu        sync.RWMutex
	decisions map[string]models.Decision
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{decisions: map[string]models.Decision{}}
}

func (s *MemoryStore) Get(ctx context.Context, questionID string) (*models.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decisions[questionID]
	if !ok {
		return nil, nil
	}
	return cloneDecision(d), nil
}

func (s *MemoryStore) PutIfAbsent(ctx context.Context, d *models.Decision) (*models.Decision, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.decisions[d.QuestionID]; ok {
		return cloneDecision(existing), false, nil
	}
	s.decisions[d.QuestionID] = *cloneDecision(*d)
	return d, true, nil
}

// Len returns the number of stored decisions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.decisions)
}

func cloneDecision(d models.Decision) *models.Decision {
	out := d
	if d.Answer != nil {
		a := *d.Answer
		out.Answer = &a
	}
	out.Reasons = append([]string(nil), d.Reasons...)
	if d.Breakdown != nil {
		b := *d.Breakdown
		out.Breakdown = &b
	}
	return &out
}
