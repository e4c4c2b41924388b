package infra

import (
	"math"
	"sync"

	"github.com/msaedi/instructly-sub003/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed       int64
	ShadowBlocked int64
	Blocked       int64

	// Denials e RetryAfterSum acumulam RecordRetryAfter (valores finitos).
	Denials       int64
	RetryAfterSum float64
}

func (c *Counters) add(action domain.Action) {
	switch action {
	case domain.ActionAllow:
		c.Allowed++
	case domain.ActionShadowBlock:
		c.ShadowBlocked++
	case domain.ActionBlock:
		c.Blocked++
	}
}

// MemoryRecorder é um domain.Recorder simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryRecorder struct {
	mu       sync.Mutex
	total    Counters
	byBucket map[string]Counters
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{byBucket: make(map[string]Counters)}
}

func (s *MemoryRecorder) RecordDecision(bucket string, action domain.Action, _ bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(action)
	c := s.byBucket[bucket]
	c.add(action)
	s.byBucket[bucket] = c
}

func (s *MemoryRecorder) RecordRetryAfter(bucket string, _ bool, seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.Denials++
	c := s.byBucket[bucket]
	c.Denials++
	if !math.IsInf(seconds, 0) && !math.IsNaN(seconds) {
		s.total.RetryAfterSum += seconds
		c.RetryAfterSum += seconds
	}
	s.byBucket[bucket] = c
}

func (s *MemoryRecorder) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryRecorder) ByBucket() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byBucket))
	for k, v := range s.byBucket {
		out[k] = v
	}
	return out
}

// MultiRecorder repassa cada evento para todos os recorders.
type MultiRecorder []domain.Recorder

func (m MultiRecorder) RecordDecision(bucket string, action domain.Action, shadow bool) {
	for _, r := range m {
		r.RecordDecision(bucket, action, shadow)
	}
}

func (m MultiRecorder) RecordRetryAfter(bucket string, shadow bool, seconds float64) {
	for _, r := range m {
		r.RecordRetryAfter(bucket, shadow, seconds)
	}
}
