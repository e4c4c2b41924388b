package infra

import (
	"context"
	"sync"
	"time"

	"github.com/msaedi/instructly-sub003/middleware/ratelimit/domain"
)

// MemoryStateStore é uma implementação em memória de domain.StateStore
// (mesmo GCRA em ms inteiros do script Lua) com expiração por chave e limpeza periódica.
//
// O estado é local ao processo: serve para testes e execução local sem Redis,
// não para impor um limite global entre réplicas.
type MemoryStateStore struct {
	mu           sync.Mutex
	entries      map[string]*storeEntry
	cleanupEvery time.Duration
	now          func() time.Time
}

type storeEntry struct {
	tatMs       int64
	expiresAtMs int64
}

type StoreOption func(*MemoryStateStore)

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *MemoryStateStore) { s.cleanupEvery = d }
}

// WithClock troca o relógio usado pela limpeza (testes).
func WithClock(now func() time.Time) StoreOption {
	return func(s *MemoryStateStore) { s.now = now }
}

func NewMemoryStateStore(opts ...StoreOption) *MemoryStateStore {
	s := &MemoryStateStore{
		entries:      make(map[string]*storeEntry),
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStateStore) CleanupEvery() time.Duration { return s.cleanupEvery }

// Apply implementa domain.StateStore.
func (s *MemoryStateStore) Apply(ctx context.Context, key string, nowMs, intervalMs, burst, ttlMs int64) (domain.StateResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.StateResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var last *int64
	if ent, ok := s.entries[key]; ok && ent.expiresAtMs > nowMs {
		tat := ent.tatMs
		last = &tat
	}

	res := domain.DecideMillis(nowMs, last, intervalMs, burst)
	if res.Allowed {
		s.entries[key] = &storeEntry{tatMs: res.TATMs, expiresAtMs: nowMs + ttlMs}
	}
	return res, nil
}

// Len retorna o número de chaves guardadas (inclui expiradas ainda não limpas).
func (s *MemoryStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStateStore) Cleanup() {
	nowMs := s.now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.expiresAtMs <= nowMs {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que remove chaves expiradas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryStateStore) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context no janitor.
type DoneContext interface {
	Done() <-chan struct{}
}
