package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/msaedi/instructly-sub003/middleware/ratelimit/domain"
)

// MemoryIdempotencyCache é um domain.IdempotencyCache local ao processo.
// Guarda o JSON (não o valor) para que Get devolva uma cópia independente.
type MemoryIdempotencyCache struct {
	mu      sync.Mutex
	entries map[string]memoryIdemEntry
	now     func() time.Time
}

type memoryIdemEntry struct {
	payload   []byte
	expiresAt time.Time
}

func NewMemoryIdempotencyCache() *MemoryIdempotencyCache {
	return &MemoryIdempotencyCache{entries: make(map[string]memoryIdemEntry), now: time.Now}
}

func (c *MemoryIdempotencyCache) Get(_ context.Context, rawKey string, dst any) (bool, error) {
	key := domain.IdempotencyKey("", rawKey)

	c.mu.Lock()
	ent, ok := c.entries[key]
	if ok && !ent.expiresAt.After(c.now()) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(ent.payload, dst); err != nil {
		return false, fmt.Errorf("decode idempotency payload: %w", err)
	}
	return true, nil
}

func (c *MemoryIdempotencyCache) Set(_ context.Context, rawKey string, payload any, ttl time.Duration) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode idempotency payload: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[domain.IdempotencyKey("", rawKey)] = memoryIdemEntry{payload: b, expiresAt: c.now().Add(ttl)}
	return nil
}
