package idempotency

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type MemoryProvider struct {
	cache *lru.Cache[string, time.Time]
}

const defaultMemorySize = 10_000

func NewMemoryProvider() (*MemoryProvider, error) {
	c, err := lru.New[string, time.Time](defaultMemorySize)
	if err != nil {
		return nil, err
	}
	return &MemoryProvider{cache: c}, nil
}

func (m *MemoryProvider) Seen(ctx context.Context, key string) (bool, error) {
	_ = ctx
	expiresAt, exists := m.cache.Get(key)
	if !exists {
		return false, nil
	}

	if time.Now().After(expiresAt) {
		m.cache.Remove(key)
		return false, nil
	}

	return true, nil
}

func (m *MemoryProvider) Remember(ctx context.Context, key string, ttl time.Duration) error {
	_ = ctx
	m.cache.Add(key, time.Now().Add(ttl))
	return nil
}

func (m *MemoryProvider) Close() error {
	return nil
}
