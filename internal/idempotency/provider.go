// Package idempotency tracks recently processed webhook deliveries so exact
// duplicates can be acknowledged without touching the database. It is a fast
// path only: the conditional status updates remain the correctness guarantee,
// so losing this state (restart, eviction) is always safe.
package idempotency

import (
	"context"
	"fmt"
	"time"
)

// Provider remembers which delivery keys have already been processed.
type Provider interface {
	Seen(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string, ttl time.Duration) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
}

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryProvider()
	case "redis":
		return NewRedisProvider(cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported idempotency provider: %s", cfg.Provider)
	}
}

// NotificationKey identifies a gateway delivery by what it asserts, not by a
// delivery ID: Midtrans retries carry no stable event identifier, so two
// notifications asserting the same (order, status) pair are the same event.
func NotificationKey(provider, providerOrderID, transactionStatus, fraudStatus string) string {
	return fmt.Sprintf("notification:%s:%s:%s:%s", provider, providerOrderID, transactionStatus, fraudStatus)
}
