package domain

import (
	"context"
	"time"
)

// PriceCache mirrors the latest prices to a shared cache so that processes
// other than the engine can read them.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error)
}

// Lock is a held distributed lock.
type Lock struct {
	// Refresh extends the lock's TTL. It returns ErrLockHeld when the lock
	// has been lost to another holder.
	Refresh func(ctx context.Context, ttl time.Duration) error
	// Release gives the lock up. It is safe to call more than once.
	Release func()
}

// SignalBus provides raw pub/sub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan BusMessage, error)
}

// BusMessage is a payload received on a pub/sub channel.
type BusMessage struct {
	Channel string
	Payload []byte
}

// RateLimiter enforces a request budget per key over a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
