// Package ratelimit applies Redis-backed fixed-window limits.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyNamespace = "chipledger:rate_limit"

type counterStore interface {
	Incr(context.Context, string) *redis.IntCmd
	Expire(context.Context, string, time.Duration) *redis.BoolCmd
}

// Config describes the Redis connection and the window policy.
type Config struct {
	Address  string
	Password string
	DB       int
	Limit    int64
	Window   time.Duration
}

// Limiter counts attempts per scope inside a fixed window. A nil Limiter
// allows everything.
type Limiter struct {
	store  counterStore
	raw    *redis.Client
	limit  int64
	window time.Duration
}

// New connects to Redis and verifies connectivity. An empty address returns
// a nil Limiter.
func New(ctx context.Context, cfg Config) (*Limiter, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, nil
	}
	if cfg.Limit <= 0 || cfg.Window <= 0 {
		return nil, errors.New("ratelimit: limit and window must be positive")
	}
	raw := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Limiter{store: raw, raw: raw, limit: cfg.Limit, window: cfg.Window}, nil
}

// Allow increments the counter for scope and reports whether the attempt is
// within the limit, along with the current count.
func (l *Limiter) Allow(ctx context.Context, scope string) (bool, int64, error) {
	if l == nil || l.store == nil {
		return true, 0, nil
	}
	key := Key(scope)
	count, err := l.store.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := l.store.Expire(ctx, key, l.window).Err(); err != nil {
			return false, count, err
		}
	}
	return count <= l.limit, count, nil
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	if l == nil {
		return 0
	}
	return l.window
}

// Close releases the Redis connection.
func (l *Limiter) Close() error {
	if l == nil || l.raw == nil {
		return nil
	}
	return l.raw.Close()
}

// Key returns the namespaced counter key for scope.
func Key(scope string) string {
	return keyNamespace + ":" + scope
}
