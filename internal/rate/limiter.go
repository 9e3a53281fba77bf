package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window is one fixed-window budget.
type Window struct {
	MaxAttempts int
	Cooldown    time.Duration
}

func (w Window) enabled() bool {
	return w.MaxAttempts > 0 && w.Cooldown > 0
}

// Config selects the budgets. A zero Window disables that throttle.
type Config struct {
	Refresh Window
	Reset   Window
}

// Limiter counts attempts in Redis.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by redisClient.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckRefresh counts one refresh attempt for tokenID and fails with
// [ErrRateLimited] once the window budget is exceeded.
func (l *Limiter) CheckRefresh(ctx context.Context, tokenID string) error {
	return l.hit(ctx, refreshKey(tokenID), l.config.Refresh)
}

// CheckReset counts one password-reset attempt for identity.
func (l *Limiter) CheckReset(ctx context.Context, identity string) error {
	return l.hit(ctx, resetKey(identity), l.config.Reset)
}

// ResetRefresh clears the refresh counter for tokenID.
func (l *Limiter) ResetRefresh(ctx context.Context, tokenID string) error {
	if err := l.redis.Del(ctx, refreshKey(tokenID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the refresh counter for tokenID. Missing keys read as 0.
func (l *Limiter) Attempts(ctx context.Context, tokenID string) (int, error) {
	count, err := l.redis.Get(ctx, refreshKey(tokenID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) hit(ctx context.Context, key string, w Window) error {
	if l == nil || !w.enabled() {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, key, w.Cooldown)
	if err != nil {
		return err
	}
	if count > int64(w.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// fixed window: the first hit starts the clock
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func refreshKey(tokenID string) string { return "gr:" + tokenID }

func resetKey(identity string) string { return "gp:" + identity }
