package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nis-portal/portal-api/internal/logging"
	"github.com/nis-portal/portal-api/internal/redisclient"
)

// RateLimiter is a fixed-window attempt counter keyed by caller. Counters
// live in Redis when a client is configured; a Redis error falls back to a
// per-process window so login keeps working while Redis is down.
type RateLimiter struct {
	redis  *redisclient.Client
	limit  int
	window time.Duration
	prefix string

	mutex sync.Mutex
	local map[string]*localWindow

	logger *logging.SafeLogger
	now    func() time.Time
}

type localWindow struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter creates a limiter allowing limit attempts per window. A nil
// client uses only the in-process counters. A non-positive limit disables
// limiting.
func NewRateLimiter(client *redisclient.Client, prefix string, limit int, window time.Duration, logger *logging.SafeLogger) *RateLimiter {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RateLimiter{
		redis:  client,
		limit:  limit,
		window: window,
		prefix: prefix,
		local:  make(map[string]*localWindow),
		logger: logger,
		now:    time.Now,
	}
}

// Allow counts one attempt for key. When the limit is exceeded it returns
// false and the time until the window resets.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if rl.limit <= 0 {
		return true, 0
	}
	fullKey := rl.prefix + key

	if rl.redis != nil {
		count, retryAfter, err := rl.redisAttempt(ctx, fullKey)
		if err == nil {
			if count > int64(rl.limit) {
				rl.logger.Warn("rate limiter rejected request",
					zap.String("key", fullKey),
					zap.Int64("attempts", count),
					zap.Int("limit", rl.limit))
				return false, retryAfter
			}
			return true, 0
		}
		rl.logger.Warn("redis rate limit unavailable, using local counters",
			zap.String("key", fullKey),
			zap.Error(err))
	}

	return rl.localAttempt(fullKey)
}

func (rl *RateLimiter) redisAttempt(ctx context.Context, key string) (int64, time.Duration, error) {
	count, err := rl.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if err := rl.redis.PExpire(ctx, key, rl.window).Err(); err != nil {
			return 0, 0, err
		}
		return count, rl.window, nil
	}

	ttl, err := rl.redis.PTTL(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	// a key left without expiry would lock the caller out for good
	if ttl < 0 {
		if err := rl.redis.PExpire(ctx, key, rl.window).Err(); err != nil {
			return 0, 0, err
		}
		ttl = rl.window
	}
	return count, ttl, nil
}

func (rl *RateLimiter) localAttempt(key string) (bool, time.Duration) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	w, ok := rl.local[key]
	if !ok || !now.Before(w.resetAt) {
		w = &localWindow{resetAt: now.Add(rl.window)}
		rl.local[key] = w
	}
	w.count++
	if w.count > rl.limit {
		rl.logger.Warn("rate limiter rejected request",
			zap.String("key", key),
			zap.Int("attempts", w.count),
			zap.Int("limit", rl.limit))
		return false, w.resetAt.Sub(now)
	}
	return true, 0
}

// Reset clears the counters for key.
func (rl *RateLimiter) Reset(ctx context.Context, key string) {
	fullKey := rl.prefix + key
	if rl.redis != nil {
		if err := rl.redis.Del(ctx, fullKey).Err(); err != nil {
			rl.logger.Warn("failed to reset rate limit", zap.String("key", fullKey), zap.Error(err))
		}
	}
	rl.mutex.Lock()
	delete(rl.local, fullKey)
	rl.mutex.Unlock()
}

// CleanupExpired drops local windows that have already reset.
func (rl *RateLimiter) CleanupExpired() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	removed := 0
	for key, w := range rl.local {
		if !now.Before(w.resetAt) {
			delete(rl.local, key)
			removed++
		}
	}
	return removed
}

// StartCleanup runs CleanupExpired every interval until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := rl.CleanupExpired(); n > 0 {
					rl.logger.Debug("cleaned up rate limit windows", zap.Int("removed", n))
				}
			}
		}
	}()
}
