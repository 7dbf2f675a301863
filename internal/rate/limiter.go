package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds attempt-tracking and lockout tuning parameters.
type Config struct {
	MaxAttempts          int
	BaseLockout          time.Duration
	MaxLockoutMultiplier int           // cap on the exponential backoff factor; 0 = 64
	Retention            time.Duration // idle expiry for attempt records; 0 = 24h
	EnableOriginThrottle bool
	OriginMaxAttempts    int
}

// Limiter tracks failed authentication attempts per credential and per
// origin using Redis counters, and escalates repeat offenders into
// exponentially longer lockouts.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.MaxLockoutMultiplier <= 0 {
		cfg.MaxLockoutMultiplier = 64
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	return &Limiter{redis: redisClient, config: cfg}
}

func failureKey(credentialID string) string { return "pf:" + credentialID }
func originKey(origin string) string        { return "pfo:" + origin }
func lockKey(credentialID string) string    { return "plk:" + credentialID }

// Check reports whether an attempt for the credential may proceed.
// A locked credential yields a [LockedError] carrying the remaining
// lockout; an origin over its budget yields the same.
func (l *Limiter) Check(ctx context.Context, credentialID, origin string) error {
	ttl, err := l.redis.TTL(ctx, lockKey(credentialID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if ttl > 0 {
		return &LockedError{RetryAfter: ttl}
	}

	if l.config.EnableOriginThrottle && origin != "" {
		count, err := l.redis.Get(ctx, originKey(origin)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if count >= int64(l.config.OriginMaxAttempts) {
			retry, err := l.redis.TTL(ctx, originKey(origin)).Result()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
			}
			return &LockedError{RetryAfter: retry}
		}
	}

	return nil
}

// RecordFailure increments the attempt counters and, once the credential
// reaches the configured maximum, arms a lockout whose duration doubles
// with every further failure up to the multiplier cap. The counter is
// incremented before the threshold comparison, so concurrent failures can
// only over-trigger the lockout, never slip under it.
func (l *Limiter) RecordFailure(ctx context.Context, credentialID, origin string) (bool, time.Duration, error) {
	count, err := l.incrementWithTTL(ctx, failureKey(credentialID))
	if err != nil {
		return false, 0, err
	}

	if l.config.EnableOriginThrottle && origin != "" {
		if _, err := l.incrementWithTTL(ctx, originKey(origin)); err != nil {
			return false, 0, err
		}
	}

	if count < int64(l.config.MaxAttempts) {
		return false, 0, nil
	}

	lockFor := l.lockoutDuration(count)
	if err := l.redis.Set(ctx, lockKey(credentialID), "1", lockFor).Err(); err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	return true, lockFor, nil
}

// Reset clears the attempt counter and any active lockout for the
// credential. Called after a successful authentication.
func (l *Limiter) Reset(ctx context.Context, credentialID string) error {
	if err := l.redis.Del(ctx, failureKey(credentialID), lockKey(credentialID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// FailureCount returns the current attempt counter for a credential.
// Missing keys return zero and do not reveal account existence.
func (l *Limiter) FailureCount(ctx context.Context, credentialID string) (int, error) {
	count, err := l.redis.Get(ctx, failureKey(credentialID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// lockoutDuration doubles the base lockout for every failure beyond the
// threshold: base at the threshold, 2x base one failure past it, capped
// at MaxLockoutMultiplier times base.
func (l *Limiter) lockoutDuration(count int64) time.Duration {
	over := count - int64(l.config.MaxAttempts)
	multiplier := int64(1)
	for i := int64(0); i < over; i++ {
		multiplier *= 2
		if multiplier >= int64(l.config.MaxLockoutMultiplier) {
			multiplier = int64(l.config.MaxLockoutMultiplier)
			break
		}
	}
	return l.config.BaseLockout * time.Duration(multiplier)
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// Rolling retention: every failure pushes the record's expiry out.
	if err := l.redis.Expire(ctx, key, l.config.Retention).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	return count, nil
}
