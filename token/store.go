package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable is an exported constant or variable used by the authentication engine.
var ErrStoreUnavailable = errors.New("token store unavailable")

// Store keeps per-token mutable state in Redis: usage counters, the
// revocation flag, and the last-used stamp. Keys carry the token's
// remaining lifetime as TTL so state evaporates with the token.
type Store struct {
	redis redis.UniversalClient
	now   func() time.Time
}

// NewStore creates a token [Store] backed by the given Redis client.
func NewStore(redisClient redis.UniversalClient, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{redis: redisClient, now: now}
}

func usageKey(tokenID string) string    { return "tku:" + tokenID }
func revokedKey(tokenID string) string  { return "tkr:" + tokenID }
func lastUsedKey(tokenID string) string { return "tkl:" + tokenID }

// ConsumeUsage atomically increments the token's usage counter and
// returns the post-increment count. The caller compares the count against
// the token's cap after the increment, so concurrent consumers of a
// single-use token cannot both come in under it.
func (s *Store) ConsumeUsage(ctx context.Context, tokenID string, ttl time.Duration) (int64, error) {
	count, err := s.redis.Incr(ctx, usageKey(tokenID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count == 1 && ttl > 0 {
		if err := s.redis.Expire(ctx, usageKey(tokenID), ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return count, nil
}

// Usage returns the current usage count without consuming.
//
// Usage may return an error when input validation, dependency calls, or security checks fail.
// Usage does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) Usage(ctx context.Context, tokenID string) (int64, error) {
	count, err := s.redis.Get(ctx, usageKey(tokenID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}

// Revoke marks the token revoked until it would have expired anyway.
// Revoking twice is a no-op; revocation is never undone.
//
// Revoke may return an error when input validation, dependency calls, or security checks fail.
// Revoke does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		// Already expired; revocation is moot but still recorded briefly
		// so in-flight validations observe it.
		ttl = time.Minute
	}
	if err := s.redis.Set(ctx, revokedKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IsRevoked describes the isrevoked operation and its observable behavior.
//
// IsRevoked may return an error when input validation, dependency calls, or security checks fail.
// IsRevoked does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	_, err := s.redis.Get(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return true, nil
}

// TouchLastUsed stamps the token's last successful validation time.
//
// TouchLastUsed may return an error when input validation, dependency calls, or security checks fail.
// TouchLastUsed does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) TouchLastUsed(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	stamp := s.now().Unix()
	if err := s.redis.Set(ctx, lastUsedKey(tokenID), stamp, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// LastUsed returns the Unix time of the last successful validation, or
// zero when the token has never been used.
//
// LastUsed may return an error when input validation, dependency calls, or security checks fail.
// LastUsed does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) LastUsed(ctx context.Context, tokenID string) (int64, error) {
	stamp, err := s.redis.Get(ctx, lastUsedKey(tokenID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return stamp, nil
}
