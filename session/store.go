package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is an exported constant or variable used by the authentication engine.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is an exported constant or variable used by the authentication engine.
	ErrExpired = errors.New("session expired")
	// ErrIdleTimeout is an exported constant or variable used by the authentication engine.
	ErrIdleTimeout = errors.New("session idle timeout")
	// ErrRefreshMismatch is an exported constant or variable used by the authentication engine.
	ErrRefreshMismatch = errors.New("refresh token superseded")
	// ErrDeviceSlotExhausted is an exported constant or variable used by the authentication engine.
	ErrDeviceSlotExhausted = errors.New("device session slot exhausted")
	// ErrRedisUnavailable is an exported constant or variable used by the authentication engine.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusMismatch int64 = 1
	rotateStatusRotated  int64 = 2
)

// rotateRefreshScript swaps the session's current refresh-token ID only
// if the caller still holds it. The key carries the session TTL, which
// the swap preserves.
const rotateRefreshScript = `
local current = redis.call("GET", KEYS[1])
if not current then
  return 0
end
if current ~= ARGV[1] then
  return 1
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
  redis.call("SET", KEYS[1], ARGV[2], "PX", ttl)
else
  redis.call("SET", KEYS[1], ARGV[2])
end
return 2
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// acquireSlotScript admits a session into the per-device concurrency set
// only while the set is under its cap.
const acquireSlotScript = `
local count = redis.call("SCARD", KEYS[1])
if count >= tonumber(ARGV[2]) then
  return 0
end
redis.call("SADD", KEYS[1], ARGV[1])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1
`

var acquireSlotLua = redis.NewScript(acquireSlotScript)

// Store is a Redis-backed session store handling persistence, idle and
// absolute expiry, per-device concurrency slots, and atomic refresh-ID
// rotation.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace.
func NewStore(redisClient redis.UniversalClient, prefix string, now func() time.Time) *Store {
	if prefix == "" {
		prefix = "ps"
	}
	if now == nil {
		now = time.Now
	}
	return &Store{redis: redisClient, prefix: prefix, now: now}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// accountKey is scoped by account alone. An account belongs to exactly
// one restaurant, and termination paths must find its sessions without
// any tenant hint from the caller.
func (s *Store) accountKey(accountID string) string {
	return s.prefix + "u:" + accountID
}

func (s *Store) refreshKey(sessionID string) string {
	return s.prefix + "r:" + sessionID
}

func (s *Store) deviceSlotKey(accountID, deviceID string) string {
	return s.prefix + "d:" + accountID + ":" + deviceID
}

// Save persists the session and its index entry. The key TTL is the
// remaining absolute lifetime, so abandoned sessions evaporate on their
// own.
//
// Save may return an error when input validation, dependency calls, or security checks fail.
// Save does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	sess.SchemaVersion = SchemaVersion
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	ttl := s.remainingLifetime(sess)
	if ttl <= 0 {
		return ErrExpired
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, ttl)
		pipe.SAdd(ctx, s.accountKey(sess.AccountID), sess.SessionID)
		pipe.Expire(ctx, s.accountKey(sess.AccountID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads a session and enforces idle and absolute expiry
// independently: a session past either bound is removed and reported
// with the corresponding sentinel.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
// Get does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	raw, err := s.redis.Get(ctx, s.key(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("%w: corrupt session blob: %v", ErrRedisUnavailable, err)
	}

	now := s.now().Unix()
	if sess.ExpiresAt > 0 && now >= sess.ExpiresAt {
		_, _ = s.Delete(ctx, &sess)
		return nil, ErrExpired
	}
	if deadline := sess.idleDeadline(); deadline > 0 && now >= deadline {
		_, _ = s.Delete(ctx, &sess)
		return nil, ErrIdleTimeout
	}

	return &sess, nil
}

// TouchActivity advances the idle clock after a successful validation.
//
// TouchActivity may return an error when input validation, dependency calls, or security checks fail.
// TouchActivity does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) TouchActivity(ctx context.Context, sess *Session) error {
	sess.LastActivityAt = s.now().Unix()
	return s.Save(ctx, sess)
}

// Delete removes the session, its index entry, its refresh key, and its
// device slot. Returns whether the session still existed; deleting an
// already-gone session is not an error.
//
// Delete may return an error when input validation, dependency calls, or security checks fail.
// Delete does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) Delete(ctx context.Context, sess *Session) (bool, error) {
	existed, err := s.redis.Del(ctx, s.key(sess.SessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, s.accountKey(sess.AccountID), sess.SessionID)
		pipe.Del(ctx, s.refreshKey(sess.SessionID))
		pipe.SRem(ctx, s.deviceSlotKey(sess.AccountID, sess.DeviceID), sess.SessionID)
		return nil
	})
	if err != nil {
		return existed > 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return existed > 0, nil
}

// ActiveSessionIDs lists the indexed sessions for an account, without
// verifying each is still live.
//
// ActiveSessionIDs may return an error when input validation, dependency calls, or security checks fail.
// ActiveSessionIDs does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) ActiveSessionIDs(ctx context.Context, accountID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// DeleteAllForAccount terminates every indexed session for the account
// and returns how many were removed.
//
// DeleteAllForAccount may return an error when input validation, dependency calls, or security checks fail.
// DeleteAllForAccount does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) DeleteAllForAccount(ctx context.Context, accountID string) (int, error) {
	ids, err := s.ActiveSessionIDs(ctx, accountID)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrExpired) || errors.Is(err, ErrIdleTimeout) {
				_ = s.redis.SRem(ctx, s.accountKey(accountID), id).Err()
				continue
			}
			return removed, err
		}
		existed, err := s.Delete(ctx, sess)
		if err != nil {
			return removed, err
		}
		if existed {
			removed++
		}
	}
	return removed, nil
}

// SetRefreshID installs the session's current refresh-token ID with the
// same lifetime as the session.
//
// SetRefreshID may return an error when input validation, dependency calls, or security checks fail.
// SetRefreshID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) SetRefreshID(ctx context.Context, sess *Session, refreshID string) error {
	ttl := s.remainingLifetime(sess)
	if ttl <= 0 {
		return ErrExpired
	}
	if err := s.redis.Set(ctx, s.refreshKey(sess.SessionID), refreshID, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CurrentRefreshID returns the refresh-token ID the session currently
// honors.
//
// CurrentRefreshID may return an error when input validation, dependency calls, or security checks fail.
// CurrentRefreshID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) CurrentRefreshID(ctx context.Context, sessionID string) (string, error) {
	id, err := s.redis.Get(ctx, s.refreshKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return id, nil
}

// RotateRefreshID atomically replaces the current refresh-token ID,
// but only when the caller presents the ID that is still current. A
// concurrent rotation that got there first surfaces as
// [ErrRefreshMismatch], so a superseded refresh token can never rotate
// again.
//
// RotateRefreshID may return an error when input validation, dependency calls, or security checks fail.
// RotateRefreshID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) RotateRefreshID(ctx context.Context, sessionID, currentID, nextID string) error {
	res, err := rotateRefreshLua.Run(ctx, s.redis, []string{s.refreshKey(sessionID)}, currentID, nextID).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch res {
	case rotateStatusRotated:
		return nil
	case rotateStatusNotFound:
		return ErrNotFound
	case rotateStatusMismatch:
		return ErrRefreshMismatch
	default:
		return fmt.Errorf("%w: unexpected rotate status %d", ErrRedisUnavailable, res)
	}
}

// AcquireDeviceSlot admits a new session onto a device, bounded by the
// policy's per-device concurrency allowance.
//
// AcquireDeviceSlot may return an error when input validation, dependency calls, or security checks fail.
// AcquireDeviceSlot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) AcquireDeviceSlot(ctx context.Context, sess *Session, maxPerDevice int) error {
	if maxPerDevice <= 0 {
		maxPerDevice = 1
	}
	ttl := s.remainingLifetime(sess)
	if ttl <= 0 {
		return ErrExpired
	}

	res, err := acquireSlotLua.Run(
		ctx,
		s.redis,
		[]string{s.deviceSlotKey(sess.AccountID, sess.DeviceID)},
		sess.SessionID,
		strconv.Itoa(maxPerDevice),
		strconv.FormatInt(ttl.Milliseconds(), 10),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if res == 0 {
		return ErrDeviceSlotExhausted
	}
	return nil
}

// ReleaseDeviceSlot gives back a slot taken by [Store.AcquireDeviceSlot]
// when session creation fails before the session is saved. Releasing a
// slot that was never held is not an error.
//
// ReleaseDeviceSlot may return an error when input validation, dependency calls, or security checks fail.
// ReleaseDeviceSlot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) ReleaseDeviceSlot(ctx context.Context, sess *Session) error {
	if err := s.redis.SRem(ctx, s.deviceSlotKey(sess.AccountID, sess.DeviceID), sess.SessionID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeviceSlotCount reports how many sessions currently occupy the
// device.
//
// DeviceSlotCount may return an error when input validation, dependency calls, or security checks fail.
// DeviceSlotCount does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) DeviceSlotCount(ctx context.Context, accountID, deviceID string) (int, error) {
	count, err := s.redis.SCard(ctx, s.deviceSlotKey(accountID, deviceID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

func (s *Store) remainingLifetime(sess *Session) time.Duration {
	if sess.ExpiresAt <= 0 {
		// No absolute bound; hold the blob for the idle window plus
		// slack so idle enforcement still sees the record.
		if sess.Policy.IdleTimeout > 0 {
			return sess.Policy.IdleTimeout * 2
		}
		return 24 * time.Hour
	}
	return time.Unix(sess.ExpiresAt, 0).Sub(s.now())
}
