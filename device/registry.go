package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Status is the trust state of a registered device.
type Status string

const (
	// StatusPending is an exported constant or variable used by the authentication engine.
	StatusPending Status = "pending"
	// StatusTrusted is an exported constant or variable used by the authentication engine.
	StatusTrusted Status = "trusted"
	// StatusRevoked is an exported constant or variable used by the authentication engine.
	StatusRevoked Status = "revoked"
)

var (
	// ErrNotTrusted is an exported constant or variable used by the authentication engine.
	ErrNotTrusted = errors.New("device not trusted")
	// ErrRevoked is an exported constant or variable used by the authentication engine.
	ErrRevoked = errors.New("device revoked")
	// ErrNotFound is an exported constant or variable used by the authentication engine.
	ErrNotFound = errors.New("device not found")
	// ErrStoreUnavailable is an exported constant or variable used by the authentication engine.
	ErrStoreUnavailable = errors.New("device store unavailable")
)

// Record is the stored state of one device registration.
//
// Record instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Record struct {
	DeviceID    string `json:"device_id"`
	AccountID   string `json:"account_id"`
	Fingerprint string `json:"fingerprint"`
	Status      Status `json:"status"`
	CreatedAt   int64  `json:"created_at"`
	LastSeenAt  int64  `json:"last_seen_at"`
	TrustedAt   int64  `json:"trusted_at,omitempty"`
	RevokedAt   int64  `json:"revoked_at,omitempty"`
}

// RegistryConfig holds device registry tuning parameters.
type RegistryConfig struct {
	// InactivityExpiry bounds how long an untouched registration survives
	// CleanupInactive. 0 disables inactivity cleanup.
	InactivityExpiry time.Duration
}

// Registry persists device registrations and their trust lifecycle in Redis.
type Registry struct {
	redis  redis.UniversalClient
	config RegistryConfig
	now    func() time.Time
}

// NewRegistry creates a [Registry] backed by the given Redis client.
func NewRegistry(redisClient redis.UniversalClient, cfg RegistryConfig, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{redis: redisClient, config: cfg, now: now}
}

func recordKey(accountID, fingerprint string) string { return "dreg:" + accountID + ":" + fingerprint }
func indexKey(accountID string) string               { return "didx:" + accountID }

// ValidateOrRegister gates an authentication attempt on device trust.
// Trusted devices pass and get their last-seen stamp refreshed. Unknown
// fingerprints are registered as pending and denied with [ErrNotTrusted];
// pending devices keep being denied until trusted; revoked devices are
// denied with [ErrRevoked]. The returned record is non-nil in every
// non-infrastructure outcome so callers can audit the device identity.
func (r *Registry) ValidateOrRegister(ctx context.Context, accountID, fingerprint string) (*Record, error) {
	rec, err := r.Get(ctx, accountID, fingerprint)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		rec = &Record{
			DeviceID:    uuid.NewString(),
			AccountID:   accountID,
			Fingerprint: fingerprint,
			Status:      StatusPending,
			CreatedAt:   r.now().Unix(),
			LastSeenAt:  r.now().Unix(),
		}
		if err := r.save(ctx, rec); err != nil {
			return nil, err
		}
		if err := r.redis.SAdd(ctx, indexKey(accountID), fingerprint).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return rec, ErrNotTrusted
	}

	switch rec.Status {
	case StatusTrusted:
		rec.LastSeenAt = r.now().Unix()
		if err := r.save(ctx, rec); err != nil {
			return nil, err
		}
		return rec, nil
	case StatusRevoked:
		return rec, ErrRevoked
	default:
		rec.LastSeenAt = r.now().Unix()
		if err := r.save(ctx, rec); err != nil {
			return nil, err
		}
		return rec, ErrNotTrusted
	}
}

// Get describes the get operation and its observable behavior.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
// Get does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (r *Registry) Get(ctx context.Context, accountID, fingerprint string) (*Record, error) {
	raw, err := r.redis.Get(ctx, recordKey(accountID, fingerprint)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("%w: corrupt device record: %v", ErrStoreUnavailable, err)
	}
	return &rec, nil
}

// Trust promotes a pending device. Trusting a revoked device fails with
// [ErrRevoked]: revocation can only be undone by Forget plus a fresh
// registration.
//
// Trust may return an error when input validation, dependency calls, or security checks fail.
// Trust does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (r *Registry) Trust(ctx context.Context, accountID, fingerprint string) (*Record, error) {
	rec, err := r.Get(ctx, accountID, fingerprint)
	if err != nil {
		return nil, err
	}

	switch rec.Status {
	case StatusRevoked:
		return nil, ErrRevoked
	case StatusTrusted:
		return rec, nil
	}

	rec.Status = StatusTrusted
	rec.TrustedAt = r.now().Unix()
	if err := r.save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Revoke marks a device revoked, effective immediately. Revoking an
// already-revoked device is a no-op.
//
// Revoke may return an error when input validation, dependency calls, or security checks fail.
// Revoke does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (r *Registry) Revoke(ctx context.Context, accountID, fingerprint string) (*Record, error) {
	rec, err := r.Get(ctx, accountID, fingerprint)
	if err != nil {
		return nil, err
	}
	if rec.Status == StatusRevoked {
		return rec, nil
	}

	rec.Status = StatusRevoked
	rec.RevokedAt = r.now().Unix()
	if err := r.save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Forget removes a registration entirely so the fingerprint can be
// re-registered from scratch. Idempotent.
//
// Forget may return an error when input validation, dependency calls, or security checks fail.
// Forget does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (r *Registry) Forget(ctx context.Context, accountID, fingerprint string) error {
	if err := r.redis.Del(ctx, recordKey(accountID, fingerprint)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := r.redis.SRem(ctx, indexKey(accountID), fingerprint).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// List returns every registration for the account, skipping index entries
// whose record has expired.
//
// List may return an error when input validation, dependency calls, or security checks fail.
// List does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (r *Registry) List(ctx context.Context, accountID string) ([]Record, error) {
	fingerprints, err := r.redis.SMembers(ctx, indexKey(accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	records := make([]Record, 0, len(fingerprints))
	for _, fp := range fingerprints {
		rec, err := r.Get(ctx, accountID, fp)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// CleanupInactive forgets registrations idle past the configured expiry
// and returns how many were removed. A zero expiry disables cleanup.
//
// CleanupInactive may return an error when input validation, dependency calls, or security checks fail.
// CleanupInactive does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (r *Registry) CleanupInactive(ctx context.Context, accountID string) (int, error) {
	if r.config.InactivityExpiry <= 0 {
		return 0, nil
	}

	records, err := r.List(ctx, accountID)
	if err != nil {
		return 0, err
	}

	cutoff := r.now().Add(-r.config.InactivityExpiry).Unix()
	removed := 0
	for _, rec := range records {
		if rec.LastSeenAt >= cutoff {
			continue
		}
		if err := r.Forget(ctx, accountID, rec.Fingerprint); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (r *Registry) save(ctx context.Context, rec *Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := r.redis.Set(ctx, recordKey(rec.AccountID, rec.Fingerprint), raw, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
