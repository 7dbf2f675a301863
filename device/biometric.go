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

var (
	// ErrNotEnrolled is an exported constant or variable used by the authentication engine.
	ErrNotEnrolled = errors.New("biometric factor not enrolled")
	// ErrBiometricUnavailable is an exported constant or variable used by the authentication engine.
	ErrBiometricUnavailable = errors.New("biometric hardware unavailable")
)

// Authenticator abstracts the platform biometric capability. Implementations
// talk to the device's secure enclave or OS biometric prompt; the library
// ships none of its own.
type Authenticator interface {
	// Available reports whether the device can perform biometric
	// verification right now.
	Available(ctx context.Context, deviceID string) (bool, error)

	// SupportedTypes lists the biometric modalities the device offers,
	// e.g. "fingerprint", "face".
	SupportedTypes(ctx context.Context, deviceID string) ([]string, error)

	// Enroll performs the platform enrollment ceremony and returns an
	// opaque provider reference for later verification.
	Enroll(ctx context.Context, accountID, deviceID, biometricType string) (string, error)

	// Verify runs the platform verification prompt against a prior
	// enrollment reference.
	Verify(ctx context.Context, accountID, deviceID, providerRef string) (bool, error)
}

// Enrollment records one account/device biometric binding.
//
// Enrollment instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Enrollment struct {
	EnrollmentID  string `json:"enrollment_id"`
	AccountID     string `json:"account_id"`
	DeviceID      string `json:"device_id"`
	Fingerprint   string `json:"fingerprint"`
	BiometricType string `json:"biometric_type"`
	ProviderRef   string `json:"provider_ref"`
	CreatedAt     int64  `json:"created_at"`
}

// VerifyResult is the outcome of a biometric verification attempt.
// FallbackToPIN is set on every non-verified outcome: biometric
// verification can delay an attacker but must never strand a legitimate
// employee mid-shift.
//
// VerifyResult instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type VerifyResult struct {
	Verified      bool
	FallbackToPIN bool
	Reason        string
}

// ManagerConfig holds biometric negotiation tuning parameters.
type ManagerConfig struct {
	// NegotiationTimeout bounds the platform verification round trip;
	// 0 = 10s.
	NegotiationTimeout time.Duration
}

// Manager couples the platform [Authenticator] with a Redis enrollment
// store and the device trust registry.
type Manager struct {
	redis         redis.UniversalClient
	registry      *Registry
	authenticator Authenticator
	config        ManagerConfig
	now           func() time.Time
}

// NewManager creates a biometric [Manager]. The authenticator may be nil,
// in which case every verification degrades to PIN fallback.
func NewManager(redisClient redis.UniversalClient, registry *Registry, auth Authenticator, cfg ManagerConfig, now func() time.Time) *Manager {
	if cfg.NegotiationTimeout <= 0 {
		cfg.NegotiationTimeout = 10 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{
		redis:         redisClient,
		registry:      registry,
		authenticator: auth,
		config:        cfg,
		now:           now,
	}
}

func enrollmentKey(accountID, fingerprint string) string {
	return "bio:" + accountID + ":" + fingerprint
}

// Enroll binds a biometric factor to an account/device pair. The device
// must already be trusted; the caller is responsible for requiring a fresh
// PIN verification before invoking this.
//
// Enroll may return an error when input validation, dependency calls, or security checks fail.
// Enroll does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) Enroll(ctx context.Context, accountID, fingerprint, biometricType string) (*Enrollment, error) {
	if m.authenticator == nil {
		return nil, ErrBiometricUnavailable
	}

	rec, err := m.registry.Get(ctx, accountID, fingerprint)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusTrusted {
		return nil, ErrNotTrusted
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.NegotiationTimeout)
	defer cancel()

	available, err := m.authenticator.Available(ctx, rec.DeviceID)
	if err != nil || !available {
		return nil, ErrBiometricUnavailable
	}

	ref, err := m.authenticator.Enroll(ctx, accountID, rec.DeviceID, biometricType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBiometricUnavailable, err)
	}

	enr := &Enrollment{
		EnrollmentID:  uuid.NewString(),
		AccountID:     accountID,
		DeviceID:      rec.DeviceID,
		Fingerprint:   fingerprint,
		BiometricType: biometricType,
		ProviderRef:   ref,
		CreatedAt:     m.now().Unix(),
	}

	raw, err := json.Marshal(enr)
	if err != nil {
		return nil, err
	}
	if err := m.redis.Set(ctx, enrollmentKey(accountID, fingerprint), raw, 0).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return enr, nil
}

// Enrollment returns the stored biometric binding for an account/device
// pair, or [ErrNotEnrolled].
//
// Enrollment may return an error when input validation, dependency calls, or security checks fail.
// Enrollment does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) Enrollment(ctx context.Context, accountID, fingerprint string) (*Enrollment, error) {
	raw, err := m.redis.Get(ctx, enrollmentKey(accountID, fingerprint)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotEnrolled
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var enr Enrollment
	if err := json.Unmarshal([]byte(raw), &enr); err != nil {
		return nil, fmt.Errorf("%w: corrupt enrollment record: %v", ErrStoreUnavailable, err)
	}
	return &enr, nil
}

// Unenroll removes the biometric binding. Idempotent.
//
// Unenroll may return an error when input validation, dependency calls, or security checks fail.
// Unenroll does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) Unenroll(ctx context.Context, accountID, fingerprint string) error {
	if err := m.redis.Del(ctx, enrollmentKey(accountID, fingerprint)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Verify runs the biometric prompt for an enrolled account/device pair,
// bounded by the negotiation timeout. Every non-verified path, including
// provider errors and timeouts, returns FallbackToPIN=true with a nil
// error so the login flow can continue with the PIN factor.
//
// Verify may return an error when input validation, dependency calls, or security checks fail.
// Verify does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) Verify(ctx context.Context, accountID, fingerprint string) (VerifyResult, error) {
	fallback := func(reason string) VerifyResult {
		return VerifyResult{FallbackToPIN: true, Reason: reason}
	}

	if m.authenticator == nil {
		return fallback("no_authenticator"), nil
	}

	enr, err := m.Enrollment(ctx, accountID, fingerprint)
	if err != nil {
		if errors.Is(err, ErrNotEnrolled) {
			return fallback("not_enrolled"), nil
		}
		return fallback("store_unavailable"), err
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.NegotiationTimeout)
	defer cancel()

	available, err := m.authenticator.Available(ctx, enr.DeviceID)
	if err != nil || !available {
		return fallback("hardware_unavailable"), nil
	}

	ok, err := m.authenticator.Verify(ctx, accountID, enr.DeviceID, enr.ProviderRef)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fallback("negotiation_timeout"), nil
		}
		return fallback("provider_error"), nil
	}
	if !ok {
		return fallback("not_recognized"), nil
	}

	return VerifyResult{Verified: true}, nil
}
