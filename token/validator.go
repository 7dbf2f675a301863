package token

import (
	"context"
	"time"
)

// Binding deduction weights. Device is the anchor binding, so its
// failure alone drops a token below the validity floor.
const (
	deviceMismatchPenalty   = 60
	locationMismatchPenalty = 25
	biometricMissingPenalty = 20
	riskPenaltyDivisor      = 5
)

// Bindings is the caller-observed context a token is validated against.
//
// Bindings instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Bindings struct {
	DeviceFingerprint string
	LocationID        string
	BiometricVerified bool
}

// Validation is the outcome of a token validation.
//
// Validation instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Validation struct {
	Valid    bool
	Claims   *Claims
	Score    int
	Failures []string

	RemainingTTL  time.Duration
	RemainingUses int64
	Unlimited     bool
}

// Validator couples signature verification with the token state store.
type Validator struct {
	manager *Manager
	store   *Store
}

// NewValidator describes the newvalidator operation and its observable behavior.
//
// NewValidator may return an error when input validation, dependency calls, or security checks fail.
// NewValidator does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewValidator(manager *Manager, store *Store) *Validator {
	return &Validator{manager: manager, store: store}
}

// Validate checks one token against the observed bindings.
//
// Expiry, revocation, and usage exhaustion return errors: those states are
// terminal and no score can rescue them. Binding mismatches return a
// non-nil Validation with Valid=false and the per-check failures, without
// consuming usage. A token is valid only when every binding it carries
// passes and the composite score holds the validity floor; only then is
// usage consumed and the last-used stamp written.
func (v *Validator) Validate(ctx context.Context, tokenStr string, b Bindings) (*Validation, error) {
	claims, err := v.manager.Parse(tokenStr)
	if err != nil {
		return nil, err
	}

	revoked, err := v.store.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrRevoked
	}

	out := &Validation{
		Claims:       claims,
		Score:        100,
		RemainingTTL: v.manager.Remaining(claims),
		Unlimited:    claims.MaxUsage == 0,
	}

	if claims.DeviceFingerprint != b.DeviceFingerprint {
		out.Score -= deviceMismatchPenalty
		out.Failures = append(out.Failures, "device_binding")
	}
	if claims.LocationID != "" && claims.LocationID != b.LocationID {
		out.Score -= locationMismatchPenalty
		out.Failures = append(out.Failures, "location_binding")
	}
	if claims.BiometricEnrollmentID != "" && !b.BiometricVerified {
		out.Score -= biometricMissingPenalty
		out.Failures = append(out.Failures, "biometric_binding")
	}
	out.Score -= claims.RiskScore / riskPenaltyDivisor
	out.Score = clampScore(out.Score)

	if len(out.Failures) > 0 || out.Score < ValidityFloor {
		return out, nil
	}

	count, err := v.store.ConsumeUsage(ctx, claims.ID, out.RemainingTTL)
	if err != nil {
		return nil, err
	}
	if claims.MaxUsage > 0 {
		if count > claims.MaxUsage {
			return nil, ErrUsageExhausted
		}
		out.RemainingUses = claims.MaxUsage - count
	}

	if err := v.store.TouchLastUsed(ctx, claims.ID, out.RemainingTTL); err != nil {
		return nil, err
	}

	out.Valid = true
	return out, nil
}
