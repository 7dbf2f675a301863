package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newValidatorTest(t *testing.T, now func() time.Time) (*Manager, *Store, *Validator) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	m := newManagerTest(t, now)
	s := NewStore(rdb, now)
	return m, s, NewValidator(m, s)
}

func TestValidateHappyPath(t *testing.T) {
	m, s, v := newValidatorTest(t, nil)
	ctx := context.Background()

	signed, minted, err := m.Mint(baseSpec(TypeAccess))
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}

	res, err := v.Validate(ctx, signed, Bindings{DeviceFingerprint: "fp-1"})
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if !res.Valid || res.Score < ValidityFloor {
		t.Fatalf("expected valid token, got %+v", res)
	}
	if !res.Unlimited {
		t.Fatal("expected unlimited usage when no cap is set")
	}
	if res.RemainingTTL <= 0 {
		t.Fatalf("expected positive remaining TTL, got %s", res.RemainingTTL)
	}

	used, err := s.LastUsed(ctx, minted.ID)
	if err != nil {
		t.Fatalf("LastUsed error: %v", err)
	}
	if used == 0 {
		t.Fatal("expected last-used stamp after successful validation")
	}
}

func TestValidateDeviceMismatch(t *testing.T) {
	m, s, v := newValidatorTest(t, nil)
	ctx := context.Background()

	signed, minted, err := m.Mint(baseSpec(TypeAccess))
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}

	res, err := v.Validate(ctx, signed, Bindings{DeviceFingerprint: "other-device"})
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if res.Valid {
		t.Fatal("expected device mismatch to invalidate")
	}
	if len(res.Failures) != 1 || res.Failures[0] != "device_binding" {
		t.Fatalf("expected device_binding failure, got %v", res.Failures)
	}
	if res.Score >= ValidityFloor {
		t.Fatalf("expected score below floor, got %d", res.Score)
	}

	// Binding failure must not consume usage.
	count, err := s.Usage(ctx, minted.ID)
	if err != nil {
		t.Fatalf("Usage error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no usage consumed, got %d", count)
	}
}

func TestValidateLocationAndBiometricBindings(t *testing.T) {
	m, _, v := newValidatorTest(t, nil)
	ctx := context.Background()

	spec := baseSpec(TypeAccess)
	spec.LocationID = "floor-2"
	spec.LocationVerified = true
	spec.BiometricEnrollmentID = "enr-1"
	signed, _, err := m.Mint(spec)
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}

	// All bindings satisfied.
	res, err := v.Validate(ctx, signed, Bindings{
		DeviceFingerprint: "fp-1",
		LocationID:        "floor-2",
		BiometricVerified: true,
	})
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected valid token, got %+v", res)
	}

	// Wrong floor and no biometric proof: both failures reported, both
	// deductions applied.
	res, err = v.Validate(ctx, signed, Bindings{DeviceFingerprint: "fp-1"})
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if res.Valid {
		t.Fatal("expected binding failures to invalidate")
	}
	if len(res.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %v", res.Failures)
	}
	if res.Score != 100-locationMismatchPenalty-biometricMissingPenalty {
		t.Fatalf("unexpected score %d", res.Score)
	}
}

func TestValidateRiskDeduction(t *testing.T) {
	m, _, v := newValidatorTest(t, nil)
	ctx := context.Background()

	spec := baseSpec(TypeAccess)
	spec.RiskScore = 100
	spec.LocationID = "floor-2"
	spec.LocationVerified = true
	signed, _, err := m.Mint(spec)
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}

	// The location mismatch and the embedded risk both deduct, and the
	// binding failure alone invalidates regardless of the final score.
	res, err := v.Validate(ctx, signed, Bindings{DeviceFingerprint: "fp-1", LocationID: "floor-3"})
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if res.Valid {
		t.Fatal("expected invalid result")
	}
	if res.Score != 100-locationMismatchPenalty-100/riskPenaltyDivisor {
		t.Fatalf("unexpected score %d", res.Score)
	}
}

func TestSingleUseTokenValidatesExactlyOnce(t *testing.T) {
	m, _, v := newValidatorTest(t, nil)
	ctx := context.Background()

	spec := baseSpec(TypeAccess)
	spec.MaxUsage = 1
	signed, _, err := m.Mint(spec)
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}

	res, err := v.Validate(ctx, signed, Bindings{DeviceFingerprint: "fp-1"})
	if err != nil {
		t.Fatalf("first Validate error: %v", err)
	}
	if !res.Valid || res.RemainingUses != 0 || res.Unlimited {
		t.Fatalf("unexpected first validation: %+v", res)
	}

	if _, err := v.Validate(ctx, signed, Bindings{DeviceFingerprint: "fp-1"}); !errors.Is(err, ErrUsageExhausted) {
		t.Fatalf("expected ErrUsageExhausted, got %v", err)
	}
}

func TestValidateRevokedToken(t *testing.T) {
	m, s, v := newValidatorTest(t, nil)
	ctx := context.Background()

	signed, minted, err := m.Mint(baseSpec(TypeAccess))
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}

	if err := s.Revoke(ctx, minted.ID, time.Hour); err != nil {
		t.Fatalf("Revoke error: %v", err)
	}
	// Idempotent.
	if err := s.Revoke(ctx, minted.ID, time.Hour); err != nil {
		t.Fatalf("second Revoke error: %v", err)
	}

	if _, err := v.Validate(ctx, signed, Bindings{DeviceFingerprint: "fp-1"}); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked, got %v", err)
	}
}

func TestValidateExpiredTokenHardFails(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }
	m, _, v := newValidatorTest(t, clock)
	ctx := context.Background()

	signed, _, err := m.Mint(baseSpec(TypeBiometric))
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}

	current = current.Add(time.Hour)
	if _, err := v.Validate(ctx, signed, Bindings{DeviceFingerprint: "fp-1"}); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}
