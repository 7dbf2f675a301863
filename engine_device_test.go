package pinauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shiftsec/pinauth/device"
	"github.com/shiftsec/pinauth/session"
	"github.com/shiftsec/pinauth/token"
)

func TestTrustDeviceLifecycle(t *testing.T) {
	et := newEngineTest(t, testConfig(), withAuditCapture(32))
	et.seedAccount("alice", "acct-1", testPIN, "server")

	ctx := WithClientIP(context.Background(), "203.0.113.1")
	et.trustDevice(ctx, "alice", "acct-1", testPIN, testFingerprint)
	et.waitForAuditEvent(auditEventDeviceTrusted)

	devices, err := et.engine.ListDevices(ctx, "acct-1")
	if err != nil {
		t.Fatalf("device listing failed: %v", err)
	}
	if len(devices) != 1 || devices[0].Status != device.StatusTrusted {
		t.Fatalf("unexpected device list: %+v", devices)
	}

	et.login(ctx, "alice", testPIN, testFingerprint)
}

func TestRevokeDeviceKillsItsSessions(t *testing.T) {
	et := newEngineTest(t, testConfig(), withAuditCapture(32))
	et.seedAccount("alice", "acct-1", testPIN, "server")

	ctx := WithClientIP(context.Background(), "203.0.113.1")
	et.trustDevice(ctx, "alice", "acct-1", testPIN, testFingerprint)
	login := et.login(ctx, "alice", testPIN, testFingerprint)

	// Revocation takes no tenant hint; a bare context must still find
	// and kill the account's sessions.
	if _, err := et.engine.RevokeDevice(context.Background(), "acct-1", testFingerprint); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	et.waitForAuditEvent(auditEventDeviceRevoked)

	ids, err := et.engine.sessions.ActiveSessionIDs(ctx, "acct-1")
	if err != nil {
		t.Fatalf("session listing failed: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected sessions gone after device revocation, got %d", len(ids))
	}
	if _, err := et.engine.ValidateSession(ctx, ValidateSessionRequest{
		AccessToken: login.AccessToken,
		Fingerprint: testFingerprint,
	}); err == nil {
		t.Fatal("expected access token rejected after device revocation")
	}

	// A revoked device cannot log back in, and cannot be re-trusted.
	if _, err := et.engine.Login(ctx, LoginRequest{
		Identifier:  "alice",
		PIN:         testPIN,
		Fingerprint: testFingerprint,
	}); !errors.Is(err, ErrDeviceNotAuthorized) {
		t.Fatalf("expected ErrDeviceNotAuthorized from revoked device, got %v", err)
	}
	if _, err := et.engine.TrustDevice(ctx, "acct-1", testFingerprint); !errors.Is(err, ErrDeviceNotAuthorized) {
		t.Fatalf("expected ErrDeviceNotAuthorized trusting revoked device, got %v", err)
	}
}

func TestValidateSessionRejectsRevokedDevice(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = true
	et := newEngineTest(t, cfg)
	et.seedAccount("alice", "acct-1", testPIN, "server")

	ctx := WithClientIP(context.Background(), "203.0.113.1")
	et.trustDevice(ctx, "alice", "acct-1", testPIN, testFingerprint)
	result := et.login(ctx, "alice", testPIN, testFingerprint)

	// Revoke at the registry, beneath the engine's own teardown. Even
	// with the right fingerprint the live session must not validate:
	// revocation alone terminates, it never lands in a scoring band.
	if _, err := et.engine.registry.Revoke(ctx, "acct-1", testFingerprint); err != nil {
		t.Fatalf("registry revoke failed: %v", err)
	}

	_, err := et.engine.ValidateSession(ctx, ValidateSessionRequest{
		AccessToken: result.AccessToken,
		Fingerprint: testFingerprint,
	})
	if !errors.Is(err, ErrDeviceNotAuthorized) {
		t.Fatalf("expected ErrDeviceNotAuthorized on revoked device, got %v", err)
	}

	if _, err := et.engine.sessions.Get(ctx, result.SessionID); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected session terminated, got %v", err)
	}
	if got := et.engine.metrics.Value(MetricSessionTerminated); got != 1 {
		t.Fatalf("expected MetricSessionTerminated=1, got %d", got)
	}
}

func TestForgetDeviceAllowsReRegistration(t *testing.T) {
	et := newEngineTest(t, testConfig())
	et.seedAccount("alice", "acct-1", testPIN, "server")

	ctx := WithClientIP(context.Background(), "203.0.113.1")
	et.trustDevice(ctx, "alice", "acct-1", testPIN, testFingerprint)

	if err := et.engine.ForgetDevice(ctx, "acct-1", testFingerprint); err != nil {
		t.Fatalf("forget failed: %v", err)
	}

	// The device starts over as pending.
	_, err := et.engine.Login(ctx, LoginRequest{
		Identifier:  "alice",
		PIN:         testPIN,
		Fingerprint: testFingerprint,
	})
	if !errors.Is(err, ErrDeviceNotAuthorized) {
		t.Fatalf("expected fresh pending registration after forget, got %v", err)
	}
}

func TestCleanupInactiveDevices(t *testing.T) {
	cfg := testConfig()
	cfg.Device.InactivityExpiry = 30 * 24 * time.Hour
	et := newEngineTest(t, cfg)
	et.seedAccount("alice", "acct-1", testPIN, "server")

	ctx := WithClientIP(context.Background(), "203.0.113.1")
	et.trustDevice(ctx, "alice", "acct-1", testPIN, "fp-stale")
	et.advance(31 * 24 * time.Hour)
	et.trustDevice(ctx, "alice", "acct-1", testPIN, "fp-fresh")

	removed, err := et.engine.CleanupInactiveDevices(ctx, "acct-1")
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 stale device removed, got %d", removed)
	}

	devices, err := et.engine.ListDevices(ctx, "acct-1")
	if err != nil {
		t.Fatalf("device listing failed: %v", err)
	}
	if len(devices) != 1 || devices[0].Fingerprint != "fp-fresh" {
		t.Fatalf("unexpected survivors: %+v", devices)
	}
}

func TestBiometricVerifiedLoginMintsBiometricToken(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = true
	auth := &fakeAuthenticator{available: true, verifyOK: true}
	et := newEngineTest(t, cfg, withBiometrics(auth))
	et.seedAccount("alice", "acct-1", testPIN, "server")

	ctx := WithClientIP(context.Background(), "203.0.113.1")
	et.trustDevice(ctx, "alice", "acct-1", testPIN, testFingerprint)
	if _, err := et.engine.EnrollBiometric(ctx, "acct-1", testFingerprint, "face"); err != nil {
		t.Fatalf("enrollment failed: %v", err)
	}

	result := et.login(ctx, "alice", testPIN, testFingerprint)

	sess, err := et.engine.sessions.Get(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	if !sess.Context.BiometricVerified {
		t.Fatal("expected biometric-verified session context")
	}
	if sess.Tokens[string(token.TypeBiometric)] == "" {
		t.Fatal("expected a biometric token to be minted")
	}
	if got := et.engine.metrics.Value(MetricBiometricVerified); got != 1 {
		t.Fatalf("expected MetricBiometricVerified=1, got %d", got)
	}
}

func TestEnrollBiometricRequiresTrustedDevice(t *testing.T) {
	auth := &fakeAuthenticator{available: true, verifyOK: true}
	et := newEngineTest(t, testConfig(), withBiometrics(auth))
	et.seedAccount("alice", "acct-1", testPIN, "server")

	_, err := et.engine.EnrollBiometric(context.Background(), "acct-1", "fp-unknown", "face")
	if !errors.Is(err, ErrDeviceNotAuthorized) {
		t.Fatalf("expected ErrDeviceNotAuthorized for unknown device, got %v", err)
	}
}

func TestVerifyBiometricDisabledFallsBack(t *testing.T) {
	et := newEngineTest(t, testConfig())
	et.seedAccount("alice", "acct-1", testPIN, "server")

	result, err := et.engine.VerifyBiometric(context.Background(), "acct-1", testFingerprint)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if result.Verified || !result.FallbackToPIN {
		t.Fatalf("expected PIN fallback with biometrics disabled, got %+v", result)
	}
}

func TestUnenrollBiometricStopsVerification(t *testing.T) {
	auth := &fakeAuthenticator{available: true, verifyOK: true}
	et := newEngineTest(t, testConfig(), withBiometrics(auth))
	et.seedAccount("alice", "acct-1", testPIN, "server")

	ctx := WithClientIP(context.Background(), "203.0.113.1")
	et.trustDevice(ctx, "alice", "acct-1", testPIN, testFingerprint)
	if _, err := et.engine.EnrollBiometric(ctx, "acct-1", testFingerprint, "face"); err != nil {
		t.Fatalf("enrollment failed: %v", err)
	}
	if err := et.engine.UnenrollBiometric(ctx, "acct-1", testFingerprint); err != nil {
		t.Fatalf("unenroll failed: %v", err)
	}

	result, err := et.engine.VerifyBiometric(ctx, "acct-1", testFingerprint)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if result.Verified || !result.FallbackToPIN {
		t.Fatalf("expected PIN fallback after unenrollment, got %+v", result)
	}
}
