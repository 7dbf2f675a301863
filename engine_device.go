package pinauth

import (
	"context"
	"errors"

	"github.com/shiftsec/pinauth/device"
)

// TrustDevice promotes a pending device to trusted, typically after a
// manager approves it from the registered-devices screen.
//
// TrustDevice may return an error when input validation, dependency calls, or security checks fail.
// TrustDevice does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) TrustDevice(ctx context.Context, accountID, fingerprint string) (*device.Record, error) {
	if e == nil || e.registry == nil {
		return nil, ErrEngineNotReady
	}

	rec, err := e.registry.Trust(ctx, accountID, fingerprint)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrNotFound):
			return nil, ErrDeviceNotAuthorized
		case errors.Is(err, device.ErrRevoked):
			e.emitAudit(ctx, auditEventUnauthorizedAccess, false, accountID, "", "", "", ErrDeviceNotAuthorized, func() map[string]string {
				return map[string]string{"reason": "trust_revoked_device"}
			})
			return nil, ErrDeviceNotAuthorized
		default:
			return nil, ErrInternal
		}
	}

	e.emitAudit(ctx, auditEventDeviceTrusted, true, accountID, "", "", rec.DeviceID, nil, nil)
	return rec, nil
}

// RevokeDevice marks a device untrusted and tears down every session the
// account holds on it.
//
// RevokeDevice may return an error when input validation, dependency calls, or security checks fail.
// RevokeDevice does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RevokeDevice(ctx context.Context, accountID, fingerprint string) (*device.Record, error) {
	if e == nil || e.registry == nil {
		return nil, ErrEngineNotReady
	}

	rec, err := e.registry.Revoke(ctx, accountID, fingerprint)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			return nil, ErrDeviceNotAuthorized
		}
		return nil, ErrInternal
	}

	// Sessions bound to a revoked device must not outlive the revocation.
	if _, err := e.TerminateAllForAccount(ctx, accountID, "device_revoked"); err != nil {
		return nil, err
	}

	e.metricInc(MetricDeviceRejected)
	e.emitAudit(ctx, auditEventDeviceRevoked, true, accountID, "", "", rec.DeviceID, nil, nil)
	return rec, nil
}

// ForgetDevice describes the forgetdevice operation and its observable behavior.
//
// ForgetDevice may return an error when input validation, dependency calls, or security checks fail.
// ForgetDevice does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ForgetDevice(ctx context.Context, accountID, fingerprint string) error {
	if e == nil || e.registry == nil {
		return ErrEngineNotReady
	}
	if err := e.registry.Forget(ctx, accountID, fingerprint); err != nil {
		if errors.Is(err, device.ErrNotFound) {
			return ErrDeviceNotAuthorized
		}
		return ErrInternal
	}
	return nil
}

// ListDevices describes the listdevices operation and its observable behavior.
//
// ListDevices may return an error when input validation, dependency calls, or security checks fail.
// ListDevices does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ListDevices(ctx context.Context, accountID string) ([]device.Record, error) {
	if e == nil || e.registry == nil {
		return nil, ErrEngineNotReady
	}
	recs, err := e.registry.List(ctx, accountID)
	if err != nil {
		return nil, ErrInternal
	}
	return recs, nil
}

// CleanupInactiveDevices drops registrations idle past the configured
// inactivity window and returns how many were removed.
//
// CleanupInactiveDevices may return an error when input validation, dependency calls, or security checks fail.
// CleanupInactiveDevices does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) CleanupInactiveDevices(ctx context.Context, accountID string) (int, error) {
	if e == nil || e.registry == nil {
		return 0, ErrEngineNotReady
	}
	removed, err := e.registry.CleanupInactive(ctx, accountID)
	if err != nil {
		return 0, ErrInternal
	}
	return removed, nil
}

// EnrollBiometric describes the enrollbiometric operation and its observable behavior.
//
// EnrollBiometric may return an error when input validation, dependency calls, or security checks fail.
// EnrollBiometric does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) EnrollBiometric(ctx context.Context, accountID, fingerprint, biometricType string) (*device.Enrollment, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.biometrics == nil {
		return nil, ErrBiometricUnavailable
	}

	enrollment, err := e.biometrics.Enroll(ctx, accountID, fingerprint, biometricType)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrNotTrusted), errors.Is(err, device.ErrRevoked), errors.Is(err, device.ErrNotFound):
			return nil, ErrDeviceNotAuthorized
		default:
			return nil, ErrBiometricUnavailable
		}
	}

	e.emitAudit(ctx, auditEventBiometricEnrolled, true, accountID, "", "", enrollment.DeviceID, nil, func() map[string]string {
		return map[string]string{"biometric_type": enrollment.BiometricType}
	})
	return enrollment, nil
}

// UnenrollBiometric describes the unenrollbiometric operation and its observable behavior.
//
// UnenrollBiometric may return an error when input validation, dependency calls, or security checks fail.
// UnenrollBiometric does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) UnenrollBiometric(ctx context.Context, accountID, fingerprint string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.biometrics == nil {
		return ErrBiometricUnavailable
	}
	if err := e.biometrics.Unenroll(ctx, accountID, fingerprint); err != nil {
		if errors.Is(err, device.ErrNotFound) {
			return ErrDeviceNotAuthorized
		}
		return ErrInternal
	}
	return nil
}

// VerifyBiometric runs a biometric check against the enrolled device.
// A failed check never blocks authentication by itself; callers fall
// back to the PIN path when FallbackToPIN is set.
//
// VerifyBiometric may return an error when input validation, dependency calls, or security checks fail.
// VerifyBiometric does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) VerifyBiometric(ctx context.Context, accountID, fingerprint string) (device.VerifyResult, error) {
	if e == nil {
		return device.VerifyResult{}, ErrEngineNotReady
	}
	if e.biometrics == nil {
		return device.VerifyResult{FallbackToPIN: true, Reason: "biometric_disabled"}, nil
	}

	result, err := e.biometrics.Verify(ctx, accountID, fingerprint)
	if err != nil {
		return device.VerifyResult{FallbackToPIN: true, Reason: "verification_error"}, nil
	}
	if result.Verified {
		e.metricInc(MetricBiometricVerified)
	} else {
		e.metricInc(MetricBiometricFallback)
	}
	return result, nil
}
