package pinauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess             = "login_success"
	auditEventAuthenticationFailed     = "authentication_failed"
	auditEventAccountLocked            = "account_locked"
	auditEventBruteForceDetected       = "brute_force_detected"
	auditEventUnauthorizedAccess       = "unauthorized_access_attempt"
	auditEventDeviceRegistrationFailed = "device_registration_failed"
	auditEventDeviceTrusted            = "device_trusted"
	auditEventDeviceRevoked            = "device_revoked"
	auditEventBiometricEnrolled        = "biometric_enrolled"
	auditEventBiometricFallback        = "biometric_fallback"
	auditEventSessionCreated           = "session_created"
	auditEventSessionExpired           = "session_expired"
	auditEventSessionTerminated        = "session_terminated"
	auditEventSessionDowngrade         = "session_security_downgrade"
	auditEventSecurityViolation        = "security_violation"
	auditEventManagerOverrideSession   = "manager_override_session"
	auditEventTokenRejected            = "token_rejected"
	auditEventTokenRevoked             = "token_revoked"
	auditEventRefreshSuccess           = "refresh_success"
	auditEventRefreshRotated           = "refresh_rotated"
	auditEventPINChangeSuccess         = "pin_change_success"
	auditEventPINChangeFailure         = "pin_change_failure"
	auditEventLogout                   = "logout"
)

// AuditErrorCode defines a public type used by pinauth APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrInvalidFormat        AuditErrorCode = "invalid_credential_format"
	auditErrInvalidCredential    AuditErrorCode = "invalid_credential"
	auditErrAuthenticationFailed AuditErrorCode = "authentication_failed"
	auditErrRateLimited          AuditErrorCode = "rate_limit_exceeded"
	auditErrDeviceNotAuthorized  AuditErrorCode = "device_not_authorized"
	auditErrBiometricUnavailable AuditErrorCode = "biometric_unavailable"
	auditErrSessionExpired       AuditErrorCode = "session_expired"
	auditErrSessionInvalid       AuditErrorCode = "session_invalid"
	auditErrSessionLimit         AuditErrorCode = "session_limit_exceeded"
	auditErrTokenRevoked         AuditErrorCode = "token_revoked"
	auditErrUsageExhausted       AuditErrorCode = "usage_exhausted"
	auditErrAccountInactive      AuditErrorCode = "account_inactive"
	auditErrPINReuse             AuditErrorCode = "pin_reuse"
	auditErrInternal             AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	restaurantID string,
	sessionID string,
	deviceID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}
	if restaurantID == "" {
		restaurantID = restaurantIDFromContext(ctx)
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:    time.Now().UTC(),
		EventType:    eventType,
		AccountID:    accountID,
		RestaurantID: restaurantID,
		SessionID:    sessionID,
		DeviceID:     deviceID,
		IP:           clientIPFromContext(ctx),
		Success:      success,
		Metadata:     metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentialFormat):
		return auditErrInvalidFormat
	case errors.Is(err, ErrInvalidCredential):
		return auditErrInvalidCredential
	case errors.Is(err, ErrPINReuse):
		return auditErrPINReuse
	case errors.Is(err, ErrAuthenticationFailed):
		return auditErrAuthenticationFailed
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrDeviceNotAuthorized):
		return auditErrDeviceNotAuthorized
	case errors.Is(err, ErrBiometricUnavailable):
		return auditErrBiometricUnavailable
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrSessionInvalid):
		return auditErrSessionInvalid
	case errors.Is(err, ErrSessionLimitExceeded):
		return auditErrSessionLimit
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrUsageExhausted):
		return auditErrUsageExhausted
	case errors.Is(err, ErrAccountInactive):
		return auditErrAccountInactive
	default:
		return auditErrInternal
	}
}
