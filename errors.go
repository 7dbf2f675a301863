package pinauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentialFormat is an exported constant or variable used by the authentication engine.
	ErrInvalidCredentialFormat = errors.New("pin must be exactly 4 numeric digits")
	// ErrInvalidCredential is an exported constant or variable used by the authentication engine.
	ErrInvalidCredential = errors.New("pin fails strength policy")
	// ErrAuthenticationFailed is an exported constant or variable used by the authentication engine.
	ErrAuthenticationFailed = errors.New("invalid credentials")
	// ErrRateLimited is an exported constant or variable used by the authentication engine.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrDeviceNotAuthorized is an exported constant or variable used by the authentication engine.
	ErrDeviceNotAuthorized = errors.New("device not authorized")
	// ErrBiometricUnavailable is an exported constant or variable used by the authentication engine.
	ErrBiometricUnavailable = errors.New("biometric verification unavailable")
	// ErrSessionExpired is an exported constant or variable used by the authentication engine.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionInvalid is an exported constant or variable used by the authentication engine.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrSessionLimitExceeded is an exported constant or variable used by the authentication engine.
	ErrSessionLimitExceeded = errors.New("device session limit exceeded")
	// ErrTokenRevoked is an exported constant or variable used by the authentication engine.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrUsageExhausted is an exported constant or variable used by the authentication engine.
	ErrUsageExhausted = errors.New("token usage exhausted")
	// ErrAccountInactive is an exported constant or variable used by the authentication engine.
	ErrAccountInactive = errors.New("account not active")
	// ErrPINReuse is an exported constant or variable used by the authentication engine.
	ErrPINReuse = errors.New("new pin must be different from current pin")
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInternal is an exported constant or variable used by the authentication engine.
	ErrInternal = errors.New("service unavailable")
)

// RateLimitError carries the remaining lockout window alongside
// [ErrRateLimited] semantics. errors.Is(err, ErrRateLimited) matches it.
//
// RateLimitError instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RateLimitError struct {
	RetryAfter time.Duration
}

// Error describes the error operation and its observable behavior.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// Is describes the is operation and its observable behavior.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// UserError is the caller-safe rendition of an engine error. Message is
// non-technical; internal causes stay in the audit trail.
//
// UserError instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type UserError struct {
	Code       string
	Message    string
	RetryAfter time.Duration
}

// UserFacing maps any engine error onto the fixed error taxonomy without
// leaking internal detail. Unknown errors surface as a generic
// service-unavailable response.
//
// UserFacing may return an error when input validation, dependency calls, or security checks fail.
// UserFacing does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func UserFacing(err error) UserError {
	if err == nil {
		return UserError{}
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		return UserError{
			Code:       "rate_limit_exceeded",
			Message:    "Too many attempts. Please wait before trying again.",
			RetryAfter: rl.RetryAfter,
		}
	}

	switch {
	case errors.Is(err, ErrInvalidCredentialFormat):
		return UserError{Code: "invalid_credential_format", Message: "PIN must be exactly 4 digits."}
	case errors.Is(err, ErrInvalidCredential):
		return UserError{Code: "invalid_credential", Message: "This PIN is too easy to guess. Please choose another."}
	case errors.Is(err, ErrPINReuse):
		return UserError{Code: "invalid_credential", Message: "Your new PIN must be different from your current PIN."}
	case errors.Is(err, ErrAuthenticationFailed), errors.Is(err, ErrAccountInactive):
		return UserError{Code: "authentication_failed", Message: "Invalid credentials."}
	case errors.Is(err, ErrRateLimited):
		return UserError{Code: "rate_limit_exceeded", Message: "Too many attempts. Please wait before trying again."}
	case errors.Is(err, ErrDeviceNotAuthorized):
		return UserError{Code: "device_not_authorized", Message: "This device is not authorized. Please contact your administrator."}
	case errors.Is(err, ErrBiometricUnavailable):
		return UserError{Code: "biometric_unavailable", Message: "Biometric sign-in is unavailable. Please use your PIN."}
	case errors.Is(err, ErrSessionExpired):
		return UserError{Code: "session_expired", Message: "Your session has expired. Please sign in again."}
	case errors.Is(err, ErrSessionInvalid),
		errors.Is(err, ErrTokenRevoked),
		errors.Is(err, ErrUsageExhausted):
		return UserError{Code: "session_invalid", Message: "Your session is no longer valid. Please sign in again."}
	case errors.Is(err, ErrSessionLimitExceeded):
		return UserError{Code: "session_limit_exceeded", Message: "Too many active sessions on this device. Please sign out first."}
	default:
		return UserError{Code: "internal_error", Message: "Service temporarily unavailable. Please try again."}
	}
}
