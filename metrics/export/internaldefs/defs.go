package internaldefs

import (
	pinauth "github.com/shiftsec/pinauth"
)

// CounterDef defines a public type used by pinauth APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   pinauth.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by pinauth APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   pinauth.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the authentication engine.
var CounterDefs = []CounterDef{
	{ID: pinauth.MetricLoginSuccess, Name: "pinauth_login_success_total", Help: "Successful PIN login attempts."},
	{ID: pinauth.MetricLoginFailure, Name: "pinauth_login_failure_total", Help: "Failed PIN login attempts."},
	{ID: pinauth.MetricLoginRateLimited, Name: "pinauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: pinauth.MetricBruteForceSuspected, Name: "pinauth_brute_force_suspected_total", Help: "Login failures flagged by brute-force detection."},
	{ID: pinauth.MetricDevicePending, Name: "pinauth_device_pending_total", Help: "Logins refused from devices still pending trust."},
	{ID: pinauth.MetricDeviceRejected, Name: "pinauth_device_rejected_total", Help: "Requests rejected by device binding enforcement."},
	{ID: pinauth.MetricBiometricVerified, Name: "pinauth_biometric_verified_total", Help: "Successful biometric verifications."},
	{ID: pinauth.MetricBiometricFallback, Name: "pinauth_biometric_fallback_total", Help: "Biometric attempts that fell back to PIN."},
	{ID: pinauth.MetricSessionCreated, Name: "pinauth_session_created_total", Help: "Created sessions."},
	{ID: pinauth.MetricSessionValidated, Name: "pinauth_session_validated_total", Help: "Successful session validations."},
	{ID: pinauth.MetricSessionRejected, Name: "pinauth_session_rejected_total", Help: "Rejected session validations."},
	{ID: pinauth.MetricSessionRestricted, Name: "pinauth_session_restricted_total", Help: "Sessions downgraded to restricted pending review."},
	{ID: pinauth.MetricSessionTerminated, Name: "pinauth_session_terminated_total", Help: "Terminated sessions."},
	{ID: pinauth.MetricRefreshSuccess, Name: "pinauth_refresh_success_total", Help: "Successful refresh operations."},
	{ID: pinauth.MetricRefreshFailure, Name: "pinauth_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: pinauth.MetricRefreshRotated, Name: "pinauth_refresh_rotated_total", Help: "Refresh token rotations."},
	{ID: pinauth.MetricRefreshReuseDetected, Name: "pinauth_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: pinauth.MetricTokenMinted, Name: "pinauth_token_minted_total", Help: "Minted tokens across all purposes."},
	{ID: pinauth.MetricTokenRejected, Name: "pinauth_token_rejected_total", Help: "Rejected tokens."},
	{ID: pinauth.MetricTokenRevoked, Name: "pinauth_token_revoked_total", Help: "Revoked tokens."},
	{ID: pinauth.MetricPINChangeSuccess, Name: "pinauth_pin_change_success_total", Help: "Successful PIN changes."},
	{ID: pinauth.MetricPINChangeRejected, Name: "pinauth_pin_change_rejected_total", Help: "Rejected PIN change attempts."},
}

// HistogramDefs is an exported constant or variable used by the authentication engine.
var HistogramDefs = []HistogramDef{
	{ID: pinauth.MetricValidateLatency, Name: "pinauth_validate_latency_seconds", Help: "Session validation latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the authentication engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the authentication engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
