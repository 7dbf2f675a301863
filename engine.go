package pinauth

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/shiftsec/pinauth/device"
	internalaudit "github.com/shiftsec/pinauth/internal/audit"
	"github.com/shiftsec/pinauth/internal/rate"
	"github.com/shiftsec/pinauth/pin"
	"github.com/shiftsec/pinauth/session"
	"github.com/shiftsec/pinauth/token"
)

// Engine defines a public type used by pinauth APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config     Config
	policy     *pin.Policy
	hasher     *pin.Hasher
	limiter    *rate.Limiter
	detector   *rate.Detector
	registry   *device.Registry
	biometrics *device.Manager
	tokens     *token.Manager
	tokenStore *token.Store
	validator  *token.Validator
	sessions   *session.Store
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	accounts   AccountProvider
	now        func() time.Time
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// GenerateSecurePIN describes the generatesecurepin operation and its observable behavior.
//
// GenerateSecurePIN may return an error when input validation, dependency calls, or security checks fail.
// GenerateSecurePIN does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) GenerateSecurePIN() (string, error) {
	if e == nil || e.policy == nil {
		return "", ErrEngineNotReady
	}
	return e.policy.GenerateSecure()
}

// ValidatePIN describes the validatepin operation and its observable behavior.
//
// ValidatePIN may return an error when input validation, dependency calls, or security checks fail.
// ValidatePIN does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ValidatePIN(pinValue string) (pin.Result, error) {
	if e == nil || e.policy == nil {
		return pin.Result{}, ErrEngineNotReady
	}
	return e.policy.Validate(pinValue), nil
}

// Login describes the login operation and its observable behavior.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if e == nil || e.hasher == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" || req.PIN == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventAuthenticationFailed, false, "", "", "", "", ErrAuthenticationFailed, func() map[string]string {
			return map[string]string{
				"reason": "empty_input",
			}
		})
		return nil, ErrAuthenticationFailed
	}
	if req.Fingerprint == "" {
		e.metricInc(MetricDeviceRejected)
		e.emitAudit(ctx, auditEventDeviceRegistrationFailed, false, "", "", "", "", ErrDeviceNotAuthorized, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "missing_fingerprint",
			}
		})
		return nil, ErrDeviceNotAuthorized
	}

	if err := e.limiter.Check(ctx, identifier, ip); err != nil {
		var locked *rate.LockedError
		if errors.As(err, &locked) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventAccountLocked, false, "", "", "", "", ErrRateLimited, func() map[string]string {
				return map[string]string{
					"identifier":  identifier,
					"retry_after": locked.RetryAfter.String(),
				}
			})
			return nil, &RateLimitError{RetryAfter: locked.RetryAfter}
		}
		e.emitAudit(ctx, auditEventAuthenticationFailed, false, "", "", "", "", err, nil)
		return nil, ErrInternal
	}

	account, findErr := e.accounts.FindByIdentifier(ctx, identifier)
	if findErr != nil {
		// Burn a comparison so a missing account costs the same as a
		// wrong PIN.
		_, _ = e.hasher.Verify(req.PIN, "")
		if rlErr := e.recordLoginFailure(ctx, identifier, ""); rlErr != nil {
			return nil, rlErr
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventAuthenticationFailed, false, "", "", "", "", ErrAuthenticationFailed, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "account_not_found",
			}
		})
		return nil, ErrAuthenticationFailed
	}

	digest, err := e.accounts.CredentialDigest(ctx, account.AccountID)
	if err != nil {
		e.emitAudit(ctx, auditEventAuthenticationFailed, false, account.AccountID, account.RestaurantID, "", "", err, func() map[string]string {
			return map[string]string{
				"reason": "credential_lookup_failed",
			}
		})
		return nil, ErrInternal
	}

	ok, _ := e.hasher.Verify(req.PIN, digest)
	if !ok {
		if rlErr := e.recordLoginFailure(ctx, identifier, account.AccountID); rlErr != nil {
			return nil, rlErr
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventAuthenticationFailed, false, account.AccountID, account.RestaurantID, "", "", ErrAuthenticationFailed, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "pin_mismatch",
			}
		})
		return nil, ErrAuthenticationFailed
	}

	if account.Status != AccountActive {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventAuthenticationFailed, false, account.AccountID, account.RestaurantID, "", "", ErrAccountInactive, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "account_status",
				"status":     strconv.Itoa(int(account.Status)),
			}
		})
		return nil, ErrAccountInactive
	}

	if e.config.PIN.UpgradeOnLogin {
		if needsRehash, err := e.hasher.NeedsRehash(digest); err == nil && needsRehash {
			if upgraded, err := e.hasher.Hash(req.PIN); err == nil {
				// Rehash update is best-effort and must not block a
				// successful login.
				if err := e.accounts.UpdateCredentialDigest(ctx, account.AccountID, upgraded); err != nil {
					log.Print("pinauth: pin digest upgrade update failed")
				}
			} else {
				log.Print("pinauth: pin digest upgrade generation failed")
			}
		}
	}
	req.PIN = ""

	rec, devErr := e.registry.ValidateOrRegister(ctx, account.AccountID, req.Fingerprint)
	if devErr != nil {
		deviceID := ""
		if rec != nil {
			deviceID = rec.DeviceID
		}
		switch {
		case errors.Is(devErr, device.ErrRevoked):
			e.metricInc(MetricDeviceRejected)
			e.emitAudit(ctx, auditEventUnauthorizedAccess, false, account.AccountID, account.RestaurantID, "", deviceID, ErrDeviceNotAuthorized, func() map[string]string {
				return map[string]string{
					"identifier": identifier,
					"reason":     "device_revoked",
				}
			})
			return nil, ErrDeviceNotAuthorized
		case errors.Is(devErr, device.ErrNotTrusted):
			e.metricInc(MetricDevicePending)
			e.emitAudit(ctx, auditEventDeviceRegistrationFailed, false, account.AccountID, account.RestaurantID, "", deviceID, ErrDeviceNotAuthorized, func() map[string]string {
				return map[string]string{
					"identifier": identifier,
					"reason":     "device_pending_trust",
				}
			})
			return nil, ErrDeviceNotAuthorized
		default:
			e.emitAudit(ctx, auditEventAuthenticationFailed, false, account.AccountID, account.RestaurantID, "", "", devErr, func() map[string]string {
				return map[string]string{
					"reason": "device_gate_failed",
				}
			})
			return nil, ErrInternal
		}
	}

	sessionCtx := req.Context
	if sessionCtx.IP == "" {
		sessionCtx.IP = ip
	}
	if sessionCtx.UserAgent == "" {
		sessionCtx.UserAgent = userAgentFromContext(ctx)
	}

	if e.biometrics != nil {
		vr, vErr := e.biometrics.Verify(ctx, account.AccountID, req.Fingerprint)
		if vErr == nil && vr.Verified {
			e.metricInc(MetricBiometricVerified)
			sessionCtx.BiometricVerified = true
		} else {
			// PIN is already verified; biometric failure only degrades
			// the session context.
			e.metricInc(MetricBiometricFallback)
			e.emitAudit(ctx, auditEventBiometricFallback, false, account.AccountID, account.RestaurantID, "", rec.DeviceID, nil, func() map[string]string {
				return map[string]string{
					"reason": vr.Reason,
				}
			})
		}
	}

	if err := e.limiter.Reset(ctx, identifier); err != nil {
		log.Print("pinauth: attempt counter reset failed after successful login")
	}
	if err := e.accounts.UpdateLastLogin(ctx, account.AccountID, e.now()); err != nil {
		log.Print("pinauth: last-login update failed")
	}

	created, err := e.createSessionInternal(ctx, createSessionInput{
		AccountID:    account.AccountID,
		RestaurantID: account.RestaurantID,
		Role:         account.Role,
		Type:         req.SessionType,
		Fingerprint:  req.Fingerprint,
		DeviceID:     rec.DeviceID,
		Context:      sessionCtx,
		ShiftEnd:     req.ShiftEnd,
		Breaks:       req.Breaks,
	})
	if err != nil {
		e.metricInc(MetricLoginFailure)
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, account.AccountID, account.RestaurantID, created.Session.SessionID, rec.DeviceID, nil, func() map[string]string {
		return map[string]string{
			"identifier":   identifier,
			"session_type": string(created.Session.Type),
		}
	})

	return &LoginResult{
		SessionID:    created.Session.SessionID,
		AccessToken:  created.AccessToken,
		RefreshToken: created.RefreshToken,
		ExpiresAt:    created.ExpiresAt,
		Account: AccountSummary{
			ID:           account.AccountID,
			Role:         account.Role,
			RestaurantID: account.RestaurantID,
			DisplayName:  account.DisplayName,
		},
	}, nil
}

// recordLoginFailure bumps the attempt counters and runs brute-force
// detection. Returns a rate-limit error when this failure tripped the
// lockout, nil otherwise.
func (e *Engine) recordLoginFailure(ctx context.Context, identifier, accountID string) error {
	ip := clientIPFromContext(ctx)

	locked, lockFor, err := e.limiter.RecordFailure(ctx, identifier, ip)
	if err != nil {
		log.Print("pinauth: failed-attempt tracking unavailable")
	}

	if e.detector != nil {
		assessment, aErr := e.detector.Assess(ctx, ip, userAgentFromContext(ctx))
		if aErr == nil && assessment.Suspicious {
			e.metricInc(MetricBruteForceSuspected)
			if assessment.Alert {
				e.emitAudit(ctx, auditEventBruteForceDetected, false, accountID, "", "", "", ErrRateLimited, func() map[string]string {
					return map[string]string{
						"score":   strconv.Itoa(assessment.Score),
						"signals": strings.Join(assessment.Signals, ","),
					}
				})
			}
		}
	}

	if locked {
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventAccountLocked, false, accountID, "", "", "", ErrRateLimited, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"locked_for": lockFor.String(),
			}
		})
		return &RateLimitError{RetryAfter: lockFor}
	}
	return nil
}

// ChangePIN rotates the account credential: the old PIN must verify, the
// new PIN must pass policy and differ from the old one, and every live
// session for the account is terminated afterwards. The identifier is
// the same login identifier [Engine.Login] takes, so the attempt
// counters it accrued are cleared under the same key.
//
// ChangePIN may return an error when input validation, dependency calls, or security checks fail.
// ChangePIN does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ChangePIN(ctx context.Context, identifier, oldPIN, newPIN string) error {
	if e == nil || e.hasher == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || oldPIN == "" || newPIN == "" {
		return ErrInvalidCredentialFormat
	}

	account, err := e.accounts.FindByIdentifier(ctx, identifier)
	if err != nil {
		// Burn a comparison so a missing account costs the same as a
		// wrong PIN.
		_, _ = e.hasher.Verify(oldPIN, "")
		e.metricInc(MetricPINChangeRejected)
		e.emitAudit(ctx, auditEventPINChangeFailure, false, "", "", "", "", ErrAuthenticationFailed, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "account_not_found",
			}
		})
		return ErrAuthenticationFailed
	}
	accountID := account.AccountID
	restaurantID := account.RestaurantID

	digest, err := e.accounts.CredentialDigest(ctx, accountID)
	if err != nil {
		e.emitAudit(ctx, auditEventPINChangeFailure, false, accountID, restaurantID, "", "", err, func() map[string]string {
			return map[string]string{
				"reason": "credential_lookup_failed",
			}
		})
		return ErrInternal
	}

	oldOK, _ := e.hasher.Verify(oldPIN, digest)
	if !oldOK {
		e.metricInc(MetricPINChangeRejected)
		e.emitAudit(ctx, auditEventPINChangeFailure, false, accountID, restaurantID, "", "", ErrAuthenticationFailed, func() map[string]string {
			return map[string]string{
				"reason": "invalid_old_pin",
			}
		})
		return ErrAuthenticationFailed
	}

	if same, _ := e.hasher.Verify(newPIN, digest); same {
		e.metricInc(MetricPINChangeRejected)
		e.emitAudit(ctx, auditEventPINChangeFailure, false, accountID, restaurantID, "", "", ErrPINReuse, nil)
		return ErrPINReuse
	}

	newDigest, err := e.hasher.Hash(newPIN)
	if err != nil {
		e.metricInc(MetricPINChangeRejected)
		var mapped error
		switch {
		case errors.Is(err, pin.ErrInvalidFormat):
			mapped = ErrInvalidCredentialFormat
		case errors.Is(err, pin.ErrWeakPIN):
			mapped = ErrInvalidCredential
		default:
			mapped = ErrInternal
		}
		e.emitAudit(ctx, auditEventPINChangeFailure, false, accountID, restaurantID, "", "", mapped, func() map[string]string {
			return map[string]string{
				"reason": "new_pin_policy",
			}
		})
		return mapped
	}

	if err := e.accounts.UpdateCredentialDigest(ctx, accountID, newDigest); err != nil {
		e.emitAudit(ctx, auditEventPINChangeFailure, false, accountID, restaurantID, "", "", err, func() map[string]string {
			return map[string]string{
				"reason": "update_digest_failed",
			}
		})
		return ErrInternal
	}
	oldPIN = ""
	newPIN = ""

	// Credential rotation invalidates every live session.
	if _, err := e.TerminateAllForAccount(ctx, accountID, "pin_changed"); err != nil {
		log.Print("pinauth: session invalidation failed after pin change")
	}
	if err := e.limiter.Reset(ctx, identifier); err != nil {
		log.Print("pinauth: attempt counter reset failed after pin change")
	}

	e.metricInc(MetricPINChangeSuccess)
	e.emitAudit(ctx, auditEventPINChangeSuccess, true, accountID, restaurantID, "", "", nil, nil)
	return nil
}
