package pinauth

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shiftsec/pinauth/device"
	"github.com/shiftsec/pinauth/internal/risk"
	"github.com/shiftsec/pinauth/session"
	"github.com/shiftsec/pinauth/token"
)

// restrictedReviewWindow is how long a restricted session has before a
// manager review is expected.
const restrictedReviewWindow = 15 * time.Minute

// CreateSessionRequest defines a public type used by pinauth APIs.
//
// CreateSessionRequest instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CreateSessionRequest struct {
	AccountID    string
	RestaurantID string
	Role         string
	Type         session.Type
	Fingerprint  string
	Context      session.Context
	ShiftEnd     time.Time

	// Breaks registers the shift's break windows; the idle clock pauses
	// inside them.
	Breaks []session.BreakWindow
}

// SessionResult defines a public type used by pinauth APIs.
//
// SessionResult instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionResult struct {
	Session      *session.Session
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// ValidateSessionRequest defines a public type used by pinauth APIs.
//
// ValidateSessionRequest instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ValidateSessionRequest struct {
	AccessToken       string
	Fingerprint       string
	LocationID        string
	BiometricVerified bool
}

// SessionValidation defines a public type used by pinauth APIs.
//
// SessionValidation instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionValidation struct {
	Session    *session.Session
	Token      *token.Validation
	Risk       risk.Assessment
	Restricted bool
	ReadOnly   bool
}

type createSessionInput struct {
	AccountID    string
	RestaurantID string
	Role         string
	Type         session.Type
	Fingerprint  string
	DeviceID     string
	Context      session.Context
	ShiftEnd     time.Time
	Breaks       []session.BreakWindow
}

// CreateSession describes the createsession operation and its observable behavior.
//
// CreateSession may return an error when input validation, dependency calls, or security checks fail.
// CreateSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionResult, error) {
	if e == nil || e.sessions == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	if req.AccountID == "" || req.Fingerprint == "" {
		return nil, ErrSessionInvalid
	}

	rec, err := e.registry.Get(ctx, req.AccountID, req.Fingerprint)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			return nil, ErrDeviceNotAuthorized
		}
		return nil, ErrInternal
	}
	if rec.Status != device.StatusTrusted {
		return nil, ErrDeviceNotAuthorized
	}

	return e.createSessionInternal(ctx, createSessionInput{
		AccountID:    req.AccountID,
		RestaurantID: req.RestaurantID,
		Role:         req.Role,
		Type:         req.Type,
		Fingerprint:  req.Fingerprint,
		DeviceID:     rec.DeviceID,
		Context:      req.Context,
		ShiftEnd:     req.ShiftEnd,
		Breaks:       req.Breaks,
	})
}

func (e *Engine) createSessionInternal(ctx context.Context, in createSessionInput) (*SessionResult, error) {
	sessionType := in.Type
	if sessionType == "" {
		sessionType = session.TypeStandard
	}
	if !sessionType.Valid() {
		return nil, ErrSessionInvalid
	}

	now := e.now()
	policy := session.PolicyFor(sessionType)

	if policy.RequireBiometric && !in.Context.BiometricVerified {
		e.emitAudit(ctx, auditEventSecurityViolation, false, in.AccountID, in.RestaurantID, "", in.DeviceID, ErrSessionInvalid, func() map[string]string {
			return map[string]string{
				"session_type": string(sessionType),
				"reason":       "biometric_required",
			}
		})
		return nil, ErrSessionInvalid
	}
	if policy.RequireLocation && !in.Context.LocationVerified {
		return nil, ErrSessionInvalid
	}
	if sessionType == session.TypeShiftBased && !in.ShiftEnd.After(now) {
		return nil, ErrSessionInvalid
	}

	expiresAt := now.Add(policy.AbsoluteLifetime)
	if sessionType == session.TypeShiftBased {
		expiresAt = in.ShiftEnd
	}

	mintRisk := mintRiskScore(in.Context)
	sess := &session.Session{
		SessionID:         uuid.NewString(),
		AccountID:         in.AccountID,
		RestaurantID:      in.RestaurantID,
		Role:              in.Role,
		Type:              sessionType,
		SecurityLevel:     session.DeriveSecurityLevel(sessionType, in.Role, in.Context.NetworkClass),
		Policy:            policy,
		Compliance:        session.ComplianceFor(sessionType),
		Context:           in.Context,
		DeviceID:          in.DeviceID,
		DeviceFingerprint: in.Fingerprint,
		Tokens:            make(map[string]string, 4),
		RiskScore:         100 - mintRisk,
		CreatedAt:         now.Unix(),
		ExpiresAt:         expiresAt.Unix(),
		LastActivityAt:    now.Unix(),
	}
	if sessionType == session.TypeShiftBased {
		sess.ShiftEnd = in.ShiftEnd.Unix()
	}
	if len(in.Breaks) > 0 {
		sess.Breaks = append([]session.BreakWindow(nil), in.Breaks...)
	}

	if err := e.sessions.AcquireDeviceSlot(ctx, sess, policy.MaxPerDevice); err != nil {
		if errors.Is(err, session.ErrDeviceSlotExhausted) {
			e.emitAudit(ctx, auditEventSecurityViolation, false, in.AccountID, in.RestaurantID, "", in.DeviceID, ErrSessionLimitExceeded, func() map[string]string {
				return map[string]string{
					"session_type":   string(sessionType),
					"max_per_device": strconv.Itoa(policy.MaxPerDevice),
				}
			})
			return nil, ErrSessionLimitExceeded
		}
		return nil, ErrInternal
	}

	// The slot is held before anything durable exists; give it back on
	// every failure from here on or the device stays blocked until the
	// set key expires.
	rollback := func(err error) (*SessionResult, error) {
		if rerr := e.sessions.ReleaseDeviceSlot(ctx, sess); rerr != nil {
			log.Print("pinauth: device slot release failed during session rollback")
		}
		return nil, err
	}

	baseSpec := token.MintSpec{
		Subject:           in.AccountID,
		SessionID:         sess.SessionID,
		RestaurantID:      in.RestaurantID,
		Role:              in.Role,
		DeviceFingerprint: in.Fingerprint,
		RiskScore:         mintRisk,
	}

	mint := func(spec token.MintSpec) (string, *token.Claims, error) {
		signed, claims, err := e.tokens.Mint(spec)
		if err != nil {
			return "", nil, err
		}
		e.metricInc(MetricTokenMinted)
		sess.Tokens[string(spec.Type)] = claims.ID
		return signed, claims, nil
	}

	accessSpec := baseSpec
	accessSpec.Type = token.TypeAccess
	accessToken, accessClaims, err := mint(accessSpec)
	if err != nil {
		return rollback(ErrInternal)
	}

	refreshSpec := baseSpec
	refreshSpec.Type = token.TypeRefresh
	refreshToken, refreshClaims, err := mint(refreshSpec)
	if err != nil {
		return rollback(ErrInternal)
	}

	deviceSpec := baseSpec
	deviceSpec.Type = token.TypeDevice
	if _, _, err := mint(deviceSpec); err != nil {
		return rollback(ErrInternal)
	}

	if in.Context.LocationVerified && in.Context.LocationID != "" {
		locationSpec := baseSpec
		locationSpec.Type = token.TypeLocation
		locationSpec.LocationID = in.Context.LocationID
		locationSpec.LocationVerified = true
		if _, _, err := mint(locationSpec); err != nil {
			return rollback(ErrInternal)
		}
	}

	if in.Context.BiometricVerified && e.biometrics != nil {
		if enrollment, err := e.biometrics.Enrollment(ctx, in.AccountID, in.Fingerprint); err == nil {
			biometricSpec := baseSpec
			biometricSpec.Type = token.TypeBiometric
			biometricSpec.BiometricEnrollmentID = enrollment.EnrollmentID
			if _, _, err := mint(biometricSpec); err != nil {
				return rollback(ErrInternal)
			}
		}
	}

	if sessionType == session.TypeShiftBased {
		shiftSpec := baseSpec
		shiftSpec.Type = token.TypeShift
		shiftSpec.ShiftEnd = in.ShiftEnd
		if _, _, err := mint(shiftSpec); err != nil {
			return rollback(ErrInternal)
		}
	}

	if err := e.sessions.Save(ctx, sess); err != nil {
		return rollback(ErrInternal)
	}
	if err := e.sessions.SetRefreshID(ctx, sess, refreshClaims.ID); err != nil {
		// The session is already saved; Delete unwinds the blob, the
		// index entry, and the slot together.
		if _, derr := e.sessions.Delete(ctx, sess); derr != nil {
			log.Print("pinauth: session rollback failed after refresh id install failure")
		}
		return nil, ErrInternal
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventSessionCreated, true, in.AccountID, in.RestaurantID, sess.SessionID, in.DeviceID, nil, func() map[string]string {
		return map[string]string{
			"session_type":   string(sessionType),
			"security_level": string(sess.SecurityLevel),
		}
	})
	if sessionType == session.TypeManagerOverride {
		e.emitAudit(ctx, auditEventManagerOverrideSession, true, in.AccountID, in.RestaurantID, sess.SessionID, in.DeviceID, nil, nil)
	}

	return &SessionResult{
		Session:      sess,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessClaims.ExpiresAt.Time,
	}, nil
}

// mintRiskScore is the risk embedded into freshly minted tokens, from
// signals known at creation time. Zero means a clean context.
func mintRiskScore(c session.Context) int {
	score := 0
	switch c.NetworkClass {
	case "public", "untrusted":
		score += 10
	}
	if !c.LocationVerified {
		score += 5
	}
	return score
}

// ValidateSession describes the validatesession operation and its observable behavior.
//
// ValidateSession may return an error when input validation, dependency calls, or security checks fail.
// ValidateSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ValidateSession(ctx context.Context, req ValidateSessionRequest) (*SessionValidation, error) {
	if e == nil || e.validator == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	start := e.now()

	tv, err := e.validator.Validate(ctx, req.AccessToken, token.Bindings{
		DeviceFingerprint: req.Fingerprint,
		LocationID:        req.LocationID,
		BiometricVerified: req.BiometricVerified,
	})
	if err != nil {
		e.metricInc(MetricTokenRejected)
		switch {
		case errors.Is(err, token.ErrExpired):
			e.emitAudit(ctx, auditEventTokenRejected, false, "", "", "", "", ErrSessionExpired, func() map[string]string {
				return map[string]string{"reason": "token_expired"}
			})
			return nil, ErrSessionExpired
		case errors.Is(err, token.ErrRevoked):
			e.emitAudit(ctx, auditEventTokenRejected, false, "", "", "", "", ErrTokenRevoked, nil)
			return nil, ErrTokenRevoked
		case errors.Is(err, token.ErrUsageExhausted):
			return nil, ErrUsageExhausted
		case errors.Is(err, token.ErrMalformed):
			e.emitAudit(ctx, auditEventTokenRejected, false, "", "", "", "", ErrSessionInvalid, func() map[string]string {
				return map[string]string{"reason": "token_malformed"}
			})
			return nil, ErrSessionInvalid
		default:
			return nil, ErrInternal
		}
	}
	claims := tv.Claims
	if claims.TokenType != string(token.TypeAccess) || claims.SessionID == "" {
		e.metricInc(MetricTokenRejected)
		e.emitAudit(ctx, auditEventTokenRejected, false, claims.Subject, claims.RestaurantID, claims.SessionID, "", ErrSessionInvalid, func() map[string]string {
			return map[string]string{"reason": "wrong_token_type", "token_type": claims.TokenType}
		})
		return nil, ErrSessionInvalid
	}

	sess, err := e.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrExpired), errors.Is(err, session.ErrIdleTimeout):
			e.metricInc(MetricSessionRejected)
			e.emitAudit(ctx, auditEventSessionExpired, false, claims.Subject, claims.RestaurantID, claims.SessionID, "", ErrSessionExpired, nil)
			return nil, ErrSessionExpired
		case errors.Is(err, session.ErrNotFound):
			e.metricInc(MetricSessionRejected)
			return nil, ErrSessionInvalid
		default:
			return nil, ErrInternal
		}
	}

	// Sibling token revocations and device trust are independent Redis
	// lookups; run them concurrently.
	var (
		revokedSibling atomic.Bool
		deviceRecord   *device.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, tokenID := range sess.Tokens {
		id := tokenID
		g.Go(func() error {
			revoked, err := e.tokenStore.IsRevoked(gctx, id)
			if err != nil {
				return err
			}
			if revoked {
				revokedSibling.Store(true)
			}
			return nil
		})
	}
	g.Go(func() error {
		rec, err := e.registry.Get(gctx, sess.AccountID, sess.DeviceFingerprint)
		if err != nil {
			if errors.Is(err, device.ErrNotFound) {
				return nil
			}
			return err
		}
		deviceRecord = rec
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, ErrInternal
	}

	// Revocation is immediate: a session bound to a revoked device never
	// survives to scoring. The deductions below cover softer signals
	// (pending or unknown devices).
	if deviceRecord != nil && deviceRecord.Status == device.StatusRevoked {
		e.metricInc(MetricSessionRejected)
		e.emitAudit(ctx, auditEventUnauthorizedAccess, false, sess.AccountID, sess.RestaurantID, sess.SessionID, sess.DeviceID, ErrDeviceNotAuthorized, func() map[string]string {
			return map[string]string{"reason": "device_revoked"}
		})
		if _, err := e.TerminateSession(ctx, sess.SessionID, "device_revoked"); err != nil {
			log.Print("pinauth: session termination failed after device revocation")
		}
		return nil, ErrDeviceNotAuthorized
	}

	var deductions []risk.Deduction
	if !tv.Valid {
		deductions = append(deductions, risk.Deduction{Reason: "token_binding_failed", Points: risk.PointsTokenInvalid})
	}
	if sess.DeviceFingerprint != req.Fingerprint {
		deductions = append(deductions, risk.Deduction{Reason: "fingerprint_mismatch", Points: risk.PointsBindingMismatch})
	}
	if deviceRecord == nil || deviceRecord.Status != device.StatusTrusted {
		deductions = append(deductions, risk.Deduction{Reason: "device_untrusted", Points: risk.PointsDeviceUntrusted})
	}
	if revokedSibling.Load() {
		deductions = append(deductions, risk.Deduction{Reason: "revoked_sibling_token", Points: risk.PointsThreatSignal})
	}
	if sess.Policy.RequireBiometric && !req.BiometricVerified {
		deductions = append(deductions, risk.Deduction{Reason: "biometric_missing", Points: risk.PointsBiometricMissing})
	}
	if sess.Policy.RequireLocation && req.LocationID == "" {
		deductions = append(deductions, risk.Deduction{Reason: "location_missing", Points: risk.PointsPolicyViolation})
	}

	assessment := risk.Assess(deductions)
	sess.RiskScore = assessment.Score

	switch assessment.Action {
	case risk.ActionTerminate:
		e.metricInc(MetricSessionRejected)
		e.emitAudit(ctx, auditEventSecurityViolation, false, sess.AccountID, sess.RestaurantID, sess.SessionID, sess.DeviceID, ErrSessionInvalid, func() map[string]string {
			return map[string]string{
				"risk_score": strconv.Itoa(assessment.Score),
				"factors":    strings.Join(assessment.Factors, ","),
			}
		})
		if _, err := e.TerminateSession(ctx, sess.SessionID, "risk_terminate"); err != nil {
			log.Print("pinauth: risk-mandated termination failed")
		}
		return nil, ErrSessionInvalid

	case risk.ActionRestrict:
		if !sess.Restricted {
			sess.Restricted = true
			sess.ReviewAt = e.now().Add(restrictedReviewWindow).Unix()
			e.metricInc(MetricSessionRestricted)
			e.emitAudit(ctx, auditEventSessionDowngrade, false, sess.AccountID, sess.RestaurantID, sess.SessionID, sess.DeviceID, nil, func() map[string]string {
				return map[string]string{
					"risk_score": strconv.Itoa(assessment.Score),
					"factors":    strings.Join(assessment.Factors, ","),
				}
			})
		}
		sess.LastActivityAt = e.now().Unix()
		if err := e.sessions.Save(ctx, sess); err != nil {
			return nil, ErrInternal
		}

	default:
		if err := e.sessions.TouchActivity(ctx, sess); err != nil {
			return nil, ErrInternal
		}
	}

	e.metricInc(MetricSessionValidated)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, e.now().Sub(start))
	}

	return &SessionValidation{
		Session:    sess,
		Token:      tv,
		Risk:       assessment,
		Restricted: sess.Restricted,
		ReadOnly:   sess.Policy.ReadOnly || sess.Restricted,
	}, nil
}

// Refresh describes the refresh operation and its observable behavior.
//
// Refresh may return an error when input validation, dependency calls, or security checks fail.
// Refresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if e == nil || e.tokens == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Parse(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if errors.Is(err, token.ErrExpired) {
			e.emitAudit(ctx, auditEventTokenRejected, false, "", "", "", "", ErrSessionExpired, func() map[string]string {
				return map[string]string{"reason": "refresh_expired"}
			})
			return nil, ErrSessionExpired
		}
		return nil, ErrSessionInvalid
	}
	if claims.TokenType != string(token.TypeRefresh) || claims.SessionID == "" {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventTokenRejected, false, claims.Subject, claims.RestaurantID, claims.SessionID, "", ErrSessionInvalid, func() map[string]string {
			return map[string]string{"reason": "wrong_token_type", "token_type": claims.TokenType}
		})
		return nil, ErrSessionInvalid
	}

	sess, err := e.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		switch {
		case errors.Is(err, session.ErrExpired), errors.Is(err, session.ErrIdleTimeout):
			return nil, ErrSessionExpired
		case errors.Is(err, session.ErrNotFound):
			return nil, ErrSessionInvalid
		default:
			return nil, ErrInternal
		}
	}

	revoked, err := e.tokenStore.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, ErrInternal
	}
	if revoked {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventTokenRejected, false, sess.AccountID, sess.RestaurantID, sess.SessionID, sess.DeviceID, ErrTokenRevoked, nil)
		return nil, ErrTokenRevoked
	}

	currentID, err := e.sessions.CurrentRefreshID(ctx, sess.SessionID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return nil, ErrInternal
	}
	if currentID != "" && currentID != claims.ID {
		// A stale refresh token was replayed. Treat the whole session as
		// compromised.
		e.metricInc(MetricRefreshReuseDetected)
		e.emitAudit(ctx, auditEventUnauthorizedAccess, false, sess.AccountID, sess.RestaurantID, sess.SessionID, sess.DeviceID, ErrSessionInvalid, func() map[string]string {
			return map[string]string{"reason": "refresh_reuse"}
		})
		if _, err := e.TerminateSession(ctx, sess.SessionID, "refresh_reuse"); err != nil {
			log.Print("pinauth: session termination failed after refresh reuse")
		}
		return nil, ErrSessionInvalid
	}

	spec := token.MintSpec{
		Type:              token.TypeAccess,
		Subject:           sess.AccountID,
		SessionID:         sess.SessionID,
		RestaurantID:      sess.RestaurantID,
		Role:              sess.Role,
		DeviceFingerprint: sess.DeviceFingerprint,
		RiskScore:         mintRiskScore(sess.Context),
	}
	accessToken, accessClaims, err := e.tokens.Mint(spec)
	if err != nil {
		return nil, ErrInternal
	}
	e.metricInc(MetricTokenMinted)
	sess.Tokens[string(token.TypeAccess)] = accessClaims.ID

	newRefreshToken := ""
	if sess.SecurityLevel.AtLeast(session.LevelCritical) {
		refreshSpec := spec
		refreshSpec.Type = token.TypeRefresh
		signed, newClaims, err := e.tokens.Mint(refreshSpec)
		if err != nil {
			return nil, ErrInternal
		}
		e.metricInc(MetricTokenMinted)

		if err := e.sessions.RotateRefreshID(ctx, sess.SessionID, claims.ID, newClaims.ID); err != nil {
			if errors.Is(err, session.ErrRefreshMismatch) {
				// Lost the rotation race to a concurrent refresh.
				e.metricInc(MetricRefreshReuseDetected)
				e.emitAudit(ctx, auditEventUnauthorizedAccess, false, sess.AccountID, sess.RestaurantID, sess.SessionID, sess.DeviceID, ErrSessionInvalid, func() map[string]string {
					return map[string]string{"reason": "refresh_rotation_race"}
				})
				if _, err := e.TerminateSession(ctx, sess.SessionID, "refresh_reuse"); err != nil {
					log.Print("pinauth: session termination failed after refresh rotation race")
				}
				return nil, ErrSessionInvalid
			}
			return nil, ErrInternal
		}
		if err := e.tokenStore.Revoke(ctx, claims.ID, e.tokens.Remaining(claims)); err != nil {
			log.Print("pinauth: rotated-out refresh token revocation failed")
		}
		newRefreshToken = signed
		sess.Tokens[string(token.TypeRefresh)] = newClaims.ID

		e.metricInc(MetricRefreshRotated)
		e.emitAudit(ctx, auditEventRefreshRotated, true, sess.AccountID, sess.RestaurantID, sess.SessionID, sess.DeviceID, nil, nil)
	}

	sess.LastActivityAt = e.now().Unix()
	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, ErrInternal
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, sess.AccountID, sess.RestaurantID, sess.SessionID, sess.DeviceID, nil, nil)

	return &RefreshResult{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
	}, nil
}

// TerminateSession tears down one session and revokes every token it
// issued. Returns false without error when the session no longer exists.
//
// TerminateSession may return an error when input validation, dependency calls, or security checks fail.
// TerminateSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) TerminateSession(ctx context.Context, sessionID, reason string) (bool, error) {
	if e == nil || e.sessions == nil {
		return false, ErrEngineNotReady
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound),
			errors.Is(err, session.ErrExpired),
			errors.Is(err, session.ErrIdleTimeout):
			return false, nil
		default:
			return false, ErrInternal
		}
	}

	for tokenType, tokenID := range sess.Tokens {
		ttl := token.Type(tokenType).DefaultTTL()
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		if err := e.tokenStore.Revoke(ctx, tokenID, ttl); err != nil {
			log.Print("pinauth: token revocation failed during session termination")
			continue
		}
		e.metricInc(MetricTokenRevoked)
	}

	removed, err := e.sessions.Delete(ctx, sess)
	if err != nil {
		return false, ErrInternal
	}

	e.metricInc(MetricSessionTerminated)
	e.emitAudit(ctx, auditEventSessionTerminated, true, sess.AccountID, sess.RestaurantID, sess.SessionID, sess.DeviceID, nil, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return removed, nil
}

// Logout describes the logout operation and its observable behavior.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	removed, err := e.TerminateSession(ctx, sessionID, "logout")
	if err != nil {
		return err
	}
	if removed {
		e.emitAudit(ctx, auditEventLogout, true, "", "", sessionID, "", nil, nil)
	}
	return nil
}

// TerminateAllForAccount tears down every live session an account holds
// and returns how many were removed.
//
// TerminateAllForAccount may return an error when input validation, dependency calls, or security checks fail.
// TerminateAllForAccount does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) TerminateAllForAccount(ctx context.Context, accountID, reason string) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}

	ids, err := e.sessions.ActiveSessionIDs(ctx, accountID)
	if err != nil {
		return 0, ErrInternal
	}

	removed := 0
	for _, id := range ids {
		ok, err := e.TerminateSession(ctx, id, reason)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}

	// Sweep any index entries whose sessions already expired.
	if _, err := e.sessions.DeleteAllForAccount(ctx, accountID); err != nil {
		log.Print("pinauth: session index sweep failed")
	}
	return removed, nil
}
