package pinauth

import (
	"context"
	"io"
	"time"

	"github.com/shiftsec/pinauth/device"
	internalaudit "github.com/shiftsec/pinauth/internal/audit"
	"github.com/shiftsec/pinauth/session"
)

// AccountStatus represents the lifecycle state of a staff account.
type AccountStatus uint8

const (
	// AccountActive is an exported constant or variable used by the authentication engine.
	AccountActive AccountStatus = iota
	// AccountSuspended is an exported constant or variable used by the authentication engine.
	AccountSuspended
	// AccountTerminated is an exported constant or variable used by the authentication engine.
	AccountTerminated
)

// AccountProvider is the interface callers implement to integrate the
// engine with their account database. It covers account lookup,
// credential digest access, and credential rotation.
type AccountProvider interface {
	FindByIdentifier(ctx context.Context, identifier string) (AccountRecord, error)
	CredentialDigest(ctx context.Context, accountID string) (string, error)
	UpdateCredentialDigest(ctx context.Context, accountID, digest string) error
	UpdateLastLogin(ctx context.Context, accountID string, at time.Time) error
}

// AccountRecord is the account returned by [AccountProvider].
//
// AccountRecord instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AccountRecord struct {
	AccountID    string
	Identifier   string
	RestaurantID string
	Role         string
	DisplayName  string
	Status       AccountStatus
}

// BiometricAuthenticator is the platform capability interface for the
// biometric factor. Implementations substitute the platform's
// challenge/response mechanism behind it.
type BiometricAuthenticator = device.Authenticator

// LoginRequest is the input for [Engine.Login].
//
// LoginRequest instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LoginRequest struct {
	Identifier  string
	PIN         string
	Fingerprint string

	// SessionType defaults to [session.TypeStandard] when empty.
	SessionType session.Type

	// Context is the client snapshot bound into the session.
	Context session.Context

	// ShiftEnd bounds shift_based sessions; ignored otherwise.
	ShiftEnd time.Time

	// Breaks registers the shift's break windows; the session's idle
	// clock pauses inside them.
	Breaks []session.BreakWindow
}

// LoginResult is returned by [Engine.Login] on success.
//
// LoginResult instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LoginResult struct {
	SessionID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time

	Account AccountSummary
}

// AccountSummary is the caller-safe slice of the account carried on a
// successful login.
//
// AccountSummary instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AccountSummary struct {
	ID           string
	Role         string
	RestaurantID string
	DisplayName  string
}

// RefreshResult is returned by [Engine.Refresh]. RefreshToken is empty
// unless the session's security level mandated rotation.
//
// RefreshResult instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSeverity classifies audit events for routing and retention.
type AuditSeverity = internalaudit.Severity

// AuditSink receives batches of [AuditEvent] values from the engine's
// audit dispatcher.
type AuditSink = internalaudit.Sink

// AuditStore is a searchable [AuditSink] used for operator reporting.
type AuditStore = internalaudit.Store

// AuditCriteria filters [AuditStore] searches.
type AuditCriteria = internalaudit.Criteria

// AuditStats is the aggregate view returned by [AuditStore] stats.
type AuditStats = internalaudit.Stats

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes line-delimited JSON events
// to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewMemoryAuditStore creates a bounded in-memory [AuditStore].
func NewMemoryAuditStore(capacity int) *internalaudit.MemoryStore {
	return internalaudit.NewMemoryStore(capacity)
}

// DeviceFingerprint computes the canonical fingerprint for a set of
// client device signals.
func DeviceFingerprint(signals map[string]string) string {
	return device.Fingerprint(signals)
}
