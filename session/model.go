package session

import (
	"sort"
	"time"
)

// SchemaVersion is bumped whenever the stored session layout changes in
// a way old readers cannot handle.
const SchemaVersion = 1

// Type classifies what kind of work session this is.
type Type string

const (
	// TypeStandard is an exported constant or variable used by the authentication engine.
	TypeStandard Type = "standard"
	// TypeShiftBased is an exported constant or variable used by the authentication engine.
	TypeShiftBased Type = "shift_based"
	// TypeBreakExtended is an exported constant or variable used by the authentication engine.
	TypeBreakExtended Type = "break_extended"
	// TypeManagerOverride is an exported constant or variable used by the authentication engine.
	TypeManagerOverride Type = "manager_override"
	// TypeTraining is an exported constant or variable used by the authentication engine.
	TypeTraining Type = "training"
	// TypeAudit is an exported constant or variable used by the authentication engine.
	TypeAudit Type = "audit"
)

// Valid describes the valid operation and its observable behavior.
func (t Type) Valid() bool {
	switch t {
	case TypeStandard, TypeShiftBased, TypeBreakExtended, TypeManagerOverride, TypeTraining, TypeAudit:
		return true
	}
	return false
}

// SecurityLevel orders how much scrutiny a session operates under.
type SecurityLevel string

const (
	// LevelBasic is an exported constant or variable used by the authentication engine.
	LevelBasic SecurityLevel = "basic"
	// LevelEnhanced is an exported constant or variable used by the authentication engine.
	LevelEnhanced SecurityLevel = "enhanced"
	// LevelHigh is an exported constant or variable used by the authentication engine.
	LevelHigh SecurityLevel = "high"
	// LevelCritical is an exported constant or variable used by the authentication engine.
	LevelCritical SecurityLevel = "critical"
)

func (l SecurityLevel) rank() int {
	switch l {
	case LevelCritical:
		return 3
	case LevelHigh:
		return 2
	case LevelEnhanced:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether l ranks at or above min.
func (l SecurityLevel) AtLeast(min SecurityLevel) bool {
	return l.rank() >= min.rank()
}

// Compliance is the retention and audit bundle a session operates under.
//
// Compliance instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Compliance struct {
	RetentionDays   int    `json:"retention_days"`
	AuditRequired   bool   `json:"audit_required"`
	EncryptionClass string `json:"encryption_class"`
}

// Performance is the client-reported connection snapshot captured with
// the session context. It is carried for diagnostics and reporting and
// never gates validation.
//
// Performance instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Performance struct {
	ConnectionQuality string `json:"connection_quality,omitempty"`
	LatencyMS         int    `json:"latency_ms,omitempty"`
	BandwidthKbps     int    `json:"bandwidth_kbps,omitempty"`
	BatteryPercent    int    `json:"battery_percent,omitempty"`
}

// Context is the client-side snapshot captured when the session was
// created or last validated.
//
// Context instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Context struct {
	IP                string      `json:"ip,omitempty"`
	UserAgent         string      `json:"user_agent,omitempty"`
	Platform          string      `json:"platform,omitempty"`
	AppVersion        string      `json:"app_version,omitempty"`
	NetworkClass      string      `json:"network_class,omitempty"`
	LocationID        string      `json:"location_id,omitempty"`
	LocationVerified  bool        `json:"location_verified,omitempty"`
	BiometricVerified bool        `json:"biometric_verified,omitempty"`
	Performance       Performance `json:"performance"`
}

// BreakWindow is a scheduled break during which the idle clock is
// paused. Bounds are unix seconds, half-open [Start, End).
//
// BreakWindow instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type BreakWindow struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Session is the mobile session aggregate persisted per login.
//
// Session instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Session struct {
	SchemaVersion int    `json:"schema_version"`
	SessionID     string `json:"session_id"`
	AccountID     string `json:"account_id"`
	RestaurantID  string `json:"restaurant_id,omitempty"`
	Role          string `json:"role,omitempty"`

	Type          Type          `json:"type"`
	SecurityLevel SecurityLevel `json:"security_level"`
	Policy        Policy        `json:"policy"`
	Compliance    Compliance    `json:"compliance"`
	Context       Context       `json:"context"`

	DeviceID          string `json:"device_id"`
	DeviceFingerprint string `json:"device_fingerprint"`

	// Tokens maps token type to the current token ID for that purpose.
	Tokens map[string]string `json:"tokens"`

	// Breaks are the registered break windows for the session's shift.
	// Time inside a window does not count against the idle timeout.
	Breaks []BreakWindow `json:"breaks,omitempty"`

	RiskScore int `json:"risk_score"`

	// Restricted marks a session held at reduced privileges pending a
	// security review.
	Restricted bool  `json:"restricted,omitempty"`
	ReviewAt   int64 `json:"review_at,omitempty"`

	ShiftEnd       int64 `json:"shift_end,omitempty"`
	CreatedAt      int64 `json:"created_at"`
	ExpiresAt      int64 `json:"expires_at"`
	LastActivityAt int64 `json:"last_activity_at"`
}

// idleDeadline returns the unix time at which the idle window closes,
// or zero when no idle bound applies. Registered break windows pause
// the idle clock: time spent inside one does not count against the
// timeout.
func (s *Session) idleDeadline() int64 {
	if s.Policy.IdleTimeout <= 0 || s.LastActivityAt <= 0 {
		return 0
	}
	deadline := s.LastActivityAt + int64(s.Policy.IdleTimeout/time.Second)
	if len(s.Breaks) == 0 {
		return deadline
	}

	breaks := make([]BreakWindow, len(s.Breaks))
	copy(breaks, s.Breaks)
	sort.Slice(breaks, func(i, j int) bool { return breaks[i].Start < breaks[j].Start })

	for _, b := range breaks {
		if b.End <= b.Start || b.End <= s.LastActivityAt {
			continue
		}
		if b.Start >= deadline {
			break
		}
		start := b.Start
		if start < s.LastActivityAt {
			start = s.LastActivityAt
		}
		deadline += b.End - start
	}
	return deadline
}
