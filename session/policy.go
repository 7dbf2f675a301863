package session

import "time"

// Policy is the behavior bundle a session type operates under. The
// policy in force is snapshotted into the session at creation so later
// config changes never mutate live sessions.
//
// Policy instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Policy struct {
	IdleTimeout      time.Duration `json:"idle_timeout"`
	AbsoluteLifetime time.Duration `json:"absolute_lifetime"`
	MaxPerDevice     int           `json:"max_per_device"`
	RequireBiometric bool          `json:"require_biometric"`
	RequireLocation  bool          `json:"require_location"`
	ReadOnly         bool          `json:"read_only"`
}

// PolicyFor returns the default policy bundle for a session type.
// Shift-based sessions have no absolute lifetime of their own; they end
// with the shift window.
//
// PolicyFor may return an error when input validation, dependency calls, or security checks fail.
// PolicyFor does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func PolicyFor(t Type) Policy {
	switch t {
	case TypeShiftBased:
		return Policy{
			IdleTimeout:  2 * time.Hour,
			MaxPerDevice: 1,
		}
	case TypeBreakExtended:
		return Policy{
			IdleTimeout:      45 * time.Minute,
			AbsoluteLifetime: 12 * time.Hour,
			MaxPerDevice:     1,
		}
	case TypeManagerOverride:
		return Policy{
			IdleTimeout:      15 * time.Minute,
			AbsoluteLifetime: 4 * time.Hour,
			MaxPerDevice:     3,
			RequireBiometric: true,
		}
	case TypeTraining:
		return Policy{
			IdleTimeout:      30 * time.Minute,
			AbsoluteLifetime: 8 * time.Hour,
			MaxPerDevice:     1,
			ReadOnly:         true,
		}
	case TypeAudit:
		return Policy{
			IdleTimeout:      15 * time.Minute,
			AbsoluteLifetime: 2 * time.Hour,
			MaxPerDevice:     1,
			RequireBiometric: true,
			ReadOnly:         true,
		}
	default:
		return Policy{
			IdleTimeout:      30 * time.Minute,
			AbsoluteLifetime: 12 * time.Hour,
			MaxPerDevice:     1,
		}
	}
}

// ComplianceFor returns the retention and audit bundle for a session
// type.
//
// ComplianceFor may return an error when input validation, dependency calls, or security checks fail.
// ComplianceFor does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func ComplianceFor(t Type) Compliance {
	switch t {
	case TypeAudit:
		return Compliance{RetentionDays: 365, AuditRequired: true, EncryptionClass: "strict"}
	case TypeManagerOverride:
		return Compliance{RetentionDays: 180, AuditRequired: true, EncryptionClass: "strict"}
	default:
		return Compliance{RetentionDays: 90, EncryptionClass: "standard"}
	}
}

// DeriveSecurityLevel fixes the scrutiny a new session starts under from
// its type, the account role, and the network the device is on. The
// result is the highest level any one input demands.
//
// DeriveSecurityLevel may return an error when input validation, dependency calls, or security checks fail.
// DeriveSecurityLevel does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DeriveSecurityLevel(t Type, role, networkClass string) SecurityLevel {
	level := LevelBasic

	switch t {
	case TypeManagerOverride:
		level = LevelCritical
	case TypeAudit:
		level = LevelHigh
	case TypeBreakExtended:
		level = LevelEnhanced
	}

	switch role {
	case "owner", "admin":
		level = maxLevel(level, LevelCritical)
	case "manager":
		level = maxLevel(level, LevelHigh)
	}

	switch networkClass {
	case "public", "untrusted":
		level = bumpLevel(level)
	}

	return level
}

func maxLevel(a, b SecurityLevel) SecurityLevel {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

func bumpLevel(l SecurityLevel) SecurityLevel {
	switch l {
	case LevelBasic:
		return LevelEnhanced
	case LevelEnhanced:
		return LevelHigh
	default:
		return LevelCritical
	}
}
