package audit

import (
	"time"
)

// Severity ranks how urgently an event needs operator attention.
type Severity string

const (
	// SeverityLow is an exported constant or variable used by the authentication engine.
	SeverityLow Severity = "low"
	// SeverityMedium is an exported constant or variable used by the authentication engine.
	SeverityMedium Severity = "medium"
	// SeverityHigh is an exported constant or variable used by the authentication engine.
	SeverityHigh Severity = "high"
	// SeverityCritical is an exported constant or variable used by the authentication engine.
	SeverityCritical Severity = "critical"
)

// rank orders severities for threshold comparisons.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s ranks at or above min.
func (s Severity) AtLeast(min Severity) bool {
	return s.rank() >= min.rank()
}

// severityTable fixes the classification per event type. Unlisted types
// are low.
var severityTable = map[string]Severity{
	"brute_force_detected":        SeverityCritical,
	"unauthorized_access_attempt": SeverityCritical,
	"security_config_changed":     SeverityCritical,

	"account_locked":             SeverityHigh,
	"security_violation":         SeverityHigh,
	"device_registration_failed": SeverityHigh,
	"session_security_downgrade": SeverityHigh,
	"manager_override_session":   SeverityHigh,

	"authentication_failed": SeverityMedium,
	"session_expired":       SeverityMedium,
	"token_rejected":        SeverityMedium,
}

// SeverityOf classifies an event type.
//
// SeverityOf may return an error when input validation, dependency calls, or security checks fail.
// SeverityOf does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func SeverityOf(eventType string) Severity {
	if s, ok := severityTable[eventType]; ok {
		return s
	}
	return SeverityLow
}

// Event is the canonical audit event model used by internal dispatching and root APIs.
type Event struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	EventType    string            `json:"event_type"`
	Severity     Severity          `json:"severity"`
	AccountID    string            `json:"account_id,omitempty"`
	RestaurantID string            `json:"restaurant_id,omitempty"`
	SessionID    string            `json:"session_id,omitempty"`
	DeviceID     string            `json:"device_id,omitempty"`
	IP           string            `json:"ip,omitempty"`
	Success      bool              `json:"success"`
	Error        string            `json:"error,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}
