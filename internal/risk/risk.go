// Package risk turns collected security signals into a session trust
// score and the action that score mandates.
package risk

// Action is what the caller must do about a scored session.
type Action string

const (
	// ActionNone is an exported constant or variable used by the authentication engine.
	ActionNone Action = "none"
	// ActionMonitor is an exported constant or variable used by the authentication engine.
	ActionMonitor Action = "monitor"
	// ActionRestrict is an exported constant or variable used by the authentication engine.
	ActionRestrict Action = "restrict"
	// ActionTerminate is an exported constant or variable used by the authentication engine.
	ActionTerminate Action = "terminate"
)

// Score band edges. A session is trustworthy at or above ValidFloor.
const (
	ValidFloor     = 50
	terminateBelow = 30
	monitorBelow   = 70
)

// Standard deduction weights for the signals the engine collects.
const (
	PointsTokenInvalid     = 35
	PointsBindingMismatch  = 25
	PointsPolicyViolation  = 20
	PointsThreatSignal     = 15
	PointsDeviceUntrusted  = 30
	PointsBiometricMissing = 10
)

// Deduction is one named subtraction from the base score.
//
// Deduction instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Deduction struct {
	Reason string
	Points int
}

// Assessment is a scored session with its mandated action.
//
// Assessment instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Assessment struct {
	Score          int
	Factors        []string
	Action         Action
	ReviewRequired bool
}

// Valid reports whether the session may continue to be used.
func (a Assessment) Valid() bool {
	return a.Score >= ValidFloor
}

// Assess subtracts every deduction from a base score of 100, clamps the
// result to [0,100], and maps it onto the action bands: below 30 the
// session must be terminated, 30-49 it is restricted pending review,
// 50-69 it runs under enhanced monitoring, and from 70 up no action is
// required.
//
// Assess may return an error when input validation, dependency calls, or security checks fail.
// Assess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func Assess(deductions []Deduction) Assessment {
	score := 100
	factors := make([]string, 0, len(deductions))
	for _, d := range deductions {
		if d.Points <= 0 {
			continue
		}
		score -= d.Points
		factors = append(factors, d.Reason)
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	out := Assessment{Score: score, Factors: factors}
	switch {
	case score < terminateBelow:
		out.Action = ActionTerminate
	case score < ValidFloor:
		out.Action = ActionRestrict
		out.ReviewRequired = true
	case score < monitorBelow:
		out.Action = ActionMonitor
	default:
		out.Action = ActionNone
	}
	return out
}
