package rate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLocked is an exported constant or variable used by the authentication engine.
	ErrLocked = errors.New("credential locked")
	// ErrBackendUnavailable is an exported constant or variable used by the authentication engine.
	ErrBackendUnavailable = errors.New("rate backend unavailable")
)

// LockedError carries the remaining lockout duration alongside the lockout
// condition. It matches [ErrLocked] under errors.Is.
type LockedError struct {
	RetryAfter time.Duration
}

// Error describes the error operation and its observable behavior.
func (e *LockedError) Error() string {
	return fmt.Sprintf("credential locked, retry in %s", e.RetryAfter.Round(time.Second))
}

// Is describes the is operation and its observable behavior.
func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}
