package pinauth

import (
	"time"

	"github.com/shiftsec/pinauth/pin"
)

type SecurityReport struct {
	PINMinStrength       pin.Strength
	PINUpgradeOnLogin    bool
	Argon2               PINHashConfigReport
	LockoutMaxAttempts   int
	LockoutBase          time.Duration
	LockoutMaxMultiplier int
	OriginThrottleActive bool
	BruteForceDetection  bool
	BiometricEnabled     bool
	DeviceExpiry         time.Duration
	TokenLeeway          time.Duration
	AuditEnabled         bool
	AuditDropped         uint64
	MetricsEnabled       bool
}

type PINHashConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		PINMinStrength:    e.config.PIN.MinStrength,
		PINUpgradeOnLogin: e.config.PIN.UpgradeOnLogin,
		Argon2: PINHashConfigReport{
			Memory:      e.config.PIN.Memory,
			Time:        e.config.PIN.Time,
			Parallelism: e.config.PIN.Parallelism,
			SaltLength:  e.config.PIN.SaltLength,
			KeyLength:   e.config.PIN.KeyLength,
		},
		LockoutMaxAttempts:   e.config.Lockout.MaxAttempts,
		LockoutBase:          e.config.Lockout.BaseLockout,
		LockoutMaxMultiplier: e.config.Lockout.MaxLockoutMultiplier,
		OriginThrottleActive: e.config.Lockout.EnableOriginThrottle && e.config.Lockout.OriginMaxAttempts > 0,
		BruteForceDetection:  e.config.BruteForce.Enabled,
		BiometricEnabled:     e.config.Biometric.Enabled,
		DeviceExpiry:         e.config.Device.InactivityExpiry,
		TokenLeeway:          e.config.Token.Leeway,
		AuditEnabled:         e.config.Audit.Enabled,
		AuditDropped:         e.AuditDropped(),
		MetricsEnabled:       e.config.Metrics.Enabled,
	}
}
