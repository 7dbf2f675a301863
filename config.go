package pinauth

import (
	"errors"
	"time"

	"github.com/shiftsec/pinauth/pin"
)

// Config defines a public type used by pinauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	PIN        PINConfig
	Lockout    LockoutConfig
	BruteForce BruteForceConfig
	Device     DeviceConfig
	Biometric  BiometricConfig
	Token      TokenConfig
	Session    SessionConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
PIN CONFIG
====================================
*/

// PINConfig defines a public type used by pinauth APIs.
//
// PINConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PINConfig struct {
	Memory             uint32 // in KB
	Time               uint32
	Parallelism        uint8
	SaltLength         uint32
	KeyLength          uint32
	MinStrength        pin.Strength
	GenerationMaxTries int
	UpgradeOnLogin     bool
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig defines a public type used by pinauth APIs.
//
// LockoutConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LockoutConfig struct {
	MaxAttempts          int
	BaseLockout          time.Duration
	MaxLockoutMultiplier int
	Retention            time.Duration
	EnableOriginThrottle bool
	OriginMaxAttempts    int
}

// BruteForceConfig defines a public type used by pinauth APIs.
//
// BruteForceConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type BruteForceConfig struct {
	Enabled         bool
	Window          time.Duration
	VolumeThreshold int
	SuspicionScore  int
	AlertInterval   time.Duration
	OpenHour        int
	CloseHour       int
}

/*
====================================
DEVICE CONFIG
====================================
*/

// DeviceConfig defines a public type used by pinauth APIs.
//
// DeviceConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type DeviceConfig struct {
	InactivityExpiry time.Duration
}

// BiometricConfig defines a public type used by pinauth APIs.
//
// BiometricConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type BiometricConfig struct {
	Enabled            bool
	NegotiationTimeout time.Duration
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by pinauth APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// SessionConfig defines a public type used by pinauth APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	RedisPrefix string
}

// AuditConfig defines a public type used by pinauth APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled       bool
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	DropIfFull    bool
	MaxPending    int
}

// MetricsConfig defines a public type used by pinauth APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production-grade defaults. Callers must still
// supply Token.Secret before Build.
//
// DefaultConfig may return an error when input validation, dependency calls, or security checks fail.
// DefaultConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		PIN: PINConfig{
			Memory:             65536,
			Time:               3,
			Parallelism:        2,
			SaltLength:         16,
			KeyLength:          32,
			MinStrength:        pin.StrengthMedium,
			GenerationMaxTries: 64,
			UpgradeOnLogin:     true,
		},
		Lockout: LockoutConfig{
			MaxAttempts:          5,
			BaseLockout:          15 * time.Minute,
			MaxLockoutMultiplier: 64,
			Retention:            24 * time.Hour,
			EnableOriginThrottle: true,
			OriginMaxAttempts:    50,
		},
		BruteForce: BruteForceConfig{
			Enabled:         true,
			Window:          15 * time.Minute,
			VolumeThreshold: 20,
			SuspicionScore:  60,
			AlertInterval:   time.Minute,
			OpenHour:        6,
			CloseHour:       23,
		},
		Device: DeviceConfig{
			InactivityExpiry: 90 * 24 * time.Hour,
		},
		Biometric: BiometricConfig{
			Enabled:            false,
			NegotiationTimeout: 10 * time.Second,
		},
		// Leeway defaults to zero so an expired token is rejected the
		// second it expires; deployments with skewed clients opt in.
		Token: TokenConfig{
			Issuer:   "pinauth",
			Audience: "restaurant-ops",
		},
		Session: SessionConfig{
			RedisPrefix: "ps",
		},
		Audit: AuditConfig{
			Enabled:       false,
			BufferSize:    1024,
			BatchSize:     32,
			FlushInterval: 5 * time.Second,
			DropIfFull:    true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// PIN
	if c.PIN.Memory < 8*1024 {
		return errors.New("PIN Memory must be >= 8192 KB")
	}
	if c.PIN.Time < 1 {
		return errors.New("PIN Time must be >= 1")
	}
	if c.PIN.Parallelism < 1 {
		return errors.New("PIN Parallelism must be >= 1")
	}
	if c.PIN.SaltLength < 16 {
		return errors.New("PIN SaltLength must be >= 16")
	}
	if c.PIN.KeyLength < 16 {
		return errors.New("PIN KeyLength must be >= 16")
	}
	switch c.PIN.MinStrength {
	case pin.StrengthWeak, pin.StrengthMedium, pin.StrengthStrong:
		// valid
	default:
		return errors.New("PIN MinStrength is invalid")
	}
	if c.PIN.GenerationMaxTries <= 0 {
		return errors.New("PIN GenerationMaxTries must be > 0")
	}

	// Lockout
	if c.Lockout.MaxAttempts <= 0 {
		return errors.New("Lockout MaxAttempts must be > 0")
	}
	if c.Lockout.BaseLockout <= 0 {
		return errors.New("Lockout BaseLockout must be > 0")
	}
	if c.Lockout.MaxLockoutMultiplier < 1 {
		return errors.New("Lockout MaxLockoutMultiplier must be >= 1")
	}
	if c.Lockout.Retention <= 0 {
		return errors.New("Lockout Retention must be > 0")
	}
	if c.Lockout.EnableOriginThrottle && c.Lockout.OriginMaxAttempts <= 0 {
		return errors.New("Lockout OriginMaxAttempts must be > 0 when origin throttle is enabled")
	}

	// Brute force detection
	if c.BruteForce.Enabled {
		if c.BruteForce.Window <= 0 {
			return errors.New("BruteForce Window must be > 0")
		}
		if c.BruteForce.VolumeThreshold <= 0 {
			return errors.New("BruteForce VolumeThreshold must be > 0")
		}
		if c.BruteForce.SuspicionScore <= 0 || c.BruteForce.SuspicionScore > 100 {
			return errors.New("BruteForce SuspicionScore must be in (0,100]")
		}
		if c.BruteForce.AlertInterval <= 0 {
			return errors.New("BruteForce AlertInterval must be > 0")
		}
		if c.BruteForce.OpenHour < 0 || c.BruteForce.OpenHour > 23 ||
			c.BruteForce.CloseHour < 0 || c.BruteForce.CloseHour > 23 {
			return errors.New("BruteForce operating hours must be within [0,23]")
		}
	}

	// Device
	if c.Device.InactivityExpiry < 0 {
		return errors.New("Device InactivityExpiry must be >= 0")
	}
	if c.Biometric.Enabled && c.Biometric.NegotiationTimeout <= 0 {
		return errors.New("Biometric NegotiationTimeout must be > 0 when biometric is enabled")
	}

	// Token
	if len(c.Token.Secret) < 32 {
		return errors.New("Token Secret must be at least 32 bytes")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be within [0, 2m]")
	}

	// Session
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix is required")
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0 when audit is enabled")
		}
		if c.Audit.BatchSize < 0 {
			return errors.New("Audit BatchSize must be >= 0")
		}
		if c.Audit.FlushInterval < 0 {
			return errors.New("Audit FlushInterval must be >= 0")
		}
		if c.Audit.MaxPending < 0 {
			return errors.New("Audit MaxPending must be >= 0")
		}
	}

	return nil
}
