package pinauth

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shiftsec/pinauth/device"
	internalaudit "github.com/shiftsec/pinauth/internal/audit"
	"github.com/shiftsec/pinauth/internal/rate"
	"github.com/shiftsec/pinauth/pin"
	"github.com/shiftsec/pinauth/session"
	"github.com/shiftsec/pinauth/token"
)

// Builder defines a public type used by pinauth APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts      AccountProvider
	auditSink     AuditSink
	authenticator BiometricAuthenticator
	clock         func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountProvider describes the withaccountprovider operation and its observable behavior.
//
// WithAccountProvider may return an error when input validation, dependency calls, or security checks fail.
// WithAccountProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAccountProvider(ap AccountProvider) *Builder {
	b.accounts = ap
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithBiometricAuthenticator describes the withbiometricauthenticator operation and its observable behavior.
//
// WithBiometricAuthenticator may return an error when input validation, dependency calls, or security checks fail.
// WithBiometricAuthenticator does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithBiometricAuthenticator(auth BiometricAuthenticator) *Builder {
	b.authenticator = auth
	return b
}

// WithClock describes the withclock operation and its observable behavior.
//
// WithClock may return an error when input validation, dependency calls, or security checks fail.
// WithClock does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account provider required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Biometric.Enabled && b.authenticator == nil {
		return nil, errors.New("biometric enabled but no authenticator provided")
	}

	now := b.clock
	if now == nil {
		now = time.Now
	}

	policy := pin.NewPolicy(pin.Config{
		MinStrength:        cfg.PIN.MinStrength,
		GenerationMaxTries: cfg.PIN.GenerationMaxTries,
	})
	hasher, err := pin.NewHasher(pin.HashConfig{
		Memory:      cfg.PIN.Memory,
		Time:        cfg.PIN.Time,
		Parallelism: cfg.PIN.Parallelism,
		SaltLength:  cfg.PIN.SaltLength,
		KeyLength:   cfg.PIN.KeyLength,
	}, policy)
	if err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(token.Config{
		Secret:   cloneBytes(cfg.Token.Secret),
		Issuer:   cfg.Token.Issuer,
		Audience: cfg.Token.Audience,
		Leeway:   cfg.Token.Leeway,
	}, now)
	if err != nil {
		return nil, err
	}
	tokenStore := token.NewStore(b.redis, now)

	registry := device.NewRegistry(b.redis, device.RegistryConfig{
		InactivityExpiry: cfg.Device.InactivityExpiry,
	}, now)

	var biometrics *device.Manager
	if cfg.Biometric.Enabled {
		biometrics = device.NewManager(b.redis, registry, b.authenticator, device.ManagerConfig{
			NegotiationTimeout: cfg.Biometric.NegotiationTimeout,
		}, now)
	}

	var detector *rate.Detector
	if cfg.BruteForce.Enabled {
		detector = rate.NewDetector(b.redis, rate.DetectorConfig{
			Window:          cfg.BruteForce.Window,
			VolumeThreshold: cfg.BruteForce.VolumeThreshold,
			SuspicionScore:  cfg.BruteForce.SuspicionScore,
			AlertInterval:   cfg.BruteForce.AlertInterval,
			OpenHour:        cfg.BruteForce.OpenHour,
			CloseHour:       cfg.BruteForce.CloseHour,
		}, now)
	}

	engine := &Engine{
		config:     cfg,
		policy:     policy,
		hasher:     hasher,
		tokens:     tokens,
		tokenStore: tokenStore,
		validator:  token.NewValidator(tokens, tokenStore),
		registry:   registry,
		biometrics: biometrics,
		detector:   detector,
		accounts:   b.accounts,
		now:        now,
	}

	engine.limiter = rate.New(b.redis, rate.Config{
		MaxAttempts:          cfg.Lockout.MaxAttempts,
		BaseLockout:          cfg.Lockout.BaseLockout,
		MaxLockoutMultiplier: cfg.Lockout.MaxLockoutMultiplier,
		Retention:            cfg.Lockout.Retention,
		EnableOriginThrottle: cfg.Lockout.EnableOriginThrottle,
		OriginMaxAttempts:    cfg.Lockout.OriginMaxAttempts,
	})
	engine.sessions = session.NewStore(b.redis, cfg.Session.RedisPrefix, now)
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:       cfg.Audit.Enabled,
		BufferSize:    cfg.Audit.BufferSize,
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: cfg.Audit.FlushInterval,
		DropIfFull:    cfg.Audit.DropIfFull,
		MaxPending:    cfg.Audit.MaxPending,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
