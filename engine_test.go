package pinauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// Strong PINs for fixtures; both score well clear of the medium floor.
const (
	testPIN    = "7294"
	testNewPIN = "3817"
)

const testFingerprint = "fp-ios-a1b2c3"

func testConfig() Config {
	cfg := defaultConfig()
	// Floor-level argon2 cost keeps the suite fast.
	cfg.PIN.Memory = 8 * 1024
	cfg.PIN.Time = 1
	cfg.PIN.Parallelism = 1
	cfg.PIN.KeyLength = 16
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.BruteForce.Enabled = false
	return cfg
}

type fakeAccountProvider struct {
	mu        sync.Mutex
	accounts  map[string]AccountRecord
	digests   map[string]string
	lastLogin map[string]time.Time

	findCalls         int
	digestUpdateCalls int
}

func newFakeAccountProvider() *fakeAccountProvider {
	return &fakeAccountProvider{
		accounts:  make(map[string]AccountRecord),
		digests:   make(map[string]string),
		lastLogin: make(map[string]time.Time),
	}
}

func (p *fakeAccountProvider) FindByIdentifier(_ context.Context, identifier string) (AccountRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.findCalls++
	rec, ok := p.accounts[identifier]
	if !ok {
		return AccountRecord{}, errors.New("account not found")
	}
	return rec, nil
}

func (p *fakeAccountProvider) CredentialDigest(_ context.Context, accountID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	digest, ok := p.digests[accountID]
	if !ok {
		return "", errors.New("no digest for account")
	}
	return digest, nil
}

func (p *fakeAccountProvider) UpdateCredentialDigest(_ context.Context, accountID, digest string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.digestUpdateCalls++
	p.digests[accountID] = digest
	return nil
}

func (p *fakeAccountProvider) UpdateLastLogin(_ context.Context, accountID string, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastLogin[accountID] = at
	return nil
}

func (p *fakeAccountProvider) setStatus(identifier string, status AccountStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := p.accounts[identifier]
	rec.Status = status
	p.accounts[identifier] = rec
}

type fakeAuthenticator struct {
	mu        sync.Mutex
	available bool
	verifyOK  bool
	enrollErr error
}

func (a *fakeAuthenticator) Available(context.Context, string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.available, nil
}

func (a *fakeAuthenticator) SupportedTypes(context.Context, string) ([]string, error) {
	return []string{"fingerprint", "face"}, nil
}

func (a *fakeAuthenticator) Enroll(_ context.Context, accountID, _, biometricType string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.enrollErr != nil {
		return "", a.enrollErr
	}
	return "ref-" + accountID + "-" + biometricType, nil
}

func (a *fakeAuthenticator) Verify(context.Context, string, string, string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.verifyOK, nil
}

type engineTest struct {
	t        *testing.T
	engine   *Engine
	mr       *miniredis.Miniredis
	provider *fakeAccountProvider
	auth     *fakeAuthenticator
	sink     *ChannelSink

	mu    sync.Mutex
	clock time.Time
}

func (et *engineTest) now() time.Time {
	et.mu.Lock()
	defer et.mu.Unlock()
	return et.clock
}

// advance moves both the engine clock and miniredis TTLs.
func (et *engineTest) advance(d time.Duration) {
	et.mu.Lock()
	et.clock = et.clock.Add(d)
	et.mu.Unlock()
	et.mr.FastForward(d)
}

type engineTestOption func(*engineTest, *Builder)

func withBiometrics(auth *fakeAuthenticator) engineTestOption {
	return func(et *engineTest, b *Builder) {
		et.auth = auth
		b.config.Biometric.Enabled = true
		b.WithBiometricAuthenticator(auth)
	}
}

func withAuditCapture(buffer int) engineTestOption {
	return func(et *engineTest, b *Builder) {
		et.sink = NewChannelSink(buffer)
		b.config.Audit.Enabled = true
		b.config.Audit.BufferSize = buffer
		b.config.Audit.BatchSize = 1
		b.config.Audit.FlushInterval = 5 * time.Millisecond
		b.config.Audit.DropIfFull = false
		b.WithAuditSink(et.sink)
	}
}

func newEngineTest(t *testing.T, cfg Config, opts ...engineTestOption) *engineTest {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	et := &engineTest{
		t:        t,
		mr:       mr,
		provider: newFakeAccountProvider(),
		clock:    time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	}

	builder := New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountProvider(et.provider).
		WithClock(et.now)
	for _, opt := range opts {
		opt(et, builder)
	}

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	et.engine = engine
	return et
}

// seedAccount hashes the PIN with the engine's own hasher and registers
// the account with the fake provider.
func (et *engineTest) seedAccount(identifier, accountID, pin, role string) {
	et.t.Helper()

	digest, err := et.engine.hasher.Hash(pin)
	if err != nil {
		et.t.Fatalf("seed hash failed: %v", err)
	}

	et.provider.mu.Lock()
	defer et.provider.mu.Unlock()
	et.provider.accounts[identifier] = AccountRecord{
		AccountID:    accountID,
		Identifier:   identifier,
		RestaurantID: "r-100",
		Role:         role,
		DisplayName:  identifier,
		Status:       AccountActive,
	}
	et.provider.digests[accountID] = digest
}

// trustDevice runs the first-contact login (which registers the device
// pending) and then trusts it, so subsequent logins succeed.
func (et *engineTest) trustDevice(ctx context.Context, identifier, accountID, pin, fingerprint string) {
	et.t.Helper()

	_, err := et.engine.Login(ctx, LoginRequest{
		Identifier:  identifier,
		PIN:         pin,
		Fingerprint: fingerprint,
	})
	if !errors.Is(err, ErrDeviceNotAuthorized) {
		et.t.Fatalf("expected ErrDeviceNotAuthorized on first device contact, got %v", err)
	}
	if _, err := et.engine.TrustDevice(ctx, accountID, fingerprint); err != nil {
		et.t.Fatalf("trust device failed: %v", err)
	}
}

// login seeds nothing; it assumes the account exists and the device is
// trusted.
func (et *engineTest) login(ctx context.Context, identifier, pin, fingerprint string) *LoginResult {
	et.t.Helper()

	result, err := et.engine.Login(ctx, LoginRequest{
		Identifier:  identifier,
		PIN:         pin,
		Fingerprint: fingerprint,
	})
	if err != nil {
		et.t.Fatalf("login failed: %v", err)
	}
	return result
}

// waitForAuditEvent drains the capture sink until the event type shows up
// or the deadline passes.
func (et *engineTest) waitForAuditEvent(eventType string) AuditEvent {
	et.t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-et.sink.Events():
			if ev.EventType == eventType {
				return ev
			}
		case <-deadline:
			et.t.Fatalf("timed out waiting for %q audit event", eventType)
			return AuditEvent{}
		}
	}
}
