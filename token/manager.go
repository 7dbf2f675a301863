package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Type identifies the purpose a token is scoped to.
type Type string

const (
	// TypeAccess is an exported constant or variable used by the authentication engine.
	TypeAccess Type = "access"
	// TypeRefresh is an exported constant or variable used by the authentication engine.
	TypeRefresh Type = "refresh"
	// TypeDevice is an exported constant or variable used by the authentication engine.
	TypeDevice Type = "device"
	// TypeLocation is an exported constant or variable used by the authentication engine.
	TypeLocation Type = "location"
	// TypeBiometric is an exported constant or variable used by the authentication engine.
	TypeBiometric Type = "biometric"
	// TypeShift is an exported constant or variable used by the authentication engine.
	TypeShift Type = "shift"
)

// DefaultTTL returns the standard lifetime for the token type. Shift
// tokens have no default: their lifetime is the remaining shift window,
// supplied at mint time.
func (t Type) DefaultTTL() time.Duration {
	switch t {
	case TypeAccess:
		return time.Hour
	case TypeRefresh:
		return 8 * time.Hour
	case TypeDevice:
		return 24 * time.Hour
	case TypeLocation:
		return 2 * time.Hour
	case TypeBiometric:
		return 30 * time.Minute
	default:
		return 0
	}
}

func (t Type) valid() bool {
	switch t {
	case TypeAccess, TypeRefresh, TypeDevice, TypeLocation, TypeBiometric, TypeShift:
		return true
	}
	return false
}

var (
	// ErrMalformed is an exported constant or variable used by the authentication engine.
	ErrMalformed = errors.New("token malformed or signature invalid")
	// ErrExpired is an exported constant or variable used by the authentication engine.
	ErrExpired = errors.New("token expired")
	// ErrRevoked is an exported constant or variable used by the authentication engine.
	ErrRevoked = errors.New("token revoked")
	// ErrUsageExhausted is an exported constant or variable used by the authentication engine.
	ErrUsageExhausted = errors.New("token usage exhausted")
	// ErrDeviceBindingRequired is an exported constant or variable used by the authentication engine.
	ErrDeviceBindingRequired = errors.New("token requires a device binding")
	// ErrLocationUnverified is an exported constant or variable used by the authentication engine.
	ErrLocationUnverified = errors.New("location binding requires a verified location")
	// ErrShiftWindowRequired is an exported constant or variable used by the authentication engine.
	ErrShiftWindowRequired = errors.New("shift token requires a future shift end")
)

// ValidityFloor is the minimum composite score a token must keep to
// validate.
const ValidityFloor = 50

// Claims is the signed claim set carried by every token.
//
// Claims instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Claims struct {
	TokenType             string `json:"ttype"`
	SessionID             string `json:"sid,omitempty"`
	RestaurantID          string `json:"rid,omitempty"`
	Role                  string `json:"role,omitempty"`
	DeviceFingerprint     string `json:"dfp"`
	LocationID            string `json:"loc,omitempty"`
	BiometricEnrollmentID string `json:"bio,omitempty"`
	RiskScore             int    `json:"risk"`
	MaxUsage              int64  `json:"maxu,omitempty"`
	jwt.RegisteredClaims
}

// MintSpec describes one token to be issued.
//
// MintSpec instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MintSpec struct {
	Type         Type
	Subject      string
	SessionID    string
	RestaurantID string
	Role         string

	// DeviceFingerprint is mandatory: every token is device-bound.
	DeviceFingerprint string

	// LocationID may only be set together with LocationVerified.
	LocationID       string
	LocationVerified bool

	BiometricEnrollmentID string

	RiskScore int
	MaxUsage  int64 // 0 = unlimited

	// ShiftEnd bounds shift tokens; ignored for other types.
	ShiftEnd time.Time

	// TTLOverride replaces the type default when positive.
	TTLOverride time.Duration
}

// Config defines a public type used by pinauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// Manager signs and parses purpose-scoped tokens.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager may return an error when input validation, dependency calls, or security checks fail.
// NewManager does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewManager(cfg Config, now func() time.Time) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{config: cfg, now: now}, nil
}

// Mint signs a token for the given spec. The risk score is clamped to
// [0,100] before it is embedded.
//
// Mint may return an error when input validation, dependency calls, or security checks fail.
// Mint does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) Mint(spec MintSpec) (string, *Claims, error) {
	if !spec.Type.valid() {
		return "", nil, fmt.Errorf("unknown token type %q", spec.Type)
	}
	if spec.Subject == "" {
		return "", nil, errors.New("token subject required")
	}
	if spec.DeviceFingerprint == "" {
		return "", nil, ErrDeviceBindingRequired
	}
	if spec.LocationID != "" && !spec.LocationVerified {
		return "", nil, ErrLocationUnverified
	}

	now := m.now()
	ttl := spec.Type.DefaultTTL()
	if spec.TTLOverride > 0 {
		ttl = spec.TTLOverride
	}
	if spec.Type == TypeShift {
		if !spec.ShiftEnd.After(now) {
			return "", nil, ErrShiftWindowRequired
		}
		ttl = spec.ShiftEnd.Sub(now)
	}
	if ttl <= 0 {
		return "", nil, errors.New("token lifetime must be positive")
	}

	claims := Claims{
		TokenType:             string(spec.Type),
		SessionID:             spec.SessionID,
		RestaurantID:          spec.RestaurantID,
		Role:                  spec.Role,
		DeviceFingerprint:     spec.DeviceFingerprint,
		LocationID:            spec.LocationID,
		BiometricEnrollmentID: spec.BiometricEnrollmentID,
		RiskScore:             clampScore(spec.RiskScore),
		MaxUsage:              spec.MaxUsage,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   spec.Subject,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
	if err != nil {
		return "", nil, err
	}
	return signed, &claims, nil
}

// Parse verifies the signature and registered claims of a token string.
// Expired tokens map to [ErrExpired]; everything else that fails signature
// or claim validation maps to [ErrMalformed].
//
// Parse may return an error when input validation, dependency calls, or security checks fail.
// Parse does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	if !Type(claims.TokenType).valid() {
		return nil, ErrMalformed
	}
	return claims, nil
}

// Remaining returns the token's remaining lifetime, never negative.
func (m *Manager) Remaining(claims *Claims) time.Duration {
	if claims == nil || claims.ExpiresAt == nil {
		return 0
	}
	left := claims.ExpiresAt.Time.Sub(m.now())
	if left < 0 {
		return 0
	}
	return left
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
