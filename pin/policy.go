package pin

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
)

// Length is the required PIN length in digits.
const Length = 4

// Strength classifies how resistant a PIN is to guessing.
type Strength int

const (
	// StrengthWeak is an exported constant or variable used by the authentication engine.
	StrengthWeak Strength = iota
	// StrengthMedium is an exported constant or variable used by the authentication engine.
	StrengthMedium
	// StrengthStrong is an exported constant or variable used by the authentication engine.
	StrengthStrong
)

// String describes the string operation and its observable behavior.
func (s Strength) String() string {
	switch s {
	case StrengthStrong:
		return "strong"
	case StrengthMedium:
		return "medium"
	default:
		return "weak"
	}
}

var (
	// ErrInvalidFormat is an exported constant or variable used by the authentication engine.
	ErrInvalidFormat = errors.New("pin must be exactly 4 numeric digits")
	// ErrWeakPIN is an exported constant or variable used by the authentication engine.
	ErrWeakPIN = errors.New("pin fails strength policy")
	// ErrGenerationExhausted is an exported constant or variable used by the authentication engine.
	ErrGenerationExhausted = errors.New("secure pin generation exhausted attempts")
)

// denylist holds PINs rejected regardless of computed strength: common dates,
// keyboard walks, and culturally popular codes that survive the pattern checks.
var denylist = map[string]struct{}{
	"0852": {}, "2580": {}, "1590": {},
	"1122": {}, "1133": {}, "2211": {}, "1004": {},
	"2000": {}, "2001": {}, "1979": {}, "1980": {},
	"1990": {}, "1991": {}, "2020": {}, "6969": {},
	"2468": {}, "1357": {},
}

// Result is the outcome of a policy validation pass.
//
// Result instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Result struct {
	Valid       bool
	Strength    Strength
	Score       int
	Errors      []string
	Suggestions []string
}

// Config defines a public type used by pinauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	MinStrength        Strength
	GenerationMaxTries int
}

// Policy validates PIN format and strength. Validation is pure and
// deterministic: the same input always yields the same Result.
type Policy struct {
	config Config
}

// NewPolicy describes the newpolicy operation and its observable behavior.
//
// NewPolicy may return an error when input validation, dependency calls, or security checks fail.
// NewPolicy does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewPolicy(cfg Config) *Policy {
	if cfg.GenerationMaxTries <= 0 {
		cfg.GenerationMaxTries = 128
	}
	return &Policy{config: cfg}
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Policy) Validate(pin string) Result {
	digits, ok := parseDigits(pin)
	if !ok {
		return Result{
			Valid:    false,
			Strength: StrengthWeak,
			Errors:   []string{"pin must be exactly 4 numeric digits"},
		}
	}

	var errs []string
	var suggestions []string

	switch {
	case allSame(digits):
		errs = append(errs, "pin uses a single repeated digit")
	case isSequential(digits):
		errs = append(errs, "pin is a sequential run")
	case isAlternatingPair(digits):
		errs = append(errs, "pin alternates between two digits")
	}
	if _, denied := denylist[pin]; denied {
		errs = append(errs, "pin is on the common-pin denylist")
	}

	score := strengthScore(digits)
	strength := bucketStrength(score)

	if len(errs) > 0 {
		suggestions = append(suggestions, "avoid repeated, sequential, or date-like digit patterns")
		return Result{
			Valid:       false,
			Strength:    StrengthWeak,
			Score:       score,
			Errors:      errs,
			Suggestions: suggestions,
		}
	}

	if strength < p.config.MinStrength {
		suggestions = append(suggestions, "use more distinct digits with irregular spacing")
		return Result{
			Valid:       false,
			Strength:    strength,
			Score:       score,
			Errors:      []string{"pin strength below configured minimum"},
			Suggestions: suggestions,
		}
	}

	return Result{Valid: true, Strength: strength, Score: score}
}

// GenerateSecure rejection-samples random PINs until one passes Validate,
// bounded by the configured attempt budget.
//
// GenerateSecure may return an error when input validation, dependency calls, or security checks fail.
// GenerateSecure does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Policy) GenerateSecure() (string, error) {
	max := big.NewInt(10)
	for attempt := 0; attempt < p.config.GenerationMaxTries; attempt++ {
		buf := make([]byte, Length)
		for i := range buf {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", err
			}
			buf[i] = byte('0' + n.Int64())
		}

		candidate := string(buf)
		if p.Validate(candidate).Valid {
			return candidate, nil
		}
	}

	return "", ErrGenerationExhausted
}

func parseDigits(pin string) ([Length]int, bool) {
	var digits [Length]int
	if len(pin) != Length {
		return digits, false
	}
	for i := 0; i < Length; i++ {
		c := pin[i]
		if c < '0' || c > '9' {
			return digits, false
		}
		digits[i] = int(c - '0')
	}
	return digits, true
}

func allSame(d [Length]int) bool {
	return d[0] == d[1] && d[1] == d[2] && d[2] == d[3]
}

func isSequential(d [Length]int) bool {
	asc, desc := true, true
	for i := 1; i < Length; i++ {
		if d[i] != d[i-1]+1 {
			asc = false
		}
		if d[i] != d[i-1]-1 {
			desc = false
		}
	}
	return asc || desc
}

func isAlternatingPair(d [Length]int) bool {
	return d[0] == d[2] && d[1] == d[3] && d[0] != d[1]
}

// strengthScore combines five independent signals into a 0-100 score:
// unique-digit fraction, absence of adjacent repeats, absence of +-1 steps,
// absence of a constant-difference progression, and normalized Shannon
// entropy of the digit distribution.
func strengthScore(d [Length]int) int {
	score := 0

	seen := map[int]struct{}{}
	for _, v := range d {
		seen[v] = struct{}{}
	}
	score += int(math.Round(30 * float64(len(seen)) / Length))

	adjacentRepeat := false
	sequentialStep := false
	for i := 1; i < Length; i++ {
		if d[i] == d[i-1] {
			adjacentRepeat = true
		}
		if d[i] == d[i-1]+1 || d[i] == d[i-1]-1 {
			sequentialStep = true
		}
	}
	if !adjacentRepeat {
		score += 15
	}
	if !sequentialStep {
		score += 15
	}

	arithmetic := true
	diff := d[1] - d[0]
	for i := 2; i < Length; i++ {
		if d[i]-d[i-1] != diff {
			arithmetic = false
			break
		}
	}
	if !arithmetic {
		score += 15
	}

	score += int(math.Round(25 * normalizedEntropy(d)))

	if score > 100 {
		score = 100
	}
	return score
}

// normalizedEntropy returns Shannon entropy of the digit distribution,
// normalized to [0,1] against the 2-bit maximum for four symbols.
func normalizedEntropy(d [Length]int) float64 {
	counts := map[int]int{}
	for _, v := range d {
		counts[v]++
	}

	entropy := 0.0
	for _, c := range counts {
		p := float64(c) / Length
		entropy -= p * math.Log2(p)
	}

	return entropy / 2.0
}

func bucketStrength(score int) Strength {
	switch {
	case score >= 70:
		return StrengthStrong
	case score >= 40:
		return StrengthMedium
	default:
		return StrengthWeak
	}
}

// FormatError reports whether the given PIN fails basic format checks
// without evaluating pattern or strength policy.
func FormatError(pin string) error {
	if _, ok := parseDigits(pin); !ok {
		return fmt.Errorf("%w", ErrInvalidFormat)
	}
	return nil
}
