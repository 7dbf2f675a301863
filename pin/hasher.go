package pin

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

// HashConfig defines a public type used by pinauth APIs.
//
// HashConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HashConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher produces and verifies salted argon2id digests of PINs.
//
// Verify always performs a full argon2 comparison, even for malformed input:
// a mismatch and a format error are indistinguishable by latency.
type Hasher struct {
	config HashConfig
	policy *Policy

	// dummy is a valid digest of an unguessable random PIN-shaped value,
	// used to equalize the failure path for malformed input.
	dummy *parsedPHC
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
	keyLength   uint32
}

// NewHasher describes the newhasher operation and its observable behavior.
//
// NewHasher may return an error when input validation, dependency calls, or security checks fail.
// NewHasher does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewHasher(cfg HashConfig, policy *Policy) (*Hasher, error) {
	if err := validateHashConfig(cfg); err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, errors.New("pin policy required")
	}

	h := &Hasher{config: cfg, policy: policy}

	salt := make([]byte, cfg.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	h.dummy = &parsedPHC{
		memory:      cfg.Memory,
		time:        cfg.Time,
		parallelism: cfg.Parallelism,
		salt:        salt,
		hash:        argon2.IDKey([]byte("0000"), salt, cfg.Time, cfg.Memory, cfg.Parallelism, cfg.KeyLength),
		keyLength:   cfg.KeyLength,
	}

	return h, nil
}

// Hash validates the PIN against policy and returns a PHC-formatted
// argon2id digest. The raw PIN is never retained beyond the call.
//
// Hash may return an error when input validation, dependency calls, or security checks fail.
// Hash does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (h *Hasher) Hash(pinValue string) (string, error) {
	if res := h.policy.Validate(pinValue); !res.Valid {
		if _, ok := parseDigits(pinValue); !ok {
			return "", ErrInvalidFormat
		}
		return "", ErrWeakPIN
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey(
		[]byte(pinValue),
		salt,
		h.config.Time,
		h.config.Memory,
		h.config.Parallelism,
		h.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(hash),
	), nil
}

// Verify compares a PIN against a stored digest. Malformed PINs and
// malformed digests burn the same argon2 cost as a real mismatch before
// returning false.
//
// Verify may return an error when input validation, dependency calls, or security checks fail.
// Verify does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (h *Hasher) Verify(pinValue string, encodedDigest string) (bool, error) {
	params := h.dummy
	usable := true

	if _, ok := parseDigits(pinValue); !ok {
		usable = false
	}

	parsed, err := parsePHC(encodedDigest)
	if err != nil {
		usable = false
	} else if usable {
		params = parsed
	}

	computed := argon2.IDKey(
		[]byte(pinValue),
		params.salt,
		params.time,
		params.memory,
		params.parallelism,
		params.keyLength,
	)

	if !usable {
		// Consume the comparison so the branch cost matches a mismatch.
		subtle.ConstantTimeCompare(computed, params.hash)
		return false, nil
	}

	return subtle.ConstantTimeCompare(computed, params.hash) == 1, nil
}

// NeedsRehash reports whether the stored digest was produced with weaker
// cost parameters than the current configuration.
//
// NeedsRehash may return an error when input validation, dependency calls, or security checks fail.
// NeedsRehash does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (h *Hasher) NeedsRehash(encodedDigest string) (bool, error) {
	parsed, err := parsePHC(encodedDigest)
	if err != nil {
		return false, err
	}

	if h.config.Memory > parsed.memory {
		return true, nil
	}
	if h.config.Time > parsed.time {
		return true, nil
	}
	if h.config.Parallelism > parsed.parallelism {
		return true, nil
	}
	if h.config.KeyLength != parsed.keyLength {
		return true, nil
	}

	return false, nil
}

func parsePHC(encodedDigest string) (*parsedPHC, error) {
	parts := strings.Split(encodedDigest, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}

	if parts[1] != algorithmID {
		return nil, errors.New("unsupported algorithm")
	}

	versionPart := parts[2]
	if !strings.HasPrefix(versionPart, "v=") {
		return nil, errors.New("missing argon2 version")
	}

	version, err := strconv.Atoi(strings.TrimPrefix(versionPart, "v="))
	if err != nil {
		return nil, errors.New("invalid argon2 version")
	}
	if version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	params, err := parseParams(parts[3])
	if err != nil {
		return nil, err
	}

	salt, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, errors.New("invalid salt encoding")
	}
	if len(salt) < int(minSaltLength) {
		return nil, errors.New("invalid salt length")
	}

	hash, err := base64.StdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, errors.New("invalid hash encoding")
	}
	if len(hash) == 0 {
		return nil, errors.New("invalid hash length")
	}

	return &parsedPHC{
		memory:      params.memory,
		time:        params.time,
		parallelism: params.parallelism,
		salt:        salt,
		hash:        hash,
		keyLength:   uint32(len(hash)),
	}, nil
}

type parsedParams struct {
	memory      uint32
	time        uint32
	parallelism uint8
}

func parseParams(part string) (*parsedParams, error) {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return nil, errors.New("invalid parameter format")
	}

	var (
		memorySet, timeSet, parallelismSet bool
		params                             parsedParams
	)

	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, errors.New("invalid parameter entry")
		}

		switch kv[0] {
		case "m":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return nil, errors.New("invalid memory parameter")
			}
			params.memory = uint32(v)
			memorySet = true
		case "t":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return nil, errors.New("invalid time parameter")
			}
			params.time = uint32(v)
			timeSet = true
		case "p":
			v, err := strconv.ParseUint(kv[1], 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return nil, errors.New("invalid parallelism parameter")
			}
			params.parallelism = uint8(v)
			parallelismSet = true
		default:
			return nil, errors.New("unsupported parameter")
		}
	}

	if !memorySet || !timeSet || !parallelismSet {
		return nil, errors.New("missing parameters")
	}

	return &params, nil
}

func validateHashConfig(cfg HashConfig) error {
	if cfg.Memory < minMemoryKB {
		return errors.New("pin hash memory must be >= 8192 KB")
	}
	if cfg.Time < minTimeCost {
		return errors.New("pin hash time must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return errors.New("pin hash parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return errors.New("pin hash salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return errors.New("pin hash key length must be >= 16")
	}

	return nil
}
