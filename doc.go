// Package pinauth provides a PIN-based authentication engine for restaurant
// operations backends, with argon2id PIN digests, Redis-backed lockout and
// brute-force detection, device and biometric binding, purpose-scoped JWTs,
// and risk-scored mobile sessions.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// pinauth is the public surface. It exposes [Engine], [Builder], [Config], and
// value types (LoginResult, SessionValidation, SecurityReport, etc.). PIN
// policy and hashing, token minting and validation, and device state live in
// the pin, token, and device sub-packages; attempt tracking, audit dispatch,
// and risk scoring live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its
//     public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//   - Import any sub-package that re-imports pinauth (no import cycles).
//
// # Performance contract
//
// ValidateSession is the hot path. Its Redis lookups are bounded by the
// number of tokens a session carries and run concurrently. Login pays the
// full argon2id cost by design; a miss and a hit must cost the same.
package pinauth
