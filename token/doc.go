// Package token issues and validates purpose-scoped HS256 tokens with
// device, location, and biometric bindings.
//
// # Token types
//
// Each token carries exactly one purpose claim and a lifetime appropriate
// to it: access (1h), refresh (8h), device (24h), location (2h), biometric
// (30m), and shift tokens that live until the shift window closes.
//
// # Validation semantics
//
// Expiry, revocation, and usage exhaustion are hard failures. Binding
// checks are scored: every failed binding deducts from a composite score
// that starts at 100, and a token is only valid when all bindings it
// carries pass and the score stays at or above the validity floor.
// Usage is consumed with INCR-then-check, so a single-use token validates
// exactly once even under concurrent validation.
package token
