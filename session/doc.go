// Package session manages the lifecycle of mobile work sessions: typed
// session policies, security-level derivation, Redis-backed persistence
// with independent idle and absolute expiry, per-device concurrency
// slots, and atomic refresh-token rotation.
package session
