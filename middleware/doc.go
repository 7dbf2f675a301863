// Package middleware exposes an HTTP adapter for session enforcement built on
// top of pinauth.Engine validation.
//
// # Guards
//
//   - [Guard] — validates the bearer access token and device fingerprint,
//     enforces read-only sessions, and injects the validation result into the
//     request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself — all decisions are delegated to
// Engine.ValidateSession.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond what the Engine reports.
package middleware
