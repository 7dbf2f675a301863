// Package device manages device fingerprints, the device trust lifecycle,
// and biometric enrollment on top of Redis.
//
// # Trust lifecycle
//
// A device record moves pending -> trusted -> revoked. Unknown fingerprints
// are registered as pending and denied; only an explicit [Registry.Trust]
// promotes them. Revocation is immediate and terminal: a revoked record can
// only be cleared with [Registry.Forget] and re-registered from scratch.
//
// # Biometrics
//
// Platform biometric hardware lives behind the [Authenticator] interface.
// The [Manager] never hard-fails an authentication attempt: provider errors,
// unavailability, and negotiation timeouts all degrade to a result with
// FallbackToPIN set, so the caller can continue with PIN verification.
package device
