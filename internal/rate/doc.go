// Package rate provides Redis-backed attempt tracking, exponential-backoff
// lockout, and brute-force pattern scoring for PIN authentication.
//
// # Window semantics
//
// Attempt counters use INCR with a rolling retention TTL; lockouts are
// separate keys whose TTL is the remaining lockout. Key prefixes:
//   - pf:   — failed attempts per credential
//   - pfo:  — failed attempts per origin IP
//   - plk:  — active lockout per credential
//   - bfv:  — attempt volume per IP (detector window)
//   - bfua: — user agents seen per IP (detector window)
//   - bfip: — IPs seen per user agent (detector window)
//
// # Ordering
//
// RecordFailure increments before comparing against the threshold, so two
// racing failures at the limit both observe the lockout condition rather
// than both slipping under it.
//
// # What this package must NOT do
//
//   - Decide what a lockout or a suspicious score means for the caller.
//   - Be imported outside the pinauth module.
package rate
