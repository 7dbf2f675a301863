// Package pin implements PIN policy enforcement and Argon2id digest handling.
//
// # Output format
//
// Digests are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The [Hasher] supports transparent parameter upgrades: if the stored digest was
// produced with weaker parameters, [Hasher.NeedsRehash] returns true so the caller
// can re-hash on the next successful login.
//
// # Policy
//
// [Policy.Validate] is pure and deterministic. A PIN is rejected when it is not
// exactly four ASCII digits, matches a weak pattern (repeated digit, sequential
// run, alternating pair), appears on the common-PIN denylist, or scores below
// the configured minimum strength. [Policy.GenerateSecure] rejection-samples
// from crypto/rand until a candidate passes the same checks.
//
// # What this package must NOT do
//
//   - Store or retrieve PINs — callers supply plaintext and receive digests.
//   - Import any other pinauth package.
//   - Log plaintext PINs or digest parameters at runtime.
package pin
