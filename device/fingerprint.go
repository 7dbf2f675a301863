package device

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Fingerprint derives a stable device identifier from client-reported
// signals (hardware model, OS version, installation ID, screen metrics).
// Signals are folded in sorted key order, so maps that differ only in
// iteration order produce the same fingerprint.
//
// Fingerprint may return an error when input validation, dependency calls, or security checks fail.
// Fingerprint does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func Fingerprint(signals map[string]string) string {
	keys := make([]string, 0, len(signals))
	for k := range signals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(signals[k])
		b.WriteByte(';')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
