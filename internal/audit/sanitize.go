package audit

import "strings"

const (
	redactedValue = "[REDACTED]"
	maxValueLen   = 1000
)

// sensitiveFields are metadata keys whose values never reach a sink.
// Matching is case-insensitive on key substrings.
var sensitiveFields = []string{
	"pin",
	"password",
	"token",
	"secret",
	"key",
	"credential",
	"authorization",
	"cookie",
}

// Sanitize returns a copy of the event safe for persistence: sensitive
// metadata values are redacted and oversized values truncated. The input
// event is not modified.
//
// Sanitize may return an error when input validation, dependency calls, or security checks fail.
// Sanitize does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func Sanitize(event Event) Event {
	if len(event.Metadata) == 0 {
		event.Error = truncate(event.Error)
		return event
	}

	clean := make(map[string]string, len(event.Metadata))
	for k, v := range event.Metadata {
		if isSensitiveKey(k) {
			clean[k] = redactedValue
			continue
		}
		clean[k] = truncate(v)
	}
	event.Metadata = clean
	event.Error = truncate(event.Error)
	return event
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, field := range sensitiveFields {
		if strings.Contains(lower, field) {
			return true
		}
	}
	return false
}

func truncate(v string) string {
	if len(v) <= maxValueLen {
		return v
	}
	return v[:maxValueLen] + "..."
}
