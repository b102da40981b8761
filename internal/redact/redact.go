// Package redact masks sensitive values in arbitrary nested payloads before
// they are written to the audit trail. Redaction is key-driven: a mapping key
// that contains any deny-listed term (case-insensitive) has its value replaced
// with the Marker, whatever the value's type. Structure is otherwise preserved
// so audit records remain diffable and queryable.
package redact

import "strings"

// Marker is the fixed replacement value for redacted fields.
const Marker = "[REDACTED]"

// denyTerms are matched as case-insensitive substrings of mapping keys.
// "auth" also covers "authorization", "auth_token", "oauth" etc.
var denyTerms = []string{
	"password",
	"passwd",
	"token",
	"secret",
	"api_key",
	"apikey",
	"auth",
	"national_id",
	"nationalid",
	"ssn",
	"card",
	"cvv",
	"pin",
}

// Sensitive reports whether a mapping key should have its value masked.
func Sensitive(key string) bool {
	k := strings.ToLower(key)
	for _, term := range denyTerms {
		if strings.Contains(k, term) {
			return true
		}
	}
	return false
}

// Redact returns a copy of v with every sensitive mapping value replaced by
// Marker. It recurses into map[string]any and []any values; anything else is
// returned unchanged. Redact never panics and is idempotent: redacting an
// already-redacted payload yields the same payload.
func Redact(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return redactMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Redact(item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, item := range val {
			out[i] = redactMap(item)
		}
		return out
	default:
		return v
	}
}

func redactMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if Sensitive(k) {
			out[k] = Marker
			continue
		}
		out[k] = Redact(v)
	}
	return out
}
