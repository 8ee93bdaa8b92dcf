// Package redact removes sensitive values from structured data before it
// leaves the process: in log lines, telemetry payloads and RPC error text.
package redact

import "strings"

// Redacted is the replacement marker for sensitive values.
const Redacted = "<REDACTED>"

// sensitiveKeys are matched case-insensitively at any nesting depth.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"pwd":           {},
	"secret":        {},
	"apikey":        {},
	"accesstoken":   {},
	"authorization": {},
	"clientsecret":  {},
	"privatekey":    {},
	"certificate":   {},
	"passphrase":    {},
}

// Key reports whether a field name is considered sensitive.
func Key(name string) bool {
	_, ok := sensitiveKeys[strings.ToLower(name)]
	return ok
}

// Value returns a deep copy of v with every value under a sensitive key
// replaced by Redacted. Maps and slices are walked recursively; scalar
// values and unknown container types pass through unchanged.
func Value(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if Key(k) {
				out[k] = Redacted
				continue
			}
			out[k] = Value(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = Value(inner)
		}
		return out
	default:
		return v
	}
}
