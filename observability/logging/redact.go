package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// Keys whose string values never reach a log sink in clear.
var sensitiveKeys = map[string]struct{}{
	"auth_secret":   {},
	"authorization": {},
	"token":         {},
	"password":      {},
	"headers":       {},
}

// IsSensitive reports whether values logged under key are masked.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// SensitiveKeys returns the masked keys in sorted order.
func SensitiveKeys() []string {
	keys := make([]string, 0, len(sensitiveKeys))
	for key := range sensitiveKeys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue returns the canonical redacted placeholder for non-empty values. Empty values
// are returned unchanged to avoid introducing noise in logs.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns a slog.Attr whose value is redacted when non-empty.
func MaskField(key, value string) slog.Attr {
	return slog.String(key, MaskValue(value))
}
