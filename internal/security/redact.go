package security

import (
	"fmt"
	"strings"
)

// MaxLoggedValue caps string values written to logs.
const MaxLoggedValue = 256

var sensitiveSubstrings = []string{
	"token",
	"password",
	"authorization",
	"apikey",
	"api_key",
	"access_key",
	"private_key",
	"credentials",
	"auth",
	"passwd",
	"key",
	"cookie",
	"jwt",
	"bearer",
	"credential",
	"pwd",
	"passphrase",
	"secret",
}

// RedactArguments returns a copy of tool parameters safe for logging:
// sensitive keys are masked, long strings are truncated and nested objects
// are processed recursively.
func RedactArguments(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	redacted := make(map[string]any, len(values))
	for key, value := range values {
		if isSensitiveKey(key) {
			redacted[key] = "***"
			continue
		}
		redacted[key] = redactValue(value)
	}
	return redacted
}

func redactValue(value any) any {
	switch v := value.(type) {
	case string:
		return Truncate(v, MaxLoggedValue)
	case map[string]any:
		return RedactArguments(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redactValue(item)
		}
		return out
	default:
		return value
	}
}

// Truncate shortens s to at most limit bytes and notes how much was dropped.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return fmt.Sprintf("%s...(%d more bytes)", s[:limit], len(s)-limit)
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	for _, part := range sensitiveSubstrings {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}
