// Package redact centralizes the sensitive-data policy shared by the event
// bus and the tool pipeline's guardian gate.
//
// The policy is a single pattern set: string values that look like API keys,
// bearer tokens, AWS access keys, or credential assignments, and map keys
// whose name suggests a secret. Both the scanner and the sanitizer walk the
// same payload tree so detection and masking can never disagree.
package redact

import (
	"regexp"
	"strings"
)

// Level is the coarseness of masking applied to sensitive values.
type Level string

const (
	LevelNone    Level = "none"
	LevelPartial Level = "partial"
	LevelStrict  Level = "strict"
)

// Masked is the replacement for sensitive values under LevelStrict.
const Masked = "[REDACTED]"

var valuePatterns = []*regexp.Regexp{
	// Anthropic-style keys first: the generic sk- pattern also matches them.
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{8,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{8,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/-]{8,}=*`),
	regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
	regexp.MustCompile(`(?i)(api[_-]?key|secret|token|password)\s*[:=]\s*["']?[^\s"']{20,}`),
}

var keyIndicators = []string{
	"secret", "key", "token", "password", "credential", "authorization",
}

// SensitiveKey reports whether a map key's name suggests its value is a
// secret, independent of what the value looks like.
func SensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, indicator := range keyIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// SensitiveValue reports whether a string value matches any key-like pattern.
func SensitiveValue(value string) bool {
	for _, pattern := range valuePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

// Scan recursively walks a payload tree and reports whether any sensitive
// indicator is present. It understands maps, slices, and strings; all other
// leaf types are never sensitive.
func Scan(payload any) bool {
	switch v := payload.(type) {
	case nil:
		return false
	case string:
		return SensitiveValue(v)
	case map[string]any:
		for key, val := range v {
			if SensitiveKey(key) {
				return true
			}
			if Scan(val) {
				return true
			}
		}
		return false
	case []any:
		for _, item := range v {
			if Scan(item) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range v {
			if SensitiveValue(item) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Sanitize returns a copy of the payload tree with sensitive values masked
// according to the level. Non-sensitive structure is preserved; the input is
// never mutated. LevelNone returns the payload unchanged.
func Sanitize(payload any, level Level) any {
	if level == LevelNone || level == "" {
		return payload
	}
	return sanitizeValue(payload, level, false)
}

func sanitizeValue(payload any, level Level, parentSensitive bool) any {
	switch v := payload.(type) {
	case string:
		if parentSensitive || SensitiveValue(v) {
			return mask(v, level)
		}
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[key] = sanitizeValue(val, level, parentSensitive || SensitiveKey(key))
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = sanitizeValue(item, level, parentSensitive)
		}
		return out
	case []string:
		out := make([]string, len(v))
		for i, item := range v {
			if parentSensitive || SensitiveValue(item) {
				out[i] = mask(item, level).(string)
			} else {
				out[i] = item
			}
		}
		return out
	default:
		if parentSensitive {
			// Non-string secrets (numbers, bools) are still masked strictly:
			// their exact value may be meaningful.
			if level == LevelStrict {
				return Masked
			}
		}
		return v
	}
}

func mask(value string, level Level) any {
	if level == LevelPartial {
		if len(value) <= 4 {
			return value + "***"
		}
		return value[:4] + "***"
	}
	return Masked
}
