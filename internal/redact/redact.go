// Package redact derives loggable views of request and response payloads.
//
// Credentials travel in headers and occasionally leak into payloads, so
// every value destined for a log line passes through Value first. The
// redacted copy is for logging only — data returned to callers is never
// touched.
package redact

import (
	"fmt"
	"strings"
)

// MaxDepth bounds recursion so cyclic or pathologically nested payloads
// cannot hang the logger.
const MaxDepth = 10

// maxStringLen is the longest scalar string allowed into a log line.
const maxStringLen = 1000

// Sentinels substituted into the redacted copy.
const (
	Redacted        = "[REDACTED]"
	MaxDepthReached = "[MAX_DEPTH_REACHED]"
)

// sensitivePatterns are substrings that mark a map key as sensitive,
// matched case-insensitively. A matching key has its value replaced
// wholesale, whatever its type.
var sensitivePatterns = []string{
	"password",
	"secret",
	"token",
	"key",
	"apiintegrationcode",
	"integrationcode",
	"authorization",
	"cookie",
}

// Value returns a deep copy of v safe for logging: sensitive map entries
// are masked, over-long strings are replaced with a length placeholder,
// and recursion stops at MaxDepth. The input is never modified.
func Value(v any) any {
	return walk(v, 0)
}

func walk(v any, depth int) any {
	if depth > MaxDepth {
		return MaxDepthReached
	}

	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if sensitiveKey(k) {
				out[k] = Redacted
				continue
			}
			out[k] = walk(item, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = walk(item, depth+1)
		}
		return out
	case string:
		if len(val) > maxStringLen {
			return fmt.Sprintf("[LONG_STRING:%d_chars]", len(val))
		}
		return val
	default:
		return v
	}
}

func sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, pattern := range sensitivePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
