package config

import (
	"regexp"
	"strings"
)

const DefaultSessionID = "default"

var (
	validSessionRe  = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,127}$`)
	invalidSessChar = regexp.MustCompile(`[^a-z0-9_.-]+`)
	leadingDash     = regexp.MustCompile(`^[-.]+`)
	trailingDash    = regexp.MustCompile(`[-.]+$`)
)

// NormalizeSessionID converts a client-provided session identifier into a
// canonical form used as a store key:
//   - lowercase, max 128 chars
//   - only [a-z0-9_.-] allowed; runs of other chars collapse to "-"
//   - leading/trailing separators stripped
//   - empty result defaults to "default"
func NormalizeSessionID(id string) string {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return DefaultSessionID
	}

	lower := strings.ToLower(trimmed)
	if validSessionRe.MatchString(lower) {
		return lower
	}

	result := invalidSessChar.ReplaceAllString(lower, "-")
	result = leadingDash.ReplaceAllString(result, "")
	result = trailingDash.ReplaceAllString(result, "")

	if len(result) > 128 {
		result = result[:128]
	}
	if result == "" {
		return DefaultSessionID
	}
	return result
}
