package utils

import (
	"regexp"
	"strings"
)

// SensitivePatterns contains regex patterns for sensitive data
var SensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|secret|token|password|auth)\s*[:=]\s*['"]?([a-zA-Z0-9_\-+/=]{8,})['"]?`),
	regexp.MustCompile(`(?i)(bearer\s+)([a-zA-Z0-9_\-+/=]{20,})`),
	// Telegram bot tokens, bare or embedded in API URLs (bot<id>:<secret>)
	regexp.MustCompile(`(bot)?([0-9]{6,12}):([a-zA-Z0-9_\-]{30,})`),
}

// SanitizeLog removes sensitive information from log messages
func SanitizeLog(message string) string {
	result := message

	for _, pattern := range SensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			// Keep the key name (or bot id) and hide the value
			parts := strings.SplitN(match, ":", 2)
			if len(parts) == 2 {
				return parts[0] + ":***REDACTED***"
			}
			return "***REDACTED***"
		})
	}

	return result
}
