package logging

import (
	"regexp"
)

// RedactedText is the replacement text for sensitive data
const RedactedText = "[REDACTED]"

var (
	// Matches bearer tokens forwarded in provider error messages
	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9._-]+`)

	// Matches API key query params and sk-style provider keys
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)
	skKeyPattern  = regexp.MustCompile(`\bsk-[A-Za-z0-9-_]{16,}\b`)

	// Matches user:pass@host credentials embedded in URLs
	credsPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)
)

// SanitizeError strips credentials from error messages before logging.
// Provider SDKs sometimes echo request headers back in error bodies.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return Sanitize(err.Error())
}

// Sanitize strips credential-shaped substrings from s.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	out := bearerPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	out = apiKeyPattern.ReplaceAllString(out, "${1}="+RedactedText)
	out = skKeyPattern.ReplaceAllString(out, RedactedText)
	out = credsPattern.ReplaceAllString(out, "://"+RedactedText+"@"+RedactedText)
	return out
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed.
// Used to keep email subjects and bodies readable in log lines.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
