package logging

import (
	"net/url"
	"regexp"
)

const (
	// MaxValueLogLength caps free-text values (post content, feedback) in logs.
	MaxValueLogLength = 200
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Bearer credentials: agent API keys, admin tokens and JWTs alike.
	bearerPattern = regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._~+/=-]+`)

	// Agent API keys wherever they appear.
	agentKeyPattern = regexp.MustCompile(`fvm_[0-9a-f]{8,}`)

	// Matches: api_key=xxx, apikey=xxx, token=xxx
	keyParamPattern = regexp.MustCompile(`(?i)(api[_-]?key|token)=[A-Za-z0-9._-]+`)

	// user:pass@host
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)
)

// SanitizeConnectionString removes credentials from a database or Redis URL.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError strips credentials from an error message before it is logged.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error())
}

// SanitizeString applies every redaction pattern to s.
func SanitizeString(s string) string {
	sanitized := passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	sanitized = bearerPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
	sanitized = keyParamPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = agentKeyPattern.ReplaceAllString(sanitized, "fvm_"+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeURL redacts credential query parameters (the MCP endpoint accepts ?api_key=).
func SanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	if u.RawQuery == "" {
		return u.Path
	}
	q := u.Query()
	for _, name := range []string{"api_key", "token"} {
		if q.Has(name) {
			q.Set(name, RedactedText)
		}
	}
	return u.Path + "?" + q.Encode()
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
