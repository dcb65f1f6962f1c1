// Package redact masks credentials in strings before they are logged. Backends
// sometimes echo the Authorization header or the API key in error bodies.
package redact

import "regexp"

// Placeholder replaces every masked secret.
const Placeholder = "[REDACTED]"

var (
	bearerRegex = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9_\-.~+/=]{8,}`)
	apiKeyRegex = regexp.MustCompile(
		`(?i)((?:api[_-]?key|token|secret|access[_-]?key)["'\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`,
	)
	skKeyRegex = regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{8,}`)
)

// String returns s with bearer tokens, key=value secrets and sk- style API keys
// replaced by Placeholder.
func String(s string) string {
	s = bearerRegex.ReplaceAllString(s, "${1}"+Placeholder)
	s = apiKeyRegex.ReplaceAllString(s, "${1}"+Placeholder)
	s = skKeyRegex.ReplaceAllString(s, Placeholder)
	return s
}
