package services

import "regexp"

// secretPattern matches key/value pairs that look like credentials. Anything
// matching is replaced before text crosses the process boundary (summarizer
// prompts) or gets persisted into a wisdom card.
var secretPattern = regexp.MustCompile(`(?i)(api[_-]?key|secret|password|passwd|token|bearer)\s*[:=]\s*\S+`)

// RedactSecrets replaces secret-like key/value pairs with a placeholder.
func RedactSecrets(text string) string {
	return secretPattern.ReplaceAllString(text, "<redacted>")
}

// redactAndTruncate redacts secrets, then cuts the text at limit bytes with
// an explicit truncation marker.
func redactAndTruncate(text string, limit int) string {
	redacted := RedactSecrets(text)
	if len(redacted) <= limit {
		return redacted
	}
	return redacted[:limit] + "\n…(truncated)"
}
