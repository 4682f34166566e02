package policy

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)

	// bearerPattern covers "Bearer <token>"/"Authorization: <token>" headers
	// echoed into a tool or collaborator error message.
	bearerPattern = regexp.MustCompile(`(?i)(bearer|authorization:?)\s+[a-zA-Z0-9._\-]{8,}`)
	// apiKeyPattern covers provider key prefixes (OpenAI/Anthropic-style
	// sk-…, ElevenLabs-style xi-…) and generic key=value / key: value pairs
	// whose key name looks credential-shaped.
	apiKeyPattern   = regexp.MustCompile(`\b(?:sk|xi|pk)-[a-zA-Z0-9]{10,}\b`)
	keyValuePattern = regexp.MustCompile(`(?i)\b(api[_-]?key|access[_-]?token|secret|password|client[_-]?secret)\s*[:=]\s*\S+`)
)

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Run card redaction before phone to avoid card numbers being classified as phone.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// RedactCredentials masks API keys, bearer tokens, and key=value-shaped
// secrets. Used on tool result messages before they reach the LLM or the
// client, per spec.md §4.6's "message field is always redacted for
// credentials" contract.
func RedactCredentials(input string) (redacted string, changed bool) {
	out := input

	next := bearerPattern.ReplaceAllString(out, "[REDACTED_TOKEN]")
	changed = changed || next != out
	out = next

	next = apiKeyPattern.ReplaceAllString(out, "[REDACTED_KEY]")
	changed = changed || next != out
	out = next

	next = keyValuePattern.ReplaceAllString(out, "[REDACTED_SECRET]")
	changed = changed || next != out
	out = next

	return out, changed
}

// RedactAll applies both PII and credential redaction.
func RedactAll(input string) (redacted string, changed bool) {
	out, c1 := RedactPII(input)
	out, c2 := RedactCredentials(out)
	return out, c1 || c2
}
