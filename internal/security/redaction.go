package security

import (
	"regexp"
	"strings"
)

const marker = "[REDACTED]"

var (
	secretKeyExpr     = `(?:password|passwd|pwd|passcode|pin|secret|api[_-]?key|[a-z0-9._-]*token[a-z0-9._-]*)`
	kvSecretPattern   = regexp.MustCompile(`(?i)\b(` + secretKeyExpr + `)\s*[:=]\s*(?:"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'|[^\s"',;]+)`)
	jsonSecretPattern = regexp.MustCompile(`(?i)("` + secretKeyExpr + `"\s*:\s*)"(?:[^"\\]|\\.)*"`)
	bearerPattern     = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]+`)
	pemBlockPattern   = regexp.MustCompile(`(?s)-----BEGIN [^-]+ PRIVATE KEY-----.*?-----END [^-]+ PRIVATE KEY-----`)
	credentialURL     = regexp.MustCompile(`(?i)\b([a-z][a-z0-9+.-]*://)[^\s/@:]+:[^\s/@]+@`)
)

// RedactNote masks credentials that trainees paste into free-text notes.
// Clinical content passes through unchanged.
func RedactNote(input string) (string, bool) {
	if input == "" {
		return "", false
	}
	out := pemBlockPattern.ReplaceAllString(input, "[REDACTED_PRIVATE_KEY]")
	out = jsonSecretPattern.ReplaceAllString(out, `${1}"`+marker+`"`)
	out = kvSecretPattern.ReplaceAllStringFunc(out, func(match string) string {
		idx := strings.IndexAny(match, ":=")
		if idx < 0 {
			return marker
		}
		return match[:idx+1] + " " + marker
	})
	out = bearerPattern.ReplaceAllString(out, "Bearer "+marker)
	out = credentialURL.ReplaceAllString(out, "${1}"+marker+"@")
	return out, out != input
}
