package errors

import "regexp"

const redacted = "[REDACTED]"

// redaction replaces every match of pattern. When keep is set, the first
// submatch (a key name or scheme) survives so the message stays readable.
type redaction struct {
	pattern *regexp.Regexp
	keep    bool
}

var redactions = []redaction{
	{regexp.MustCompile(`(?i)((?:passphrase|password|secret[_-]?key|access[_-]?key|api[_-]?key|token)\s*[=:]\s*)["']?[^\s"'&,]+`), true},
	{regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._~+/=-]+`), true},
	{regexp.MustCompile(`(?i)((?:PROOFMODE_[A-Z_]*(?:SECRET|KEY|PASSPHRASE)[A-Z_]*|AWS_SECRET_ACCESS_KEY)=)\S+`), true},
	{regexp.MustCompile(`\b(?:AKIA|ASIA)[A-Z0-9]{16}\b`), false},
	{regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY(?: BLOCK)?-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY(?: BLOCK)?-----`), false},
	{regexp.MustCompile(`(?:/home|/Users|/root)/[^\s:]+`), false},
}

// SanitizeError renders err for API clients with credentials, key material
// and home-directory paths removed. Log the original error instead.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error())
}

// SanitizeString applies the same redactions to an arbitrary string.
func SanitizeString(s string) string {
	for _, r := range redactions {
		repl := redacted
		if r.keep {
			repl = "${1}" + redacted
		}
		s = r.pattern.ReplaceAllString(s, repl)
	}
	return s
}
