package security

import "regexp"

// SecretScanner is a deterministic, rule-based detector for the kinds of
// credential patterns that commonly leak into write payloads: API keys,
// tokens, private key blocks. It deliberately has no high-entropy heuristic
// (Base64/Hex entropy detectors throw too many false positives on ordinary
// prose) — every pattern here pins a known vendor token shape.
type SecretScanner struct {
	patterns []*regexp.Regexp
}

// NewSecretScanner builds the default pattern set.
func NewSecretScanner() *SecretScanner {
	return &SecretScanner{patterns: secretPatterns}
}

// Scan reports whether payload contains anything matching a known secret
// shape.
func (s *SecretScanner) Scan(payload string) bool {
	if payload == "" {
		return false
	}
	for _, re := range s.patterns {
		if re.MatchString(payload) {
			return true
		}
	}
	return false
}

// secretPatterns mirrors the pattern-only detector set: AWS keys, GitHub and
// GitLab tokens, Slack tokens, Stripe keys, Twilio keys, SendGrid keys, JWTs,
// PEM private key blocks, and embedded basic-auth credentials in a URL.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),                    // AWS access key ID
	regexp.MustCompile(`(?i)aws_secret_access_key\s*[:=]\s*\S+`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36,}`),          // GitHub token
	regexp.MustCompile(`glpat-[A-Za-z0-9_-]{20,}`),            // GitLab token
	regexp.MustCompile(`xox[baprs]-[A-Za-z0-9-]{10,}`),        // Slack token
	regexp.MustCompile(`sk_(live|test)_[A-Za-z0-9]{16,}`),     // Stripe secret key
	regexp.MustCompile(`SG\.[A-Za-z0-9_-]{16,}\.[A-Za-z0-9_-]{16,}`), // SendGrid key
	regexp.MustCompile(`AC[a-f0-9]{32}`),                      // Twilio account SID
	regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH |DSA )?PRIVATE KEY-----`),
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`), // JWT
	regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://[^\s:/@]+:[^\s:/@]+@`),                   // basic auth in URL
}
