package verification

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Token is the session token handed to the SDK. It is a capability
// credential: String and fmt verbs never print it.
type Token struct {
	raw string
}

// ParseToken rejects empty and whitespace-only tokens with ErrInvalidArgument.
// The token is otherwise passed through untouched.
func ParseToken(raw string) (Token, error) {
	if strings.TrimSpace(raw) == "" {
		return Token{}, ErrInvalidArgument
	}
	return Token{raw: raw}, nil
}

func (t Token) String() string { return "[redacted]" }

// GoString keeps %#v from leaking the raw value.
func (t Token) GoString() string { return "verification.Token{[redacted]}" }

func (t Token) Len() int { return len(t.raw) }

// Fingerprint returns a truncated SHA-256 hex digest, stable per token and
// safe to log.
func (t Token) Fingerprint() string {
	if t.raw == "" {
		return ""
	}
	h := sha256.Sum256([]byte(t.raw))
	return fmt.Sprintf("%x", h[:6])
}

// Reveal returns the raw token. Only the SDK call site should use it.
func (t Token) Reveal() string { return t.raw }
