package security

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	dangerousPattern  = regexp.MustCompile("[<>\"'`;&|$\\\\]")
	canonicalEmail    = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)
	maxEmailLength    = 254
	maxFreeTextLength = 1000
)

// ErrInvalidEmail is returned when an identifier is not a canonical email address.
var ErrInvalidEmail = domain.ValidationError("invalid_email", "email address is invalid", map[string]string{"email": "must be a valid email address"})

// SanitizeInput strips markup, quotes and shell metacharacters and trims the result.
func SanitizeInput(value string) string {
	cleaned := tagPattern.ReplaceAllString(value, "")
	cleaned = dangerousPattern.ReplaceAllString(cleaned, "")
	cleaned = strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' {
			return -1
		}
		return r
	}, cleaned)
	cleaned = strings.TrimSpace(cleaned)
	if len(cleaned) > maxFreeTextLength {
		cleaned = cleaned[:maxFreeTextLength]
	}
	return cleaned
}

// NormalizeEmail lowercases and validates an address before it is used as an identifier.
func NormalizeEmail(value string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" || len(trimmed) > maxEmailLength {
		return "", ErrInvalidEmail
	}

	parsed, err := mail.ParseAddress(trimmed)
	if err != nil || parsed.Address != trimmed || parsed.Name != "" {
		return "", ErrInvalidEmail
	}
	if !canonicalEmail.MatchString(trimmed) {
		return "", ErrInvalidEmail
	}
	return trimmed, nil
}
