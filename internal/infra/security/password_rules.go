package security

import (
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
)

// PasswordViolation is a single failed password rule.
type PasswordViolation struct {
	Code    string
	Message string
}

// PasswordViolations lists every rule a candidate password failed, in rule order.
type PasswordViolations []PasswordViolation

func (v PasswordViolations) Error() string {
	return strings.Join(v.messages(), "; ")
}

// Codes returns the violation codes in rule order.
func (v PasswordViolations) Codes() []string {
	codes := make([]string, len(v))
	for i, violation := range v {
		codes[i] = violation.Code
	}
	return codes
}

func (v PasswordViolations) messages() []string {
	out := make([]string, len(v))
	for i, violation := range v {
		out[i] = violation.Message
	}
	return out
}

// ErrPasswordRejected is the validation error returned for a password that fails the policy.
var ErrPasswordRejected = domain.NewError(domain.KindValidation, "weak_password", "password does not meet the password policy")

// DomainError reports the violations as a validation error carrying password field detail.
// The violations stay reachable through errors.As.
func (v PasswordViolations) DomainError() *domain.Error {
	if len(v) == 0 {
		return nil
	}
	err := ErrPasswordRejected.Wrap(v)
	err.Message = v[0].Message
	err.Fields = map[string]string{"password": v.Error()}
	return err
}

// PasswordRule checks one property of a candidate password. A nil result means the rule passed.
type PasswordRule func(password string, pc domain.PasswordContext) *PasswordViolation

// LengthRule bounds the password length in runes. A non-positive max disables the upper bound.
func LengthRule(min, max int) PasswordRule {
	return func(password string, _ domain.PasswordContext) *PasswordViolation {
		n := len([]rune(password))
		if n < min {
			return &PasswordViolation{Code: "min_length", Message: fmt.Sprintf("password must be at least %d characters long", min)}
		}
		if max > 0 && n > max {
			return &PasswordViolation{Code: "max_length", Message: fmt.Sprintf("password must be at most %d characters long", max)}
		}
		return nil
	}
}

// CharacterClassesRule requires characters from at least min of upper, lower, digit and symbol.
func CharacterClassesRule(min int) PasswordRule {
	return func(password string, _ domain.PasswordContext) *PasswordViolation {
		if min <= 0 {
			return nil
		}
		var upper, lower, digit, symbol bool
		for _, r := range password {
			switch {
			case unicode.IsUpper(r):
				upper = true
			case unicode.IsLower(r):
				lower = true
			case unicode.IsDigit(r):
				digit = true
			case unicode.IsSymbol(r) || unicode.IsPunct(r):
				symbol = true
			}
		}
		classes := 0
		for _, ok := range []bool{upper, lower, digit, symbol} {
			if ok {
				classes++
			}
		}
		if classes >= min {
			return nil
		}
		return &PasswordViolation{Code: "character_classes", Message: fmt.Sprintf("password must include at least %d character types", min)}
	}
}

// PersonalDataRule rejects passwords that embed the account's email local part or names.
// Fragments shorter than minFragment runes are ignored.
func PersonalDataRule(minFragment int) PasswordRule {
	return func(password string, pc domain.PasswordContext) *PasswordViolation {
		lowered := strings.ToLower(password)
		for _, fragment := range personalFragments(pc) {
			if len([]rune(fragment)) < minFragment {
				continue
			}
			if strings.Contains(lowered, fragment) {
				return &PasswordViolation{Code: "personal_data", Message: "password must not contain your email address or name"}
			}
		}
		return nil
	}
}

// StrengthRule enforces a minimum zxcvbn score, seeding the estimator with the account's personal data.
func StrengthRule(minScore int) PasswordRule {
	if minScore > 4 {
		minScore = 4
	}
	return func(password string, pc domain.PasswordContext) *PasswordViolation {
		if minScore <= 0 {
			return nil
		}
		if zxcvbn.PasswordStrength(password, personalFragments(pc)).Score >= minScore {
			return nil
		}
		return &PasswordViolation{Code: "too_guessable", Message: "password is too easy to guess; choose a longer or less predictable value"}
	}
}

func personalFragments(pc domain.PasswordContext) []string {
	out := make([]string, 0, 4)
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	if pc.Email != "" {
		add(pc.Email)
		if local, _, ok := strings.Cut(pc.Email, "@"); ok {
			add(local)
		}
	}
	add(pc.FirstName)
	add(pc.LastName)
	return out
}
