package security

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
)

const strongPassword = "C0mplex!Passphrase#2025"

func violationCodes(t *testing.T, err error) []string {
	t.Helper()
	var violations PasswordViolations
	if !errors.As(err, &violations) {
		t.Fatalf("expected PasswordViolations in chain, got %T: %v", err, err)
	}
	return violations.Codes()
}

func TestPasswordPolicyAcceptsStrongPassword(t *testing.T) {
	policy := NewPasswordPolicy(PasswordPolicyConfig{})
	pc := domain.PasswordContext{Email: "ada.lovelace@example.com", FirstName: "Ada", LastName: "Lovelace"}

	if strength := zxcvbn.PasswordStrength(strongPassword, nil); strength.Score < DefaultPasswordPolicyConfig().MinStrength {
		t.Fatalf("test password unexpectedly weak: score=%d", strength.Score)
	}
	if err := policy.Validate(strongPassword, pc); err != nil {
		t.Fatalf("expected password to pass validation, got %v", err)
	}
}

func TestPasswordPolicyReportsFieldDetail(t *testing.T) {
	policy := NewPasswordPolicy(PasswordPolicyConfig{})

	err := policy.Validate("Short1!", domain.PasswordContext{})
	if !errors.Is(err, ErrPasswordRejected) {
		t.Fatalf("expected ErrPasswordRejected, got %v", err)
	}
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation kind, got %s", domain.KindOf(err))
	}
	var typed *domain.Error
	if !errors.As(err, &typed) {
		t.Fatalf("expected *domain.Error, got %T", err)
	}
	if !strings.Contains(typed.Fields["password"], "at least 10 characters") {
		t.Fatalf("expected length detail on password field, got %q", typed.Fields["password"])
	}
	if typed.Message != "password must be at least 10 characters long" {
		t.Fatalf("expected first violation as message, got %q", typed.Message)
	}
}

func TestPasswordPolicyCollectsEveryViolation(t *testing.T) {
	policy := NewPasswordPolicy(PasswordPolicyConfig{})

	got := violationCodes(t, policy.Validate("passwordpassword", domain.PasswordContext{}))
	want := []string{"character_classes", "too_guessable"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	long := strings.Repeat("Ab1!", 40)
	got = violationCodes(t, policy.Validate(long, domain.PasswordContext{}))
	if len(got) == 0 || got[0] != "max_length" {
		t.Fatalf("expected max_length first, got %v", got)
	}
}

func TestPasswordPolicyRejectsPersonalData(t *testing.T) {
	policy := NewPasswordPolicy(PasswordPolicyConfig{})
	pc := domain.PasswordContext{Email: "wanjiru.kamau@example.com", FirstName: "Wanjiru", LastName: "Kamau"}

	got := violationCodes(t, policy.Validate("Wanjiru!Passphrase#2025", pc))
	found := false
	for _, code := range got {
		if code == "personal_data" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected personal_data violation, got %v", got)
	}

	if err := policy.Validate("Wanjiru!Passphrase#2025", domain.PasswordContext{Email: "someone@example.com"}); err != nil {
		t.Fatalf("expected password to pass for unrelated account, got %v", err)
	}
}

func TestPersonalDataRuleIgnoresShortFragments(t *testing.T) {
	rule := PersonalDataRule(4)
	if v := rule("Al-Pacino-Street-9", domain.PasswordContext{FirstName: "Al"}); v != nil {
		t.Fatalf("expected short name fragment to be ignored, got %+v", v)
	}
	if v := rule("my-ZÜRICH-home", domain.PasswordContext{LastName: "zürich"}); v == nil {
		t.Fatal("expected case-insensitive match on last name")
	}
}

func TestPasswordPolicyCustomRules(t *testing.T) {
	policy := NewPasswordPolicyWithRules(LengthRule(4, 8))

	if err := policy.Validate("diff", domain.PasswordContext{}); err != nil {
		t.Fatalf("expected password to pass custom rules, got %v", err)
	}
	if got := violationCodes(t, policy.Validate("abc", domain.PasswordContext{})); !reflect.DeepEqual(got, []string{"min_length"}) {
		t.Fatalf("expected min_length, got %v", got)
	}
}

func TestPasswordPolicyFailsClosedWhenUnconfigured(t *testing.T) {
	var empty *PasswordPolicy
	if err := empty.Validate(strongPassword, domain.PasswordContext{}); err == nil {
		t.Fatal("expected unconfigured policy to fail closed")
	}
	if err := NewPasswordPolicyWithRules().Validate(strongPassword, domain.PasswordContext{}); err == nil {
		t.Fatal("expected empty rule set to fail closed")
	}
}
