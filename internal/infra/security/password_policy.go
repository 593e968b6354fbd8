package security

import (
	"fmt"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
)

// PasswordPolicyConfig tunes the built-in password rules.
type PasswordPolicyConfig struct {
	MinLength           int
	MaxLength           int
	MinCharacterClasses int
	MinStrength         int
	MinPersonalFragment int
}

// DefaultPasswordPolicyConfig returns the baseline rules used when nothing is configured.
func DefaultPasswordPolicyConfig() PasswordPolicyConfig {
	return PasswordPolicyConfig{
		MinLength:           10,
		MaxLength:           128,
		MinCharacterClasses: 3,
		MinStrength:         3,
		MinPersonalFragment: 4,
	}
}

// PasswordPolicy evaluates every rule and reports all violations at once.
type PasswordPolicy struct {
	rules []PasswordRule
}

// NewPasswordPolicy builds the standard rule set. Zero fields fall back to the defaults.
func NewPasswordPolicy(cfg PasswordPolicyConfig) *PasswordPolicy {
	def := DefaultPasswordPolicyConfig()
	if cfg.MinLength <= 0 {
		cfg.MinLength = def.MinLength
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = def.MaxLength
	}
	if cfg.MinCharacterClasses <= 0 {
		cfg.MinCharacterClasses = def.MinCharacterClasses
	}
	if cfg.MinStrength <= 0 {
		cfg.MinStrength = def.MinStrength
	}
	if cfg.MinPersonalFragment <= 0 {
		cfg.MinPersonalFragment = def.MinPersonalFragment
	}
	return NewPasswordPolicyWithRules(
		LengthRule(cfg.MinLength, cfg.MaxLength),
		CharacterClassesRule(cfg.MinCharacterClasses),
		PersonalDataRule(cfg.MinPersonalFragment),
		StrengthRule(cfg.MinStrength),
	)
}

// NewPasswordPolicyWithRules builds a policy from an explicit rule list.
func NewPasswordPolicyWithRules(rules ...PasswordRule) *PasswordPolicy {
	copied := make([]PasswordRule, len(rules))
	copy(copied, rules)
	return &PasswordPolicy{rules: copied}
}

// Validate returns nil or a validation *domain.Error wrapping PasswordViolations.
func (p *PasswordPolicy) Validate(password string, pc domain.PasswordContext) error {
	if p == nil || len(p.rules) == 0 {
		return fmt.Errorf("password policy not configured")
	}
	var violations PasswordViolations
	for _, rule := range p.rules {
		if v := rule(password, pc); v != nil {
			violations = append(violations, *v)
		}
	}
	if len(violations) == 0 {
		return nil
	}
	return violations.DomainError()
}

var _ port.PasswordPolicyValidator = (*PasswordPolicy)(nil)
