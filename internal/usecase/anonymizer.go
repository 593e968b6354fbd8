package usecase

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/logger"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/security"
)

// AnonymizationRule selects how one field is transformed for analytics.
type AnonymizationRule string

const (
	RuleKeep       AnonymizationRule = "keep"
	RuleHash       AnonymizationRule = "hash"
	RuleMask       AnonymizationRule = "mask"
	RuleRemove     AnonymizationRule = "remove"
	RuleGeneralize AnonymizationRule = "generalize"
)

const hashedValueLength = 16

// ErrUndeclaredField is returned for a field without a rule. Undeclared fields are never passed through.
var ErrUndeclaredField = domain.ValidationError("undeclared_field", "field has no anonymization rule", nil)

// DefaultAnalyticsRules covers the fields of exported assessment responses and profiles.
var DefaultAnalyticsRules = map[string]AnonymizationRule{
	"id":              RuleHash,
	"user_id":         RuleHash,
	"session_id":      RuleHash,
	"email":           RuleMask,
	"ip_address":      RuleMask,
	"phone":           RuleRemove,
	"first_name":      RuleRemove,
	"last_name":       RuleRemove,
	"user_agent":      RuleRemove,
	"company":         RuleRemove,
	"age":             RuleGeneralize,
	"postal_code":     RuleGeneralize,
	"created_at":      RuleGeneralize,
	"submitted_at":    RuleGeneralize,
	"score":           RuleKeep,
	"responses":       RuleKeep,
	"assessment_type": RuleKeep,
	"industry":        RuleKeep,
	"country":         RuleKeep,
	"jurisdiction":    RuleKeep,
}

// Anonymizer strips or coarsens identifying fields before records reach analytics.
type Anonymizer struct {
	rules map[string]AnonymizationRule
	salt  string
}

// NewAnonymizer builds an Anonymizer. A nil rule set selects DefaultAnalyticsRules. The salt keys
// hashed identifiers so they cannot be recomputed from known values.
func NewAnonymizer(salt string, rules map[string]AnonymizationRule) (*Anonymizer, error) {
	if rules == nil {
		rules = DefaultAnalyticsRules
	}
	copied := make(map[string]AnonymizationRule, len(rules))
	for field, rule := range rules {
		switch rule {
		case RuleKeep, RuleHash, RuleMask, RuleRemove, RuleGeneralize:
		default:
			return nil, fmt.Errorf("anonymization rule for %s: unknown rule %q", field, rule)
		}
		copied[strings.ToLower(field)] = rule
	}
	return &Anonymizer{rules: copied, salt: salt}, nil
}

// Rules returns a copy of the active rule set.
func (a *Anonymizer) Rules() map[string]AnonymizationRule {
	out := make(map[string]AnonymizationRule, len(a.rules))
	for k, v := range a.rules {
		out[k] = v
	}
	return out
}

// AnonymizeDataForAnalytics applies the rule of every field to every record. The input is left
// untouched. The first undeclared field aborts the whole batch.
func (a *Anonymizer) AnonymizeDataForAnalytics(records []map[string]any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(records))
	for i, record := range records {
		anonymized := make(map[string]any, len(record))
		for field, value := range record {
			rule, ok := a.rules[strings.ToLower(field)]
			if !ok {
				return nil, ErrUndeclaredField.Wrap(fmt.Errorf("record %d: field %q", i, field))
			}
			if rule == RuleRemove {
				continue
			}
			anonymized[field] = a.apply(field, rule, value)
		}
		out = append(out, anonymized)
	}
	return out, nil
}

func (a *Anonymizer) apply(field string, rule AnonymizationRule, value any) any {
	if value == nil {
		return nil
	}
	switch rule {
	case RuleHash:
		sum := security.HashToken(a.salt + ":" + fmt.Sprint(value))
		return sum[:hashedValueLength]
	case RuleMask:
		return maskValue(field, fmt.Sprint(value))
	case RuleGeneralize:
		return generalize(field, value)
	default:
		return value
	}
}

func maskValue(field, value string) string {
	name := strings.ToLower(field)
	switch {
	case strings.Contains(name, "email"):
		return logger.MaskEmail(value)
	case strings.Contains(name, "ip"):
		return logger.MaskIP(value)
	case strings.Contains(name, "phone"):
		return logger.MaskPhone(value)
	default:
		return logger.MaskString(value)
	}
}

// generalize coarsens timestamps to the month, ages to decade bands, other numbers to tens and
// remaining strings to a three character prefix.
func generalize(field string, value any) any {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format("2006-01")
	case *time.Time:
		if v == nil {
			return nil
		}
		return v.UTC().Format("2006-01")
	case string:
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return ts.UTC().Format("2006-01")
		}
		if isAgeField(field) {
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				return generalizeNumber(field, n)
			}
		}
		runes := []rune(v)
		if len(runes) <= 3 {
			return v
		}
		return string(runes[:3]) + "*"
	case int:
		return generalizeNumber(field, float64(v))
	case int64:
		return generalizeNumber(field, float64(v))
	case float64:
		return generalizeNumber(field, v)
	default:
		return nil
	}
}

func generalizeNumber(field string, n float64) any {
	lower := int(math.Floor(n/10) * 10)
	if isAgeField(field) {
		return fmt.Sprintf("%d-%d", lower, lower+9)
	}
	return lower
}

func isAgeField(field string) bool {
	name := strings.ToLower(field)
	return name == "age" || strings.HasSuffix(name, "_age")
}
