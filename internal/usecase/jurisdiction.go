package usecase

import (
	"strings"
	"time"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
)

// DefaultJurisdiction is used for unknown or empty jurisdiction tags.
const DefaultJurisdiction = "DEFAULT"

const day = 24 * time.Hour

var jurisdictions = map[string]domain.JurisdictionProfile{
	"EU": {
		Code:               "EU",
		Name:               "European Union (GDPR)",
		ConsentRequired:    true,
		ExplicitOptIn:      true,
		MaxRetentionDays:   1095,
		ErasureRight:       true,
		PortabilityRight:   true,
		ResponseDeadline:   30 * day,
		BreachNotification: 72 * time.Hour,
	},
	"UK": {
		Code:               "UK",
		Name:               "United Kingdom (UK GDPR)",
		ConsentRequired:    true,
		ExplicitOptIn:      true,
		MaxRetentionDays:   1095,
		ErasureRight:       true,
		PortabilityRight:   true,
		ResponseDeadline:   30 * day,
		BreachNotification: 72 * time.Hour,
	},
	"US-CA": {
		Code:               "US-CA",
		Name:               "California (CCPA/CPRA)",
		ConsentRequired:    false,
		ExplicitOptIn:      false,
		MaxRetentionDays:   1825,
		ErasureRight:       true,
		PortabilityRight:   true,
		ResponseDeadline:   45 * day,
		BreachNotification: 72 * time.Hour,
	},
	"BR": {
		Code:               "BR",
		Name:               "Brazil (LGPD)",
		ConsentRequired:    true,
		ExplicitOptIn:      true,
		MaxRetentionDays:   1825,
		ErasureRight:       true,
		PortabilityRight:   true,
		ResponseDeadline:   15 * day,
		BreachNotification: 48 * time.Hour,
	},
	"KE": {
		Code:               "KE",
		Name:               "Kenya (Data Protection Act 2019)",
		ConsentRequired:    true,
		ExplicitOptIn:      true,
		MaxRetentionDays:   1825,
		ErasureRight:       true,
		PortabilityRight:   true,
		ResponseDeadline:   30 * day,
		BreachNotification: 72 * time.Hour,
	},
	DefaultJurisdiction: {
		Code:               DefaultJurisdiction,
		Name:               "Baseline",
		ConsentRequired:    true,
		ExplicitOptIn:      true,
		MaxRetentionDays:   1095,
		ErasureRight:       true,
		PortabilityRight:   true,
		ResponseDeadline:   30 * day,
		BreachNotification: 72 * time.Hour,
	},
}

// RegionalCompliance returns the profile for a jurisdiction tag, falling back to the baseline profile.
func RegionalCompliance(jurisdiction string) domain.JurisdictionProfile {
	if profile, ok := jurisdictions[strings.ToUpper(strings.TrimSpace(jurisdiction))]; ok {
		return profile
	}
	return jurisdictions[DefaultJurisdiction]
}

// KnownJurisdiction reports whether the tag has its own profile.
func KnownJurisdiction(jurisdiction string) bool {
	_, ok := jurisdictions[strings.ToUpper(strings.TrimSpace(jurisdiction))]
	return ok
}
