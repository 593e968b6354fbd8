package domain

import "time"

// UserStatus enumerates possible account states.
type UserStatus string

const (
	UserStatusPending  UserStatus = "pending"
	UserStatusActive   UserStatus = "active"
	UserStatusLocked   UserStatus = "locked"
	UserStatusDisabled UserStatus = "disabled"
)

// Built-in roles. Capabilities are resolved from the role at session creation.
const (
	RoleUser     = "user"
	RoleAnalyst  = "analyst"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// Capabilities understood by RequirePermission.
const (
	CapabilityProfileRead       = "profile:read"
	CapabilityProfileWrite      = "profile:write"
	CapabilityPrivacySubmit     = "privacy:submit"
	CapabilityAnalyticsRead     = "analytics:read"
	CapabilityAuditRead         = "audit:read"
	CapabilityRetentionManage   = "retention:manage"
	CapabilityComplianceReports = "compliance:reports"
	CapabilityAlertsManage      = "alerts:manage"
)

var roleCapabilities = map[string][]string{
	RoleUser: {
		CapabilityProfileRead,
		CapabilityProfileWrite,
		CapabilityPrivacySubmit,
	},
	RoleAnalyst: {
		CapabilityProfileRead,
		CapabilityPrivacySubmit,
		CapabilityAnalyticsRead,
	},
	RoleOperator: {
		CapabilityProfileRead,
		CapabilityPrivacySubmit,
		CapabilityAuditRead,
		CapabilityRetentionManage,
		CapabilityComplianceReports,
		CapabilityAlertsManage,
	},
}

// CapabilitiesForRole returns the capability set granted by role. Admins receive every capability.
func CapabilitiesForRole(role string) []string {
	if role == RoleAdmin {
		all := make(map[string]struct{})
		for _, caps := range roleCapabilities {
			for _, c := range caps {
				all[c] = struct{}{}
			}
		}
		out := make([]string, 0, len(all))
		for c := range all {
			out = append(out, c)
		}
		return out
	}
	caps := roleCapabilities[role]
	out := make([]string, len(caps))
	copy(out, caps)
	return out
}

// User mirrors the persisted credential and profile row. Profile fields are identifying
// and are the ones rewritten by anonymization and removed by erasure.
type User struct {
	ID                string
	Email             string
	PasswordHash      string
	PasswordAlgo      string
	EmailVerified     bool
	Locked            bool
	Role              string
	Status            UserStatus
	FirstName         *string
	LastName          *string
	Company           *string
	Phone             *string
	Jurisdiction      string
	RegisteredAt      time.Time
	LastLogin         *time.Time
	PasswordChangedAt time.Time
}

// CanAuthenticate reports whether the account is allowed to open sessions.
func (u User) CanAuthenticate() bool {
	if u.Locked {
		return false
	}
	return u.Status == UserStatusActive || u.Status == UserStatusPending
}

// Sanitized returns a copy safe to hand to callers.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}

// PasswordContext provides user-specific inputs for password strength checks.
type PasswordContext struct {
	Email     string
	FirstName string
	LastName  string
}

// UserPasswordHistory tracks historical password hashes for reuse prevention.
type UserPasswordHistory struct {
	ID           string
	UserID       string
	PasswordHash string
	SetAt        time.Time
}

// LoginAttemptRecord is the cache-resident failure counter for an identifier.
type LoginAttemptRecord struct {
	Identifier       string
	Attempts         int
	LastAttemptAt    time.Time
	LockoutExpiresAt *time.Time
}

// LoginAttemptStatus is the outcome of a lockout check.
type LoginAttemptStatus struct {
	Allowed           bool
	RemainingAttempts int
	LockoutExpiresAt  *time.Time
}
