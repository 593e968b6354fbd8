package domain

import "time"

// Session represents a time-bounded grant of identity and capabilities.
// The cache copy is authoritative; the relational copy is an audit mirror.
type Session struct {
	ID           string
	UserID       string
	Role         string
	Capabilities []string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastSeen     time.Time
	IPAddress    *string
	UserAgent    *string
	RevokedAt    *time.Time
	RevokeReason *string
}

// IsActive reports whether the session is still valid (not revoked and not expired at the supplied moment).
func (s Session) IsActive(at time.Time) bool {
	if s.RevokedAt != nil {
		return false
	}
	return s.ExpiresAt.After(at)
}

// HasCapability reports whether the session grants the named capability.
func (s Session) HasCapability(name string) bool {
	for _, c := range s.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// Revoke marks the session as revoked. Returns true when the session changed state.
func (s *Session) Revoke(at time.Time, reason string) bool {
	if s.RevokedAt != nil {
		return false
	}
	s.RevokedAt = &at
	s.RevokeReason = &reason
	return true
}

// SessionMetadata carries optional client details captured at login.
type SessionMetadata struct {
	IPAddress string
	UserAgent string
}

// SessionSummary is the per-user aggregate used in data exports.
type SessionSummary struct {
	Total      int        `json:"total"`
	Active     int        `json:"active"`
	LastActive *time.Time `json:"last_active,omitempty"`
}
