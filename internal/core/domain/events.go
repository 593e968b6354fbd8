package domain

import "time"

// PasswordChangedEvent represents the payload for compliance.user.password.changed messages.
type PasswordChangedEvent struct {
	EventID         string
	UserID          string
	ChangedAt       time.Time
	ChangedBy       string
	SessionsRevoked int
	Metadata        map[string]any
}

// SessionRevokedEvent represents the payload for compliance.session.revoked messages.
type SessionRevokedEvent struct {
	EventID   string
	SessionID string
	UserID    string
	RevokedAt time.Time
	Reason    string
	IPAddress *string
}

// PrivacyRequestResolvedEvent represents the payload for compliance.privacy.resolved messages.
type PrivacyRequestResolvedEvent struct {
	EventID    string
	RequestID  string
	UserID     string
	Type       PrivacyRequestType
	Status     PrivacyRequestStatus
	ResolvedAt time.Time
	Reason     *string
}
