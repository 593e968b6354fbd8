package domain

import "time"

// VerificationToken captures a pending email verification. Only the hash is stored.
type VerificationToken struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Usable reports whether the token can still be consumed at the supplied moment.
func (t VerificationToken) Usable(at time.Time) bool {
	return t.UsedAt == nil && at.Before(t.ExpiresAt)
}

// Consume marks the verification token as used.
// Returns true when the token transitions from unused to used.
func (t *VerificationToken) Consume(at time.Time) bool {
	if t.UsedAt != nil {
		return false
	}
	timeCopy := at
	t.UsedAt = &timeCopy
	return true
}

// PasswordResetToken represents a single-use password reset token hash.
type PasswordResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	IPAddress *string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Usable reports whether the token can still be consumed at the supplied moment.
func (t PasswordResetToken) Usable(at time.Time) bool {
	return t.UsedAt == nil && at.Before(t.ExpiresAt)
}

// Consume marks the password reset token as used.
func (t *PasswordResetToken) Consume(at time.Time) bool {
	if t.UsedAt != nil {
		return false
	}
	timeCopy := at
	t.UsedAt = &timeCopy
	return true
}

// AccessClaims is the verified content of a signed access token.
type AccessClaims struct {
	TokenID      string
	Subject      string
	SessionID    string
	Role         string
	Capabilities []string
	Issuer       string
	Audience     []string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}
