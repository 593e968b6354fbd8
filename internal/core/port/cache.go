package port

import (
	"context"
	"time"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
)

// SessionCache is the authoritative TTL-bound session store.
type SessionCache interface {
	Save(ctx context.Context, session domain.Session, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Delete(ctx context.Context, sessionID string) error
	ListUserSessionIDs(ctx context.Context, userID string) ([]string, error)
	DeleteAllForUser(ctx context.Context, userID string) ([]string, error)
	PruneExpired(ctx context.Context, at time.Time) (int, error)
}

// LoginAttemptStore keeps failed-login counters keyed by identifier.
type LoginAttemptStore interface {
	// RecordFailure increments the counter atomically and stamps a lockout once maxAttempts is reached.
	RecordFailure(ctx context.Context, identifier string, maxAttempts int, window time.Duration, at time.Time) (domain.LoginAttemptRecord, error)
	// Check returns the current record, resetting an elapsed lockout in the same round-trip.
	Check(ctx context.Context, identifier string, at time.Time) (domain.LoginAttemptRecord, error)
	Reset(ctx context.Context, identifier string) error
}

// RestrictionStore caches processing-restriction flags consulted by authorization checks.
type RestrictionStore interface {
	MarkRestricted(ctx context.Context, userID string, reason string, ttl time.Duration) error
	IsRestricted(ctx context.Context, userID string) (bool, string, error)
	ClearRestriction(ctx context.Context, userID string) error
}

// RecentEventBuffer is a bounded ring of the newest audit events.
type RecentEventBuffer interface {
	Push(ctx context.Context, event domain.AuditEvent) error
	Recent(ctx context.Context, limit int) ([]domain.AuditEvent, error)
}
