package port

import (
	"context"
	"time"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
)

// SessionRepository is the durable audit mirror of cached sessions.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Revoke(ctx context.Context, sessionID string, reason string, at time.Time) error
	Delete(ctx context.Context, sessionID string) error
	RevokeAllForUser(ctx context.Context, userID string, reason string, at time.Time) (int, error)
	Summary(ctx context.Context, userID string, at time.Time) (domain.SessionSummary, error)
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
