package port

import (
	"context"
	"time"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
)

// ConsentRepository stores one row per (user, consent type).
type ConsentRepository interface {
	Upsert(ctx context.Context, record domain.ConsentRecord) error
	Get(ctx context.Context, userID string, consentType domain.ConsentType) (*domain.ConsentRecord, error)
	ListByUser(ctx context.Context, userID string) ([]domain.ConsentRecord, error)
	Withdraw(ctx context.Context, userID string, consentType domain.ConsentType, at time.Time) error
}
