package port

import (
	"context"
	"time"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
)

// PrivacyRequestRepository persists data-subject requests.
type PrivacyRequestRepository interface {
	Create(ctx context.Context, request domain.PrivacyRequest) error
	Get(ctx context.Context, id string) (*domain.PrivacyRequest, error)
	Update(ctx context.Context, request domain.PrivacyRequest) error
	ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]domain.PrivacyRequest, error)
}

// LegalHoldRepository lists holds that block erasure.
type LegalHoldRepository interface {
	Create(ctx context.Context, hold domain.LegalHold) error
	ListActive(ctx context.Context, userID string, at time.Time) ([]domain.LegalHold, error)
}

// ResponseRepository reads stored assessment responses for exports.
type ResponseRepository interface {
	ListByUser(ctx context.Context, userID string) ([]domain.AssessmentResponse, error)
}

// ErasureSummary counts rows touched by a user erasure.
type ErasureSummary struct {
	Responses     int `json:"responses"`
	Consents      int `json:"consents"`
	Sessions      int `json:"sessions"`
	AuditDetached int `json:"audit_events_detached"`
	Tokens        int `json:"tokens"`
}

// ErasureRepository removes every record referencing a user. Callers run it inside a transaction.
type ErasureRepository interface {
	EraseUser(ctx context.Context, userID string) (ErasureSummary, error)
}
