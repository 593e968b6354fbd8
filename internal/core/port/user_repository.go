package port

import (
	"context"
	"time"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
)

// UserRepository exposes persistence behavior for users.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateStatus(ctx context.Context, id string, status domain.UserStatus) error
	SetLocked(ctx context.Context, id string, locked bool) error
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id string, passwordHash string, passwordAlgo string, changedAt time.Time) error
	UpdateProfile(ctx context.Context, id string, fields map[string]*string) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
	AddPasswordHistory(ctx context.Context, entry domain.UserPasswordHistory) error
	ListPasswordHistory(ctx context.Context, userID string, limit int) ([]domain.UserPasswordHistory, error)
}
