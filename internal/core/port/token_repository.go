package port

import (
	"context"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
)

// TokenRepository manages verification and password reset token records.
type TokenRepository interface {
	CreateVerification(ctx context.Context, token domain.VerificationToken) error
	GetVerificationByHash(ctx context.Context, hash string) (*domain.VerificationToken, error)
	ConsumeVerification(ctx context.Context, id string) error
	CreatePasswordReset(ctx context.Context, token domain.PasswordResetToken) error
	GetPasswordResetByHash(ctx context.Context, hash string) (*domain.PasswordResetToken, error)
	ConsumePasswordReset(ctx context.Context, id string) error
	InvalidatePasswordResets(ctx context.Context, userID string) (int, error)
}
