package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
)

// TokenRepository stores hashed email verification and password reset tokens.
type TokenRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewTokenRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewTokenRepository(exec pgExecutor) *TokenRepository {
	return &TokenRepository{
		exec:    exec,
		builder: newBuilder(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *TokenRepository) WithTx(tx pgx.Tx) *TokenRepository {
	if tx == nil {
		return r
	}
	return &TokenRepository{exec: tx, builder: r.builder, now: r.now}
}

// CreateVerification inserts a new verification token record.
func (r *TokenRepository) CreateVerification(ctx context.Context, token domain.VerificationToken) error {
	stmt, args, err := r.builder.Insert("compliance.email_verification_tokens").
		Columns("id", "user_id", "token_hash", "created_at", "expires_at").
		Values(token.ID, token.UserID, token.TokenHash, token.CreatedAt.UTC(), token.ExpiresAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert verification token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert verification token: %w", translateError(err))
	}

	return nil
}

// GetVerificationByHash retrieves a verification token by its hashed value.
func (r *TokenRepository) GetVerificationByHash(ctx context.Context, hash string) (*domain.VerificationToken, error) {
	stmt, args, err := r.builder.
		Select("id", "user_id", "token_hash", "created_at", "expires_at", "used_at").
		From("compliance.email_verification_tokens").
		Where(squirrel.Eq{"token_hash": hash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select verification token sql: %w", err)
	}

	var (
		token  domain.VerificationToken
		usedAt sql.NullTime
	)

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.CreatedAt,
		&token.ExpiresAt,
		&usedAt,
	); err != nil {
		return nil, translateError(err)
	}

	token.UsedAt = nullableTimePtr(usedAt)
	return &token, nil
}

// ConsumeVerification marks an unused verification token as used. A token that was already
// consumed reports repository.ErrNotFound so two concurrent confirmations cannot both succeed.
func (r *TokenRepository) ConsumeVerification(ctx context.Context, id string) error {
	return r.consume(ctx, "compliance.email_verification_tokens", id)
}

// CreatePasswordReset inserts a password reset token row.
func (r *TokenRepository) CreatePasswordReset(ctx context.Context, token domain.PasswordResetToken) error {
	stmt, args, err := r.builder.Insert("compliance.password_reset_tokens").
		Columns("id", "user_id", "token_hash", "ip_address", "created_at", "expires_at").
		Values(
			token.ID,
			token.UserID,
			token.TokenHash,
			optionalString(token.IPAddress),
			token.CreatedAt.UTC(),
			token.ExpiresAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert password reset sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert password reset token: %w", translateError(err))
	}

	return nil
}

// GetPasswordResetByHash retrieves a password reset token by its hash.
func (r *TokenRepository) GetPasswordResetByHash(ctx context.Context, hash string) (*domain.PasswordResetToken, error) {
	stmt, args, err := r.builder.
		Select("id", "user_id", "token_hash", "ip_address", "created_at", "expires_at", "used_at").
		From("compliance.password_reset_tokens").
		Where(squirrel.Eq{"token_hash": hash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select password reset sql: %w", err)
	}

	var (
		token  domain.PasswordResetToken
		ip     sql.NullString
		usedAt sql.NullTime
	)

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&ip,
		&token.CreatedAt,
		&token.ExpiresAt,
		&usedAt,
	); err != nil {
		return nil, translateError(err)
	}

	token.IPAddress = nullableStringPtr(ip)
	token.UsedAt = nullableTimePtr(usedAt)
	return &token, nil
}

// ConsumePasswordReset marks an unused password reset token as used.
func (r *TokenRepository) ConsumePasswordReset(ctx context.Context, id string) error {
	return r.consume(ctx, "compliance.password_reset_tokens", id)
}

// InvalidatePasswordResets consumes every outstanding reset token for the user.
func (r *TokenRepository) InvalidatePasswordResets(ctx context.Context, userID string) (int, error) {
	stmt, args, err := r.builder.Update("compliance.password_reset_tokens").
		Set("used_at", r.now()).
		Where(squirrel.Eq{"user_id": userID}).
		Where("used_at IS NULL").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build invalidate password resets sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("invalidate password resets: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *TokenRepository) consume(ctx context.Context, table, id string) error {
	stmt, args, err := r.builder.Update(table).
		Set("used_at", r.now()).
		Where(squirrel.Eq{"id": id}).
		Where("used_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build consume token sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("consume token: %w", err)
	}
	return requireAffected(tag)
}

var _ port.TokenRepository = (*TokenRepository)(nil)
