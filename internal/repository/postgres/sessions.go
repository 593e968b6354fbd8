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

var sessionColumns = []string{
	"id",
	"user_id",
	"role",
	"capabilities",
	"created_at",
	"expires_at",
	"last_seen",
	"ip_address",
	"user_agent",
	"revoked_at",
	"revoke_reason",
}

// SessionRepository is the durable audit mirror of cached sessions.
type SessionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSessionRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewSessionRepository(exec pgExecutor) *SessionRepository {
	return &SessionRepository{exec: exec, builder: newBuilder()}
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *SessionRepository) WithTx(tx pgx.Tx) *SessionRepository {
	if tx == nil {
		return r
	}
	return &SessionRepository{exec: tx, builder: r.builder}
}

// Create persists a new session row.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	capabilities := session.Capabilities
	if capabilities == nil {
		capabilities = []string{}
	}

	stmt, args, err := r.builder.Insert("compliance.sessions").
		Columns(sessionColumns...).
		Values(
			session.ID,
			session.UserID,
			session.Role,
			capabilities,
			session.CreatedAt.UTC(),
			session.ExpiresAt.UTC(),
			session.LastSeen.UTC(),
			optionalString(session.IPAddress),
			optionalString(session.UserAgent),
			optionalTime(session.RevokedAt),
			optionalString(session.RevokeReason),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert session: %w", translateError(err))
	}

	return nil
}

// Get fetches a session by its identifier.
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From("compliance.sessions").
		Where(squirrel.Eq{"id": sessionID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	var (
		session      domain.Session
		ip           sql.NullString
		userAgent    sql.NullString
		revokedAt    sql.NullTime
		revokeReason sql.NullString
	)

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&session.ID,
		&session.UserID,
		&session.Role,
		&session.Capabilities,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.LastSeen,
		&ip,
		&userAgent,
		&revokedAt,
		&revokeReason,
	); err != nil {
		return nil, translateError(err)
	}

	session.IPAddress = nullableStringPtr(ip)
	session.UserAgent = nullableStringPtr(userAgent)
	session.RevokedAt = nullableTimePtr(revokedAt)
	session.RevokeReason = nullableStringPtr(revokeReason)

	return &session, nil
}

// Revoke stamps the session as revoked. Revoking twice keeps the first stamp.
func (r *SessionRepository) Revoke(ctx context.Context, sessionID string, reason string, at time.Time) error {
	stmt, args, err := r.builder.Update("compliance.sessions").
		Set("revoked_at", at.UTC()).
		Set("revoke_reason", normalizeReason(reason, "manual_revoke")).
		Where(squirrel.Eq{"id": sessionID}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// Delete removes the mirror row. A missing row is not an error.
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	stmt, args, err := r.builder.Delete("compliance.sessions").
		Where(squirrel.Eq{"id": sessionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every active session for the supplied user.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID string, reason string, at time.Time) (int, error) {
	stmt, args, err := r.builder.Update("compliance.sessions").
		Set("revoked_at", at.UTC()).
		Set("revoke_reason", normalizeReason(reason, "global_signout")).
		Where(squirrel.Eq{"user_id": userID}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke user sessions sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions for user: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Summary aggregates a user's sessions for data exports.
func (r *SessionRepository) Summary(ctx context.Context, userID string, at time.Time) (domain.SessionSummary, error) {
	const stmt = `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE revoked_at IS NULL AND expires_at > $2),
		       MAX(last_seen)
		  FROM compliance.sessions
		 WHERE user_id = $1
	`

	var (
		summary    domain.SessionSummary
		lastActive sql.NullTime
	)
	if err := r.exec.QueryRow(ctx, stmt, userID, at.UTC()).Scan(&summary.Total, &summary.Active, &lastActive); err != nil {
		return domain.SessionSummary{}, fmt.Errorf("summarize sessions: %w", err)
	}
	summary.LastActive = nullableTimePtr(lastActive)
	return summary, nil
}

// DeleteExpired removes up to limit mirror rows that expired before the cutoff.
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	const stmt = `
		DELETE FROM compliance.sessions
		 WHERE id IN (
				SELECT id
				  FROM compliance.sessions
				 WHERE expires_at < $1
				 ORDER BY expires_at
				 LIMIT $2
		 )
	`

	tag, err := r.exec.Exec(ctx, stmt, before.UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
