package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
)

// Profile columns UpdateProfile is allowed to touch.
var profileColumns = map[string]struct{}{
	"first_name": {},
	"last_name":  {},
	"company":    {},
	"phone":      {},
}

var userColumns = []string{
	"id",
	"email",
	"password_hash",
	"password_algo",
	"email_verified",
	"locked",
	"role",
	"status",
	"first_name",
	"last_name",
	"company",
	"phone",
	"jurisdiction",
	"registered_at",
	"last_login",
	"password_changed_at",
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{exec: exec, builder: newBuilder()}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{exec: tx, builder: r.builder}
}

// Create inserts a new user row. A duplicate email surfaces as repository.ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Insert("compliance.users").
		Columns(userColumns...).
		Values(
			user.ID,
			user.Email,
			user.PasswordHash,
			user.PasswordAlgo,
			user.EmailVerified,
			user.Locked,
			user.Role,
			user.Status,
			optionalString(user.FirstName),
			optionalString(user.LastName),
			optionalString(user.Company),
			optionalString(user.Phone),
			user.Jurisdiction,
			user.RegisteredAt.UTC(),
			optionalTime(user.LastLogin),
			user.PasswordChangedAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert user: %w", translateError(err))
	}

	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByEmail retrieves a user by normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (r *UserRepository) getOne(ctx context.Context, where squirrel.Eq) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("compliance.users").
		Where(where).
		Where("deleted_at IS NULL").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, translateError(err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user      domain.User
		firstName sql.NullString
		lastName  sql.NullString
		company   sql.NullString
		phone     sql.NullString
		lastLogin sql.NullTime
	)

	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.PasswordAlgo,
		&user.EmailVerified,
		&user.Locked,
		&user.Role,
		&user.Status,
		&firstName,
		&lastName,
		&company,
		&phone,
		&user.Jurisdiction,
		&user.RegisteredAt,
		&lastLogin,
		&user.PasswordChangedAt,
	); err != nil {
		return nil, err
	}

	user.FirstName = nullableStringPtr(firstName)
	user.LastName = nullableStringPtr(lastName)
	user.Company = nullableStringPtr(company)
	user.Phone = nullableStringPtr(phone)
	user.LastLogin = nullableTimePtr(lastLogin)
	user.RegisteredAt = user.RegisteredAt.UTC()
	user.PasswordChangedAt = user.PasswordChangedAt.UTC()

	return &user, nil
}

func (r *UserRepository) update(ctx context.Context, id string, set map[string]any, label string) error {
	stmt, args, err := r.builder.Update("compliance.users").
		SetMap(set).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build %s sql: %w", label, err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", label, translateError(err))
	}
	return requireAffected(tag)
}

// UpdateStatus sets the account status.
func (r *UserRepository) UpdateStatus(ctx context.Context, id string, status domain.UserStatus) error {
	return r.update(ctx, id, map[string]any{"status": status}, "update user status")
}

// SetLocked toggles the lock flag. Locking moves the account to the locked status.
func (r *UserRepository) SetLocked(ctx context.Context, id string, locked bool) error {
	status := domain.UserStatusActive
	if locked {
		status = domain.UserStatusLocked
	}
	return r.update(ctx, id, map[string]any{"locked": locked, "status": status}, "set user locked")
}

func (r *UserRepository) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, map[string]any{
		"email_verified":    true,
		"email_verified_at": at.UTC(),
		"status":            squirrel.Expr("CASE WHEN status = ? THEN ? ELSE status END", domain.UserStatusPending, domain.UserStatusActive),
	}, "mark email verified")
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, passwordAlgo string, changedAt time.Time) error {
	return r.update(ctx, id, map[string]any{
		"password_hash":       passwordHash,
		"password_algo":       passwordAlgo,
		"password_changed_at": changedAt.UTC(),
	}, "update user password")
}

// UpdateProfile writes whitelisted profile columns. A nil value clears the column.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, fields map[string]*string) error {
	if len(fields) == 0 {
		return nil
	}

	set := make(map[string]any, len(fields))
	for column, value := range fields {
		if _, ok := profileColumns[column]; !ok {
			return fmt.Errorf("profile field %q is not writable", column)
		}
		set[column] = optionalString(value)
	}

	return r.update(ctx, id, set, "update user profile")
}

func (r *UserRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, map[string]any{"last_login": at.UTC()}, "record user login")
}

// ListPasswordHistory retrieves the most recent password hashes for a user.
func (r *UserRepository) ListPasswordHistory(ctx context.Context, userID string, limit int) ([]domain.UserPasswordHistory, error) {
	trimmedID := strings.TrimSpace(userID)
	if trimmedID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	builder := r.builder.Select("id", "user_id", "password_hash", "set_at").
		From("compliance.user_password_history").
		Where(squirrel.Eq{"user_id": trimmedID}).
		OrderBy("set_at DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select password history sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query password history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.UserPasswordHistory, 0)
	for rows.Next() {
		var record domain.UserPasswordHistory
		if err := rows.Scan(&record.ID, &record.UserID, &record.PasswordHash, &record.SetAt); err != nil {
			return nil, fmt.Errorf("scan password history: %w", err)
		}
		history = append(history, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate password history: %w", err)
	}

	return history, nil
}

// AddPasswordHistory inserts a password hash into the history table.
func (r *UserRepository) AddPasswordHistory(ctx context.Context, entry domain.UserPasswordHistory) error {
	userID := strings.TrimSpace(entry.UserID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(entry.PasswordHash) == "" {
		return fmt.Errorf("password hash is required")
	}

	setAt := entry.SetAt
	if setAt.IsZero() {
		setAt = time.Now().UTC()
	}

	stmt, args, err := r.builder.Insert("compliance.user_password_history").
		Columns("id", "user_id", "password_hash", "set_at").
		Values(entry.ID, userID, entry.PasswordHash, setAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert password history sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert password history: %w", err)
	}

	return nil
}

var _ port.UserRepository = (*UserRepository)(nil)
