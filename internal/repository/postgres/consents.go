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

var consentColumns = []string{
	"user_id",
	"consent_type",
	"given",
	"consent_date",
	"policy_version",
	"withdrawn_at",
	"source",
	"ip_address",
}

// ConsentRepository keeps one row per (user, consent type).
type ConsentRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewConsentRepository(exec pgExecutor) *ConsentRepository {
	return &ConsentRepository{exec: exec, builder: newBuilder()}
}

func (r *ConsentRepository) WithTx(tx pgx.Tx) *ConsentRepository {
	if tx == nil {
		return r
	}
	return &ConsentRepository{exec: tx, builder: r.builder}
}

// Upsert writes the record, replacing any previous decision and clearing a withdrawal stamp.
func (r *ConsentRepository) Upsert(ctx context.Context, record domain.ConsentRecord) error {
	stmt, args, err := r.builder.Insert("compliance.consent_records").
		Columns(consentColumns...).
		Values(
			record.UserID,
			record.Type,
			record.Given,
			record.ConsentDate.UTC(),
			record.PolicyVersion,
			optionalTime(record.WithdrawnAt),
			record.Source,
			optionalString(record.IPAddress),
		).
		Suffix(`ON CONFLICT (user_id, consent_type) DO UPDATE
			SET given = EXCLUDED.given,
			    consent_date = EXCLUDED.consent_date,
			    policy_version = EXCLUDED.policy_version,
			    withdrawn_at = EXCLUDED.withdrawn_at,
			    source = EXCLUDED.source,
			    ip_address = EXCLUDED.ip_address`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert consent sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert consent: %w", translateError(err))
	}
	return nil
}

func (r *ConsentRepository) Get(ctx context.Context, userID string, consentType domain.ConsentType) (*domain.ConsentRecord, error) {
	stmt, args, err := r.builder.
		Select(consentColumns...).
		From("compliance.consent_records").
		Where(squirrel.Eq{"user_id": userID, "consent_type": consentType}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select consent sql: %w", err)
	}

	record, err := scanConsent(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, translateError(err)
	}
	return record, nil
}

func (r *ConsentRepository) ListByUser(ctx context.Context, userID string) ([]domain.ConsentRecord, error) {
	stmt, args, err := r.builder.
		Select(consentColumns...).
		From("compliance.consent_records").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("consent_type").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list consents sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query consents: %w", err)
	}
	defer rows.Close()

	records := make([]domain.ConsentRecord, 0)
	for rows.Next() {
		record, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consents: %w", err)
	}
	return records, nil
}

// Withdraw flips the grant off and stamps the withdrawal. The row is kept as evidence.
func (r *ConsentRepository) Withdraw(ctx context.Context, userID string, consentType domain.ConsentType, at time.Time) error {
	stmt, args, err := r.builder.Update("compliance.consent_records").
		Set("given", false).
		Set("withdrawn_at", at.UTC()).
		Where(squirrel.Eq{"user_id": userID, "consent_type": consentType}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build withdraw consent sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("withdraw consent: %w", err)
	}
	return requireAffected(tag)
}

func scanConsent(row pgx.Row) (*domain.ConsentRecord, error) {
	var (
		record      domain.ConsentRecord
		withdrawnAt sql.NullTime
		ip          sql.NullString
	)

	if err := row.Scan(
		&record.UserID,
		&record.Type,
		&record.Given,
		&record.ConsentDate,
		&record.PolicyVersion,
		&withdrawnAt,
		&record.Source,
		&ip,
	); err != nil {
		return nil, err
	}

	record.WithdrawnAt = nullableTimePtr(withdrawnAt)
	record.IPAddress = nullableStringPtr(ip)
	return &record, nil
}

var _ port.ConsentRepository = (*ConsentRepository)(nil)
