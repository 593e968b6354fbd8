package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
)

// RetentionPolicyRepository stores policy configuration. There is deliberately no delete.
type RetentionPolicyRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewRetentionPolicyRepository(exec pgExecutor) *RetentionPolicyRepository {
	return &RetentionPolicyRepository{exec: exec, builder: newBuilder()}
}

func (r *RetentionPolicyRepository) Upsert(ctx context.Context, policy domain.RetentionPolicy) error {
	exceptions := policy.Exceptions
	if exceptions == nil {
		exceptions = []string{}
	}
	updatedAt := policy.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	stmt, args, err := r.builder.Insert("compliance.retention_policies").
		Columns("data_type", "retention_days", "anonymization_delay_days", "deletion_method", "legal_basis", "exceptions", "updated_at").
		Values(
			policy.DataType,
			policy.RetentionDays,
			policy.AnonymizationDelayDays,
			policy.DeletionMethod,
			policy.LegalBasis,
			exceptions,
			updatedAt.UTC(),
		).
		Suffix(`ON CONFLICT (data_type) DO UPDATE
			SET retention_days = EXCLUDED.retention_days,
			    anonymization_delay_days = EXCLUDED.anonymization_delay_days,
			    deletion_method = EXCLUDED.deletion_method,
			    legal_basis = EXCLUDED.legal_basis,
			    exceptions = EXCLUDED.exceptions,
			    updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert retention policy sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert retention policy: %w", err)
	}
	return nil
}

func (r *RetentionPolicyRepository) List(ctx context.Context) ([]domain.RetentionPolicy, error) {
	stmt, args, err := r.selectPolicies().OrderBy("data_type").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list retention policies sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query retention policies: %w", err)
	}
	defer rows.Close()

	policies := make([]domain.RetentionPolicy, 0)
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan retention policy: %w", err)
		}
		policies = append(policies, *policy)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate retention policies: %w", err)
	}
	return policies, nil
}

func (r *RetentionPolicyRepository) Get(ctx context.Context, dataType string) (*domain.RetentionPolicy, error) {
	stmt, args, err := r.selectPolicies().Where(squirrel.Eq{"data_type": dataType}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select retention policy sql: %w", err)
	}

	policy, err := scanPolicy(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, translateError(err)
	}
	return policy, nil
}

func (r *RetentionPolicyRepository) selectPolicies() squirrel.SelectBuilder {
	return r.builder.
		Select("data_type", "retention_days", "anonymization_delay_days", "deletion_method", "legal_basis", "exceptions", "updated_at").
		From("compliance.retention_policies")
}

func scanPolicy(row pgx.Row) (*domain.RetentionPolicy, error) {
	var policy domain.RetentionPolicy
	if err := row.Scan(
		&policy.DataType,
		&policy.RetentionDays,
		&policy.AnonymizationDelayDays,
		&policy.DeletionMethod,
		&policy.LegalBasis,
		&policy.Exceptions,
		&policy.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &policy, nil
}

// RetentionJobRepository records job history.
type RetentionJobRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewRetentionJobRepository(exec pgExecutor) *RetentionJobRepository {
	return &RetentionJobRepository{exec: exec, builder: newBuilder()}
}

func (r *RetentionJobRepository) Create(ctx context.Context, job domain.RetentionJob) error {
	errs, err := marshalErrors(job.Errors)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Insert("compliance.retention_jobs").
		Columns("id", "data_type", "trigger", "status", "started_at", "completed_at",
			"records_processed", "records_deleted", "records_anonymized", "errors").
		Values(
			job.ID,
			job.DataType,
			job.Trigger,
			job.Status,
			optionalTime(job.StartedAt),
			optionalTime(job.CompletedAt),
			job.RecordsProcessed,
			job.RecordsDeleted,
			job.RecordsAnonymized,
			errs,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert retention job sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert retention job: %w", err)
	}
	return nil
}

// Update persists progress. Rows already in a terminal state are left untouched.
func (r *RetentionJobRepository) Update(ctx context.Context, job domain.RetentionJob) error {
	errs, err := marshalErrors(job.Errors)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Update("compliance.retention_jobs").
		Set("status", job.Status).
		Set("started_at", optionalTime(job.StartedAt)).
		Set("completed_at", optionalTime(job.CompletedAt)).
		Set("records_processed", job.RecordsProcessed).
		Set("records_deleted", job.RecordsDeleted).
		Set("records_anonymized", job.RecordsAnonymized).
		Set("errors", errs).
		Where(squirrel.Eq{"id": job.ID}).
		Where(squirrel.NotEq{"status": []domain.RetentionJobStatus{domain.RetentionJobCompleted, domain.RetentionJobFailed}}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update retention job sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update retention job: %w", err)
	}
	return requireAffected(tag)
}

// Latest returns the most recently started job for the data type.
func (r *RetentionJobRepository) Latest(ctx context.Context, dataType string) (*domain.RetentionJob, error) {
	stmt, args, err := r.builder.
		Select("id", "data_type", "trigger", "status", "started_at", "completed_at",
			"records_processed", "records_deleted", "records_anonymized", "errors").
		From("compliance.retention_jobs").
		Where(squirrel.Eq{"data_type": dataType}).
		OrderBy("id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build latest retention job sql: %w", err)
	}

	var (
		job         domain.RetentionJob
		startedAt   sql.NullTime
		completedAt sql.NullTime
		errs        []byte
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&job.ID,
		&job.DataType,
		&job.Trigger,
		&job.Status,
		&startedAt,
		&completedAt,
		&job.RecordsProcessed,
		&job.RecordsDeleted,
		&job.RecordsAnonymized,
		&errs,
	); err != nil {
		return nil, translateError(err)
	}

	job.StartedAt = nullableTimePtr(startedAt)
	job.CompletedAt = nullableTimePtr(completedAt)
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &job.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal retention job errors: %w", err)
		}
	}
	return &job, nil
}

func (r *RetentionJobRepository) CountFailedBetween(ctx context.Context, start, end time.Time) (int, error) {
	const stmt = `
		SELECT COUNT(*)
		  FROM compliance.retention_jobs
		 WHERE status = $1
		   AND completed_at >= $2
		   AND completed_at < $3
	`

	var count int
	if err := r.exec.QueryRow(ctx, stmt, domain.RetentionJobFailed, start.UTC(), end.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("count failed retention jobs: %w", err)
	}
	return count, nil
}

func marshalErrors(errs []string) ([]byte, error) {
	if errs == nil {
		errs = []string{}
	}
	return marshalJSON(errs)
}

var (
	_ port.RetentionPolicyRepository = (*RetentionPolicyRepository)(nil)
	_ port.RetentionJobRepository    = (*RetentionJobRepository)(nil)
)
