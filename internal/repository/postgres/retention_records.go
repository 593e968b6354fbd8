package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/repository"
)

// retentionTarget describes how one data type maps onto the schema.
type retentionTarget struct {
	table string
	// ageExpr is compared against the policy cutoff.
	ageExpr string
	// eligible narrows selection, e.g. to terminal privacy requests.
	eligible squirrel.Sqlizer
	// anonymize lists the columns rewritten by the anonymize method. Empty means unsupported.
	anonymize map[string]any
	// softDelete lists extra columns set alongside deleted_at. Nil means unsupported.
	softDelete map[string]any
	// exceptions maps a policy exception tag to rows it protects. A nil predicate means the
	// protection is already part of eligible and the tag is accepted as-is.
	exceptions map[string]squirrel.Sqlizer
}

// ExceptionLegalHold protects rows belonging to a user under an active legal hold.
const ExceptionLegalHold = "legal_hold"

// underLegalHold matches rows whose userColumn references a user with an active hold.
func underLegalHold(userColumn string) squirrel.Sqlizer {
	return squirrel.Expr("EXISTS (SELECT 1 FROM compliance.legal_holds h WHERE h.user_id = " + userColumn +
		" AND h.active_from <= now() AND (h.active_until IS NULL OR h.active_until > now()))")
}

// Data types understood by the retention scheduler.
const (
	DataTypeAssessmentResponses = "assessment_responses"
	DataTypeUserSessions        = "user_sessions"
	DataTypeAuditLogs           = "audit_logs"
	DataTypePrivacyRequests     = "privacy_requests"
	DataTypeInactiveUsers       = domain.RetentionDataInactiveUsers
)

var retentionTargets = map[string]retentionTarget{
	DataTypeAssessmentResponses: {
		table:   "compliance.assessment_responses",
		ageExpr: "submitted_at",
		anonymize: map[string]any{
			"user_id":    nil,
			"ip_address": nil,
		},
		softDelete: map[string]any{},
		exceptions: map[string]squirrel.Sqlizer{
			ExceptionLegalHold: underLegalHold("compliance.assessment_responses.user_id"),
		},
	},
	DataTypeUserSessions: {
		table:   "compliance.sessions",
		ageExpr: "expires_at",
		exceptions: map[string]squirrel.Sqlizer{
			ExceptionLegalHold: underLegalHold("compliance.sessions.user_id"),
		},
	},
	DataTypeAuditLogs: {
		table:   "compliance.audit_log",
		ageExpr: "created_at",
		anonymize: map[string]any{
			"user_id":    nil,
			"session_id": nil,
			"ip_address": nil,
		},
		softDelete: map[string]any{},
		exceptions: map[string]squirrel.Sqlizer{
			"security_incident": squirrel.Eq{"risk_level": []domain.RiskLevel{domain.RiskHigh, domain.RiskCritical}},
			ExceptionLegalHold:  underLegalHold("compliance.audit_log.user_id"),
		},
	},
	DataTypePrivacyRequests: {
		table:   "compliance.privacy_requests",
		ageExpr: "submitted_at",
		eligible: squirrel.Eq{"status": []domain.PrivacyRequestStatus{
			domain.PrivacyStatusCompleted,
			domain.PrivacyStatusRejected,
		}},
		anonymize: map[string]any{
			"user_id":       nil,
			"request_data":  nil,
			"response_data": nil,
		},
		exceptions: map[string]squirrel.Sqlizer{
			ExceptionLegalHold: underLegalHold("compliance.privacy_requests.user_id"),
		},
	},
	DataTypeInactiveUsers: {
		table:   "compliance.users",
		ageExpr: "COALESCE(last_login, registered_at)",
		// A held account is never expired, whatever the policy says.
		eligible: squirrel.Expr("NOT (?)", underLegalHold("compliance.users.id")),
		anonymize: map[string]any{
			"email":         squirrel.Expr("'anonymized+' || id || '@invalid.local'"),
			"first_name":    nil,
			"last_name":     nil,
			"company":       nil,
			"phone":         nil,
			"password_hash": "",
			"status":        domain.UserStatusDisabled,
		},
		softDelete: map[string]any{
			"status": domain.UserStatusDisabled,
		},
		exceptions: map[string]squirrel.Sqlizer{
			ExceptionLegalHold: nil,
		},
	},
}

// RetentionRecordRepository locates and transforms records governed by retention policies.
type RetentionRecordRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	targets map[string]retentionTarget
}

func NewRetentionRecordRepository(exec pgExecutor) *RetentionRecordRepository {
	return &RetentionRecordRepository{exec: exec, builder: newBuilder(), targets: retentionTargets}
}

func (r *RetentionRecordRepository) WithTx(tx pgx.Tx) *RetentionRecordRepository {
	if tx == nil {
		return r
	}
	return &RetentionRecordRepository{exec: tx, builder: r.builder, targets: r.targets}
}

// Supports reports whether the data type has a schema mapping.
func (r *RetentionRecordRepository) Supports(dataType string) bool {
	_, ok := r.targets[dataType]
	return ok
}

// SupportsException reports whether the data type knows how to honour the exception tag.
func (r *RetentionRecordRepository) SupportsException(dataType, tag string) bool {
	target, ok := r.targets[dataType]
	if !ok {
		return false
	}
	_, ok = target.exceptions[tag]
	return ok
}

func (r *RetentionRecordRepository) target(dataType string, method domain.DeletionMethod) (retentionTarget, error) {
	target, ok := r.targets[dataType]
	if !ok {
		return retentionTarget{}, fmt.Errorf("%w: data type %s", repository.ErrUnsupported, dataType)
	}
	switch method {
	case domain.DeletionAnonymize:
		if len(target.anonymize) == 0 {
			return retentionTarget{}, fmt.Errorf("%w: %s cannot be anonymized", repository.ErrUnsupported, dataType)
		}
	case domain.DeletionSoft:
		if target.softDelete == nil {
			return retentionTarget{}, fmt.Errorf("%w: %s cannot be soft deleted", repository.ErrUnsupported, dataType)
		}
	}
	return target, nil
}

// policyTarget resolves the target for a policy and refuses exception tags it cannot honour, so an
// unmapped tag never widens what gets deleted.
func (r *RetentionRecordRepository) policyTarget(policy domain.RetentionPolicy) (retentionTarget, error) {
	target, err := r.target(policy.DataType, policy.DeletionMethod)
	if err != nil {
		return retentionTarget{}, err
	}
	for _, tag := range policy.Exceptions {
		if _, ok := target.exceptions[tag]; !ok {
			return retentionTarget{}, fmt.Errorf("%w: %s has no exception %q", repository.ErrUnsupported, policy.DataType, tag)
		}
	}
	return target, nil
}

// overdue builds the predicate shared by selection and reporting. Rows the method already handled
// are excluded so repeated runs converge.
func overdue(target retentionTarget, policy domain.RetentionPolicy, cutoff time.Time) squirrel.And {
	where := squirrel.And{squirrel.Expr(target.ageExpr+" < ?", cutoff.UTC())}
	if target.eligible != nil {
		where = append(where, target.eligible)
	}
	switch policy.DeletionMethod {
	case domain.DeletionAnonymize:
		where = append(where, squirrel.Eq{"anonymized_at": nil})
	case domain.DeletionSoft:
		where = append(where, squirrel.Eq{"deleted_at": nil})
	}
	for _, tag := range policy.Exceptions {
		if protected := target.exceptions[tag]; protected != nil {
			where = append(where, squirrel.Expr("NOT (?)", protected))
		}
	}
	return where
}

func (r *RetentionRecordRepository) SelectExpired(ctx context.Context, policy domain.RetentionPolicy, cutoff time.Time, afterID string, limit int) ([]string, error) {
	target, err := r.policyTarget(policy)
	if err != nil {
		return nil, err
	}

	builder := r.builder.Select("id").
		From(target.table).
		Where(overdue(target, policy, cutoff)).
		OrderBy("id")
	if afterID != "" {
		builder = builder.Where(squirrel.Gt{"id": afterID})
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select expired sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query expired %s: %w", policy.DataType, err)
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired ids: %w", err)
	}
	return ids, nil
}

func (r *RetentionRecordRepository) CountOverdue(ctx context.Context, policy domain.RetentionPolicy, cutoff time.Time) (int, error) {
	target, err := r.policyTarget(policy)
	if err != nil {
		return 0, err
	}

	stmt, args, err := r.builder.Select("COUNT(*)").
		From(target.table).
		Where(overdue(target, policy, cutoff)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count overdue sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count overdue %s: %w", policy.DataType, err)
	}
	return count, nil
}

// HardDelete removes the row. Children are removed by ON DELETE CASCADE.
func (r *RetentionRecordRepository) HardDelete(ctx context.Context, dataType string, id string) error {
	target, err := r.target(dataType, domain.DeletionHard)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Delete(target.table).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build hard delete sql: %w", err)
	}
	return r.execOne(ctx, stmt, args, "hard delete "+dataType)
}

func (r *RetentionRecordRepository) SoftDelete(ctx context.Context, dataType string, id string, at time.Time) error {
	target, err := r.target(dataType, domain.DeletionSoft)
	if err != nil {
		return err
	}

	set := map[string]any{"deleted_at": at.UTC()}
	for column, value := range target.softDelete {
		set[column] = value
	}

	stmt, args, err := r.builder.Update(target.table).
		SetMap(set).
		Where(squirrel.Eq{"id": id, "deleted_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build soft delete sql: %w", err)
	}
	return r.execOne(ctx, stmt, args, "soft delete "+dataType)
}

// Anonymize rewrites identifying columns. Rows already anonymized report repository.ErrNotFound.
func (r *RetentionRecordRepository) Anonymize(ctx context.Context, dataType string, id string, at time.Time) error {
	target, err := r.target(dataType, domain.DeletionAnonymize)
	if err != nil {
		return err
	}

	set := map[string]any{"anonymized_at": at.UTC()}
	for column, value := range target.anonymize {
		set[column] = value
	}

	stmt, args, err := r.builder.Update(target.table).
		SetMap(set).
		Where(squirrel.Eq{"id": id, "anonymized_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build anonymize sql: %w", err)
	}
	return r.execOne(ctx, stmt, args, "anonymize "+dataType)
}

func (r *RetentionRecordRepository) execOne(ctx context.Context, stmt string, args []any, label string) error {
	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	return requireAffected(tag)
}

var _ port.RetentionRecordRepository = (*RetentionRecordRepository)(nil)
