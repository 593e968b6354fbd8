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

var auditColumns = []string{
	"id",
	"event_type",
	"user_id",
	"session_id",
	"risk_level",
	"payload",
	"source",
	"ip_address",
	"created_at",
}

// AuditRepository is the append-only audit trail.
type AuditRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewAuditRepository(exec pgExecutor) *AuditRepository {
	return &AuditRepository{exec: exec, builder: newBuilder()}
}

func (r *AuditRepository) Insert(ctx context.Context, event domain.AuditEvent) error {
	payload, err := marshalMap(event.Payload)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Insert("compliance.audit_log").
		Columns(auditColumns...).
		Values(
			event.ID,
			event.Type,
			optionalString(event.UserID),
			optionalString(event.SessionID),
			event.Risk,
			payload,
			event.Source,
			optionalString(event.IPAddress),
			event.CreatedAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit event sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByUser returns the user's live audit trail, newest first.
func (r *AuditRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.AuditEvent, error) {
	builder := r.builder.Select(auditColumns...).
		From("compliance.audit_log").
		Where(squirrel.Eq{"user_id": userID, "deleted_at": nil}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list audit events sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.AuditEvent, 0)
	for rows.Next() {
		event, err := scanAuditEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, *event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func scanAuditEvent(row pgx.Row) (*domain.AuditEvent, error) {
	var (
		event     domain.AuditEvent
		userID    sql.NullString
		sessionID sql.NullString
		payload   []byte
		ip        sql.NullString
	)

	if err := row.Scan(
		&event.ID,
		&event.Type,
		&userID,
		&sessionID,
		&event.Risk,
		&payload,
		&event.Source,
		&ip,
		&event.CreatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if event.Payload, err = unmarshalMap(payload); err != nil {
		return nil, err
	}
	event.UserID = nullableStringPtr(userID)
	event.SessionID = nullableStringPtr(sessionID)
	event.IPAddress = nullableStringPtr(ip)
	return &event, nil
}

func (r *AuditRepository) CountByRisk(ctx context.Context, start, end time.Time) (map[domain.RiskLevel]int, error) {
	const stmt = `
		SELECT risk_level, COUNT(*)
		  FROM compliance.audit_log
		 WHERE created_at >= $1
		   AND created_at < $2
		 GROUP BY risk_level
	`

	counts := make(map[domain.RiskLevel]int)
	err := r.groupCounts(ctx, stmt, []any{start.UTC(), end.UTC()}, func(key string, n int) {
		counts[domain.RiskLevel(key)] = n
	})
	return counts, err
}

// CountByPayloadKey groups events by a top-level payload attribute.
func (r *AuditRepository) CountByPayloadKey(ctx context.Context, eventType, key string, since time.Time, minCount int) (map[string]int, error) {
	const stmt = `
		SELECT payload ->> $2 AS grouping_key, COUNT(*)
		  FROM compliance.audit_log
		 WHERE event_type = $1
		   AND created_at >= $3
		   AND payload ? $2
		 GROUP BY grouping_key
		HAVING COUNT(*) >= $4
	`

	counts := make(map[string]int)
	err := r.groupCounts(ctx, stmt, []any{eventType, key, since.UTC(), minCount}, func(k string, n int) {
		counts[k] = n
	})
	return counts, err
}

func (r *AuditRepository) CountByUser(ctx context.Context, eventType string, since time.Time, minCount int) (map[string]int, error) {
	const stmt = `
		SELECT user_id, COUNT(*)
		  FROM compliance.audit_log
		 WHERE event_type = $1
		   AND created_at >= $2
		   AND user_id IS NOT NULL
		 GROUP BY user_id
		HAVING COUNT(*) >= $3
	`

	counts := make(map[string]int)
	err := r.groupCounts(ctx, stmt, []any{eventType, since.UTC(), minCount}, func(k string, n int) {
		counts[k] = n
	})
	return counts, err
}

func (r *AuditRepository) groupCounts(ctx context.Context, stmt string, args []any, collect func(string, int)) error {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("query audit aggregates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("scan audit aggregate: %w", err)
		}
		collect(key, count)
	}
	return rows.Err()
}

// AlertRepository stores security alerts.
type AlertRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewAlertRepository(exec pgExecutor) *AlertRepository {
	return &AlertRepository{exec: exec, builder: newBuilder()}
}

var alertColumns = []string{
	"id",
	"alert_type",
	"severity",
	"message",
	"details",
	"triggered_at",
	"acknowledged_at",
	"resolved_at",
}

func (r *AlertRepository) Insert(ctx context.Context, alert domain.SecurityAlert) error {
	details, err := marshalMap(alert.Details)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Insert("compliance.security_alerts").
		Columns(alertColumns...).
		Values(
			alert.ID,
			alert.Type,
			alert.Severity,
			alert.Message,
			details,
			alert.TriggeredAt.UTC(),
			optionalTime(alert.AcknowledgedAt),
			optionalTime(alert.ResolvedAt),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert alert sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (r *AlertRepository) Get(ctx context.Context, id string) (*domain.SecurityAlert, error) {
	stmt, args, err := r.builder.Select(alertColumns...).
		From("compliance.security_alerts").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select alert sql: %w", err)
	}

	alert, err := scanAlert(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, translateError(err)
	}
	return alert, nil
}

// Acknowledge stamps the alert once. Later calls keep the first stamp.
func (r *AlertRepository) Acknowledge(ctx context.Context, id string, at time.Time) error {
	return r.stamp(ctx, id, "acknowledged_at", at)
}

func (r *AlertRepository) Resolve(ctx context.Context, id string, at time.Time) error {
	return r.stamp(ctx, id, "resolved_at", at)
}

func (r *AlertRepository) stamp(ctx context.Context, id, column string, at time.Time) error {
	stmt, args, err := r.builder.Update("compliance.security_alerts").
		Set(column, squirrel.Expr("COALESCE("+column+", ?)", at.UTC())).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build stamp alert sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("stamp alert %s: %w", column, err)
	}
	return requireAffected(tag)
}

func (r *AlertRepository) ListSince(ctx context.Context, since time.Time, limit int) ([]domain.SecurityAlert, error) {
	builder := r.builder.Select(alertColumns...).
		From("compliance.security_alerts").
		Where(squirrel.GtOrEq{"triggered_at": since.UTC()}).
		OrderBy("triggered_at DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list alerts sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]domain.SecurityAlert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, *alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}

func (r *AlertRepository) CountBySeverity(ctx context.Context, start, end time.Time) (map[domain.AlertSeverity]int, error) {
	const stmt = `
		SELECT severity, COUNT(*)
		  FROM compliance.security_alerts
		 WHERE triggered_at >= $1
		   AND triggered_at < $2
		 GROUP BY severity
	`

	rows, err := r.exec.Query(ctx, stmt, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query alert counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.AlertSeverity]int)
	for rows.Next() {
		var (
			severity string
			count    int
		)
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("scan alert count: %w", err)
		}
		counts[domain.AlertSeverity(severity)] = count
	}
	return counts, rows.Err()
}

func scanAlert(row pgx.Row) (*domain.SecurityAlert, error) {
	var (
		alert          domain.SecurityAlert
		details        []byte
		acknowledgedAt sql.NullTime
		resolvedAt     sql.NullTime
	)

	if err := row.Scan(
		&alert.ID,
		&alert.Type,
		&alert.Severity,
		&alert.Message,
		&details,
		&alert.TriggeredAt,
		&acknowledgedAt,
		&resolvedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if alert.Details, err = unmarshalMap(details); err != nil {
		return nil, err
	}
	alert.AcknowledgedAt = nullableTimePtr(acknowledgedAt)
	alert.ResolvedAt = nullableTimePtr(resolvedAt)
	return &alert, nil
}

// ReportRepository stores immutable compliance report snapshots.
type ReportRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewReportRepository(exec pgExecutor) *ReportRepository {
	return &ReportRepository{exec: exec, builder: newBuilder()}
}

var reportColumns = []string{
	"id",
	"report_type",
	"period_start",
	"period_end",
	"metrics",
	"violations",
	"recommendations",
	"generated_at",
}

func (r *ReportRepository) Insert(ctx context.Context, report domain.ComplianceReport) error {
	metrics, err := marshalJSON(report.Metrics)
	if err != nil {
		return err
	}
	violations := report.Violations
	if violations == nil {
		violations = []domain.Violation{}
	}
	violationsJSON, err := marshalJSON(violations)
	if err != nil {
		return err
	}
	recommendations := report.Recommendations
	if recommendations == nil {
		recommendations = []string{}
	}
	recommendationsJSON, err := marshalJSON(recommendations)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Insert("compliance.compliance_reports").
		Columns(reportColumns...).
		Values(
			report.ID,
			report.Type,
			report.PeriodStart.UTC(),
			report.PeriodEnd.UTC(),
			metrics,
			violationsJSON,
			recommendationsJSON,
			report.GeneratedAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert report sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (r *ReportRepository) Get(ctx context.Context, id string) (*domain.ComplianceReport, error) {
	return r.getOne(ctx, r.builder.Select(reportColumns...).
		From("compliance.compliance_reports").
		Where(squirrel.Eq{"id": id}))
}

func (r *ReportRepository) Latest(ctx context.Context, reportType string) (*domain.ComplianceReport, error) {
	return r.getOne(ctx, r.builder.Select(reportColumns...).
		From("compliance.compliance_reports").
		Where(squirrel.Eq{"report_type": reportType}).
		OrderBy("generated_at DESC").
		Limit(1))
}

func (r *ReportRepository) getOne(ctx context.Context, query squirrel.SelectBuilder) (*domain.ComplianceReport, error) {
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select report sql: %w", err)
	}

	var (
		report          domain.ComplianceReport
		metrics         []byte
		violations      []byte
		recommendations []byte
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&report.ID,
		&report.Type,
		&report.PeriodStart,
		&report.PeriodEnd,
		&metrics,
		&violations,
		&recommendations,
		&report.GeneratedAt,
	); err != nil {
		return nil, translateError(err)
	}

	if err := json.Unmarshal(metrics, &report.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshal report metrics: %w", err)
	}
	if err := json.Unmarshal(violations, &report.Violations); err != nil {
		return nil, fmt.Errorf("unmarshal report violations: %w", err)
	}
	if err := json.Unmarshal(recommendations, &report.Recommendations); err != nil {
		return nil, fmt.Errorf("unmarshal report recommendations: %w", err)
	}
	return &report, nil
}

var (
	_ port.AuditRepository  = (*AuditRepository)(nil)
	_ port.AlertRepository  = (*AlertRepository)(nil)
	_ port.ReportRepository = (*ReportRepository)(nil)
)
