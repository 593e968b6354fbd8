package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
)

// ComplianceStatsRepository runs the aggregate queries behind compliance reports.
type ComplianceStatsRepository struct {
	exec pgExecutor
}

func NewComplianceStatsRepository(exec pgExecutor) *ComplianceStatsRepository {
	return &ComplianceStatsRepository{exec: exec}
}

// UserCounts returns live users at end and users registered within [start, end).
func (r *ComplianceStatsRepository) UserCounts(ctx context.Context, start, end time.Time) (int, int, error) {
	const stmt = `
		SELECT COUNT(*) FILTER (WHERE registered_at < $2),
		       COUNT(*) FILTER (WHERE registered_at >= $1 AND registered_at < $2)
		  FROM compliance.users
		 WHERE deleted_at IS NULL
	`

	var total, created int
	if err := r.exec.QueryRow(ctx, stmt, start.UTC(), end.UTC()).Scan(&total, &created); err != nil {
		return 0, 0, fmt.Errorf("count users: %w", err)
	}
	return total, created, nil
}

func (r *ComplianceStatsRepository) ConsentCounts(ctx context.Context, consentType domain.ConsentType, start, end time.Time) (int, int, error) {
	const stmt = `
		SELECT COUNT(*) FILTER (WHERE given),
		       COUNT(*) FILTER (WHERE withdrawn_at >= $2 AND withdrawn_at < $3)
		  FROM compliance.consent_records
		 WHERE consent_type = $1
	`

	var granted, withdrawn int
	if err := r.exec.QueryRow(ctx, stmt, consentType, start.UTC(), end.UTC()).Scan(&granted, &withdrawn); err != nil {
		return 0, 0, fmt.Errorf("count consents: %w", err)
	}
	return granted, withdrawn, nil
}

// UsersMissingConsent counts active users without a grant of the type that is still fresh at validSince.
func (r *ComplianceStatsRepository) UsersMissingConsent(ctx context.Context, consentType domain.ConsentType, validSince time.Time) (int, error) {
	const stmt = `
		SELECT COUNT(*)
		  FROM compliance.users u
		 WHERE u.deleted_at IS NULL
		   AND u.status = 'active'
		   AND NOT EXISTS (
		         SELECT 1
		           FROM compliance.consent_records c
		          WHERE c.user_id = u.id
		            AND c.consent_type = $1
		            AND c.given
		            AND c.consent_date >= $2
		       )
	`

	var missing int
	if err := r.exec.QueryRow(ctx, stmt, consentType, validSince.UTC()).Scan(&missing); err != nil {
		return 0, fmt.Errorf("count users missing consent: %w", err)
	}
	return missing, nil
}

func (r *ComplianceStatsRepository) PrivacyRequestStats(ctx context.Context, start, end time.Time) (int, int, int, float64, error) {
	const stmt = `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status IN ('pending', 'processing')),
		       COALESCE(AVG(EXTRACT(EPOCH FROM (completed_at - submitted_at)) / 3600.0)
		                FILTER (WHERE completed_at IS NOT NULL), 0)
		  FROM compliance.privacy_requests
		 WHERE submitted_at >= $1
		   AND submitted_at < $2
	`

	var (
		total, completed, pending int
		avgHours                  float64
	)
	if err := r.exec.QueryRow(ctx, stmt, start.UTC(), end.UTC()).Scan(&total, &completed, &pending, &avgHours); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("privacy request stats: %w", err)
	}
	return total, completed, pending, avgHours, nil
}

var _ port.ComplianceStatsRepository = (*ComplianceStatsRepository)(nil)
