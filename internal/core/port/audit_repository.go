package port

import (
	"context"
	"time"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
)

// AuditRepository is the append-only audit trail.
type AuditRepository interface {
	Insert(ctx context.Context, event domain.AuditEvent) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.AuditEvent, error)
	CountByRisk(ctx context.Context, start, end time.Time) (map[domain.RiskLevel]int, error)
	// CountByPayloadKey groups events of eventType since the given moment by a payload attribute,
	// returning only groups with at least minCount events.
	CountByPayloadKey(ctx context.Context, eventType, key string, since time.Time, minCount int) (map[string]int, error)
	CountByUser(ctx context.Context, eventType string, since time.Time, minCount int) (map[string]int, error)
}

// AlertRepository stores security alerts.
type AlertRepository interface {
	Insert(ctx context.Context, alert domain.SecurityAlert) error
	Get(ctx context.Context, id string) (*domain.SecurityAlert, error)
	Acknowledge(ctx context.Context, id string, at time.Time) error
	Resolve(ctx context.Context, id string, at time.Time) error
	ListSince(ctx context.Context, since time.Time, limit int) ([]domain.SecurityAlert, error)
	CountBySeverity(ctx context.Context, start, end time.Time) (map[domain.AlertSeverity]int, error)
}

// ReportRepository stores compliance report snapshots.
type ReportRepository interface {
	Insert(ctx context.Context, report domain.ComplianceReport) error
	Get(ctx context.Context, id string) (*domain.ComplianceReport, error)
	Latest(ctx context.Context, reportType string) (*domain.ComplianceReport, error)
}

// ComplianceStatsRepository computes the aggregates behind compliance reports.
type ComplianceStatsRepository interface {
	UserCounts(ctx context.Context, start, end time.Time) (total int, created int, err error)
	ConsentCounts(ctx context.Context, consentType domain.ConsentType, start, end time.Time) (granted int, withdrawn int, err error)
	// UsersMissingConsent counts active users without a grant of the type given at or after validSince.
	UsersMissingConsent(ctx context.Context, consentType domain.ConsentType, validSince time.Time) (int, error)
	PrivacyRequestStats(ctx context.Context, start, end time.Time) (total, completed, pending int, avgHours float64, err error)
}
