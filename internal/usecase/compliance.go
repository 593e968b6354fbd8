package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/security"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/repository"
)

// Report types.
const (
	ReportTypeDaily   = "daily"
	ReportTypeWeekly  = "weekly"
	ReportTypeMonthly = "monthly"
	ReportTypeCustom  = "custom"
)

// Violation types.
const (
	ViolationMissingConsent    = "missing_processing_consent"
	ViolationRetentionOverrun  = "retention_overrun"
	ViolationStaleRequests     = "privacy_requests_overdue"
	ViolationRetentionFailures = "retention_job_failures"
	ViolationCriticalIncidents = "critical_security_incidents"
)

// minConsentRate is the share of users expected to hold processing consent.
const minConsentRate = 0.95

var (
	// ErrInvalidReportPeriod indicates an empty or inverted period.
	ErrInvalidReportPeriod = domain.ValidationError("invalid_report_period", "report period is invalid", map[string]string{"period": "start must be before end"})
	// ErrInvalidReportType indicates an unknown report type.
	ErrInvalidReportType = domain.ValidationError("invalid_report_type", "report type is invalid", map[string]string{"type": "unknown report type"})
	// ErrReportNotFound indicates no report matches.
	ErrReportNotFound = domain.NewError(domain.KindNotFound, "report_not_found", "compliance report not found")
)

var recommendationFor = map[string]string{
	ViolationMissingConsent:    "Prompt users without processing consent to review the privacy policy before further processing.",
	ViolationRetentionOverrun:  "Run retention policies manually and review the scheduler for skipped executions.",
	ViolationStaleRequests:     "Assign an operator to privacy requests approaching their response deadline.",
	ViolationRetentionFailures: "Inspect failed retention jobs and resolve the recorded per-record errors.",
	ViolationCriticalIncidents: "Review unresolved critical alerts and document the incident response.",
}

// ComplianceDeps groups the collaborators of ComplianceService.
type ComplianceDeps struct {
	Stats    port.ComplianceStatsRepository
	Events   port.AuditRepository
	Alerts   port.AlertRepository
	Jobs     port.RetentionJobRepository
	Policies port.RetentionPolicyRepository
	Records  port.RetentionRecordRepository
	Requests port.PrivacyRequestRepository
	Reports  port.ReportRepository
	Audit    port.AuditLogger
	Logger   *zap.Logger

	// ConsentValidity is how long a processing grant counts as valid consent.
	ConsentValidity time.Duration
}

// ComplianceService computes compliance report snapshots.
type ComplianceService struct {
	stats         port.ComplianceStatsRepository
	events        port.AuditRepository
	alerts        port.AlertRepository
	jobs          port.RetentionJobRepository
	policies      port.RetentionPolicyRepository
	records       port.RetentionRecordRepository
	requests      port.PrivacyRequestRepository
	reports       port.ReportRepository
	audit         port.AuditLogger
	logger        *zap.Logger
	maxPendingAge time.Duration
	validity      time.Duration
	now           func() time.Time
}

// NewComplianceService constructs a ComplianceService. maxPendingAge bounds how long a privacy request
// may stay open before it counts as a violation.
func NewComplianceService(deps ComplianceDeps, maxPendingAge time.Duration) *ComplianceService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ComplianceService{
		stats:         deps.Stats,
		events:        deps.Events,
		alerts:        deps.Alerts,
		jobs:          deps.Jobs,
		policies:      deps.Policies,
		records:       deps.Records,
		requests:      deps.Requests,
		reports:       deps.Reports,
		audit:         deps.Audit,
		logger:        logger,
		maxPendingAge: durationOr(maxPendingAge, defaultMaxPendingAge),
		validity:      durationOr(deps.ConsentValidity, defaultConsentValidity),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *ComplianceService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// GenerateComplianceReport computes metrics and violations for [start, end) and persists the snapshot.
func (s *ComplianceService) GenerateComplianceReport(ctx context.Context, reportType string, start, end time.Time) (domain.ComplianceReport, error) {
	reportType = strings.ToLower(strings.TrimSpace(reportType))
	switch reportType {
	case ReportTypeDaily, ReportTypeWeekly, ReportTypeMonthly, ReportTypeCustom:
	default:
		return domain.ComplianceReport{}, ErrInvalidReportType
	}
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return domain.ComplianceReport{}, ErrInvalidReportPeriod
	}
	start, end = start.UTC(), end.UTC()

	metrics, err := s.collectMetrics(ctx, start, end)
	if err != nil {
		return domain.ComplianceReport{}, err
	}
	violations, err := s.detectViolations(ctx, metrics)
	if err != nil {
		return domain.ComplianceReport{}, err
	}

	generatedAt := s.now()
	report := domain.ComplianceReport{
		ID:              security.NewULID(generatedAt),
		Type:            reportType,
		PeriodStart:     start,
		PeriodEnd:       end,
		Metrics:         metrics,
		Violations:      violations,
		Recommendations: recommendations(violations),
		GeneratedAt:     generatedAt,
	}
	if err := s.reports.Insert(ctx, report); err != nil {
		return domain.ComplianceReport{}, fmt.Errorf("store compliance report: %w", err)
	}

	risk := domain.RiskLow
	if report.HasSevereViolation() {
		risk = domain.RiskMedium
	}
	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		Type: domain.EventSystem,
		Risk: risk,
		Payload: map[string]any{
			"component":  "compliance",
			"report_id":  report.ID,
			"type":       report.Type,
			"violations": len(report.Violations),
		},
	})

	s.logger.Info("compliance report generated",
		zap.String("report_id", report.ID),
		zap.String("type", report.Type),
		zap.Int("violations", len(report.Violations)),
	)
	return report, nil
}

// GenerateScheduledReport covers the trailing period ending now.
func (s *ComplianceService) GenerateScheduledReport(ctx context.Context, period time.Duration) (domain.ComplianceReport, error) {
	if period <= 0 {
		period = 24 * time.Hour
	}
	end := s.now()
	return s.GenerateComplianceReport(ctx, ReportTypeDaily, end.Add(-period), end)
}

func (s *ComplianceService) collectMetrics(ctx context.Context, start, end time.Time) (domain.ComplianceMetrics, error) {
	var m domain.ComplianceMetrics
	var err error

	if m.TotalUsers, m.NewUsers, err = s.stats.UserCounts(ctx, start, end); err != nil {
		return m, fmt.Errorf("user counts: %w", err)
	}
	if _, m.ConsentWithdrawals, err = s.stats.ConsentCounts(ctx, domain.ConsentProcessing, start, end); err != nil {
		return m, fmt.Errorf("consent counts: %w", err)
	}
	// Consent counts as of the end of the period, using the same freshness rule as ValidateConsent.
	missing, err := s.stats.UsersMissingConsent(ctx, domain.ConsentProcessing, end.Add(-s.validity))
	if err != nil {
		return m, fmt.Errorf("users missing consent: %w", err)
	}
	m.UsersWithConsent = m.TotalUsers - missing
	if m.UsersWithConsent < 0 {
		m.UsersWithConsent = 0
	}
	if m.TotalUsers > 0 {
		m.ConsentRate = round2(float64(m.UsersWithConsent) / float64(m.TotalUsers))
	}

	if m.PrivacyRequests, m.PrivacyRequestsCompleted, m.PrivacyRequestsPending, m.AvgResponseHours, err = s.stats.PrivacyRequestStats(ctx, start, end); err != nil {
		return m, fmt.Errorf("privacy request stats: %w", err)
	}
	m.AvgResponseHours = round2(m.AvgResponseHours)

	bySeverity, err := s.alerts.CountBySeverity(ctx, start, end)
	if err != nil {
		return m, fmt.Errorf("alert counts: %w", err)
	}
	for _, count := range bySeverity {
		m.SecurityIncidents += count
	}
	m.CriticalIncidents = bySeverity[domain.SeverityCritical]

	byRisk, err := s.events.CountByRisk(ctx, start, end)
	if err != nil {
		return m, fmt.Errorf("audit risk counts: %w", err)
	}
	m.HighRiskEvents = byRisk[domain.RiskHigh] + byRisk[domain.RiskCritical]

	if m.RetentionJobsFailed, err = s.jobs.CountFailedBetween(ctx, start, end); err != nil {
		return m, fmt.Errorf("failed retention jobs: %w", err)
	}
	return m, nil
}

func (s *ComplianceService) detectViolations(ctx context.Context, m domain.ComplianceMetrics) ([]domain.Violation, error) {
	violations := make([]domain.Violation, 0)

	if missing := m.TotalUsers - m.UsersWithConsent; missing > 0 {
		severity := domain.RiskMedium
		if m.ConsentRate < minConsentRate {
			severity = domain.RiskHigh
		}
		violations = append(violations, domain.Violation{
			Type:        ViolationMissingConsent,
			Severity:    severity,
			Description: fmt.Sprintf("%d users have no valid processing consent", missing),
			Count:       missing,
		})
	}

	policies, err := s.policies.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list retention policies: %w", err)
	}
	now := s.now()
	for _, policy := range policies {
		overdue, err := s.records.CountOverdue(ctx, policy, policy.Cutoff(now))
		if err != nil {
			if errors.Is(err, repository.ErrUnsupported) {
				continue
			}
			return nil, fmt.Errorf("count overdue %s: %w", policy.DataType, err)
		}
		if overdue == 0 {
			continue
		}
		violations = append(violations, domain.Violation{
			Type:        ViolationRetentionOverrun,
			Severity:    domain.RiskHigh,
			Description: fmt.Sprintf("%d %s records exceed the %d day retention period", overdue, policy.DataType, policy.RetentionDays),
			Count:       overdue,
		})
	}

	stale, err := s.requests.ListPendingBefore(ctx, now.Add(-s.maxPendingAge), pendingRequestScanLimit)
	if err != nil {
		return nil, fmt.Errorf("list stale privacy requests: %w", err)
	}
	if len(stale) > 0 {
		violations = append(violations, domain.Violation{
			Type:        ViolationStaleRequests,
			Severity:    domain.RiskHigh,
			Description: fmt.Sprintf("%d privacy requests open longer than %d days", len(stale), int(s.maxPendingAge.Hours()/24)),
			Count:       len(stale),
		})
	}

	if m.RetentionJobsFailed > 0 {
		violations = append(violations, domain.Violation{
			Type:        ViolationRetentionFailures,
			Severity:    domain.RiskMedium,
			Description: fmt.Sprintf("%d retention jobs failed", m.RetentionJobsFailed),
			Count:       m.RetentionJobsFailed,
		})
	}

	if m.CriticalIncidents > 0 {
		violations = append(violations, domain.Violation{
			Type:        ViolationCriticalIncidents,
			Severity:    domain.RiskCritical,
			Description: fmt.Sprintf("%d critical security incidents", m.CriticalIncidents),
			Count:       m.CriticalIncidents,
		})
	}
	return violations, nil
}

// LatestReport returns the newest report of the given type.
func (s *ComplianceService) LatestReport(ctx context.Context, reportType string) (*domain.ComplianceReport, error) {
	report, err := s.reports.Latest(ctx, strings.ToLower(strings.TrimSpace(reportType)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("latest compliance report: %w", err)
	}
	return report, nil
}

// GetReport loads a stored report.
func (s *ComplianceService) GetReport(ctx context.Context, id string) (*domain.ComplianceReport, error) {
	report, err := s.reports.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("load compliance report: %w", err)
	}
	return report, nil
}

// recommendations returns one entry per violation type in first-seen order.
func recommendations(violations []domain.Violation) []string {
	seen := make(map[string]struct{}, len(violations))
	out := make([]string, 0, len(violations))
	for _, v := range violations {
		text, ok := recommendationFor[v.Type]
		if !ok {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		out = append(out, text)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
