package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/config"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/repository"
)

const (
	defaultFailedLoginThreshold = 10
	defaultFailedLoginWindow    = 15 * time.Minute
	defaultDataAccessThreshold  = 100
	defaultDataAccessWindow     = time.Hour
	defaultMaxPendingAge        = 25 * 24 * time.Hour
	defaultHealthWindow         = 24 * time.Hour
	defaultHealthAlertThreshold = 10

	pendingRequestScanLimit = 200
	healthAlertScanLimit    = 1000
)

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

// MonitorDeps groups the collaborators of SecurityMonitor.
type MonitorDeps struct {
	Events   port.AuditRepository
	Alerts   port.AlertRepository
	Reports  port.ReportRepository
	Requests port.PrivacyRequestRepository
	Raiser   alertRaiser
	Checks   map[string]HealthCheck
	Logger   *zap.Logger
}

// SecurityMonitor scans the audit trail on a schedule and raises alerts for suspicious patterns.
type SecurityMonitor struct {
	events   port.AuditRepository
	alerts   port.AlertRepository
	reports  port.ReportRepository
	requests port.PrivacyRequestRepository
	raiser   alertRaiser
	checks   map[string]HealthCheck
	logger   *zap.Logger

	failedThreshold int
	failedWindow    time.Duration
	accessThreshold int
	accessWindow    time.Duration
	maxPendingAge   time.Duration
	healthWindow    time.Duration
	healthThreshold int

	mu sync.Mutex
	// raised maps an alert key to the end of its suppression period.
	raised map[string]time.Time

	now func() time.Time
}

// NewSecurityMonitor constructs a SecurityMonitor.
func NewSecurityMonitor(deps MonitorDeps, audit config.AuditSettings, privacy config.PrivacySettings) *SecurityMonitor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &SecurityMonitor{
		events:          deps.Events,
		alerts:          deps.Alerts,
		reports:         deps.Reports,
		requests:        deps.Requests,
		raiser:          deps.Raiser,
		checks:          deps.Checks,
		logger:          logger,
		failedThreshold: positiveOr(audit.FailedLoginThreshold, defaultFailedLoginThreshold),
		failedWindow:    durationOr(audit.FailedLoginWindow, defaultFailedLoginWindow),
		accessThreshold: positiveOr(audit.DataAccessThreshold, defaultDataAccessThreshold),
		accessWindow:    durationOr(audit.DataAccessWindow, defaultDataAccessWindow),
		maxPendingAge:   durationOr(privacy.MaxPendingAge, defaultMaxPendingAge),
		healthWindow:    durationOr(audit.HealthWindow, defaultHealthWindow),
		healthThreshold: positiveOr(audit.HealthAlertThreshold, defaultHealthAlertThreshold),
		raised:          make(map[string]time.Time),
		now:             func() time.Time { return time.Now().UTC() },
	}
	if m.checks == nil {
		m.checks = map[string]HealthCheck{}
	}
	return m
}

// WithClock overrides the internal clock for deterministic tests.
func (m *SecurityMonitor) WithClock(clock func() time.Time) {
	if clock != nil {
		m.now = clock
	}
}

// CheckFailedLogins raises one alert per identifier whose failed logins in the window reach the
// threshold. It returns the number of alerts raised.
func (m *SecurityMonitor) CheckFailedLogins(ctx context.Context) (int, error) {
	now := m.now()
	counts, err := m.events.CountByPayloadKey(ctx, domain.EventLoginFailed, failedLoginKey, now.Add(-m.failedWindow), m.failedThreshold)
	if err != nil {
		return 0, fmt.Errorf("count failed logins: %w", err)
	}

	raised := 0
	for _, identifier := range sortedKeys(counts) {
		count := counts[identifier]
		if !m.claim(domain.AlertExcessiveFailures+":"+identifier, now, m.failedWindow) {
			continue
		}
		_, err := m.raiser.RaiseAlert(ctx, domain.AlertExcessiveFailures, domain.SeverityWarning,
			fmt.Sprintf("%d failed logins within %s", count, m.failedWindow),
			map[string]any{failedLoginKey: identifier, "count": count, "window": m.failedWindow.String()})
		if err != nil {
			return raised, fmt.Errorf("raise failed login alert: %w", err)
		}
		raised++
	}
	return raised, nil
}

// CheckDataAccessVolume raises an alert for every user whose data-access events in the window reach
// the threshold.
func (m *SecurityMonitor) CheckDataAccessVolume(ctx context.Context) (int, error) {
	now := m.now()
	counts, err := m.events.CountByUser(ctx, domain.EventDataAccess, now.Add(-m.accessWindow), m.accessThreshold)
	if err != nil {
		return 0, fmt.Errorf("count data access: %w", err)
	}

	raised := 0
	for _, userID := range sortedKeys(counts) {
		count := counts[userID]
		if !m.claim(domain.AlertDataAccessVolume+":"+userID, now, m.accessWindow) {
			continue
		}
		_, err := m.raiser.RaiseAlert(ctx, domain.AlertDataAccessVolume, domain.SeverityWarning,
			fmt.Sprintf("%d data access events within %s", count, m.accessWindow),
			map[string]any{"user_id": userID, "count": count, "window": m.accessWindow.String()})
		if err != nil {
			return raised, fmt.Errorf("raise data access alert: %w", err)
		}
		raised++
	}
	return raised, nil
}

// CheckPendingRequests raises an alert for privacy requests still open past the maximum age.
// Requests older than twice the age are escalated.
func (m *SecurityMonitor) CheckPendingRequests(ctx context.Context) (int, error) {
	now := m.now()
	stale, err := m.requests.ListPendingBefore(ctx, now.Add(-m.maxPendingAge), pendingRequestScanLimit)
	if err != nil {
		return 0, fmt.Errorf("list stale privacy requests: %w", err)
	}

	raised := 0
	for _, request := range stale {
		if !m.claim(domain.AlertStalePrivacyRequest+":"+request.ID, now, 24*time.Hour) {
			continue
		}
		age := now.Sub(request.SubmittedAt)
		severity := domain.SeverityWarning
		if age >= 2*m.maxPendingAge {
			severity = domain.SeverityError
		}
		_, err := m.raiser.RaiseAlert(ctx, domain.AlertStalePrivacyRequest, severity,
			fmt.Sprintf("%s request open for %d days", request.Type, int(age.Hours()/24)),
			map[string]any{
				"request_id":   request.ID,
				"request_type": string(request.Type),
				"status":       string(request.Status),
				"submitted_at": request.SubmittedAt,
			})
		if err != nil {
			return raised, fmt.Errorf("raise stale request alert: %w", err)
		}
		raised++
	}
	return raised, nil
}

// SystemHealth aggregates recent alerts, the latest compliance report and dependency checks.
// Critical wins over warning.
func (m *SecurityMonitor) SystemHealth(ctx context.Context) (domain.SystemHealth, error) {
	now := m.now()
	health := domain.SystemHealth{
		Status:    domain.HealthHealthy,
		Checks:    make(map[string]string, len(m.checks)+2),
		CheckedAt: now,
	}

	alerts, err := m.alerts.ListSince(ctx, now.Add(-m.healthWindow), healthAlertScanLimit)
	if err != nil {
		return health, fmt.Errorf("list recent alerts: %w", err)
	}
	health.RecentAlerts = len(alerts)
	for _, alert := range alerts {
		if alert.Severity == domain.SeverityCritical && alert.Open() {
			health.CriticalAlerts++
		}
	}

	report, err := m.reports.Latest(ctx, ReportTypeDaily)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		health.Checks["compliance_report"] = "none"
	case err != nil:
		return health, fmt.Errorf("latest compliance report: %w", err)
	default:
		health.Checks["compliance_report"] = "ok"
		for _, v := range report.Violations {
			if v.Severity == domain.RiskHigh || v.Severity == domain.RiskCritical {
				health.ActiveViolations++
			}
		}
	}

	checksFailed := false
	for _, name := range sortedKeys(m.checks) {
		if err := m.checks[name](ctx); err != nil {
			health.Checks[name] = "failed: " + err.Error()
			checksFailed = true
			continue
		}
		health.Checks[name] = "ok"
	}

	switch {
	case health.CriticalAlerts > 0 || health.ActiveViolations > 0:
		health.Status = domain.HealthCritical
	case health.RecentAlerts > m.healthThreshold || checksFailed:
		health.Status = domain.HealthWarning
	}
	return health, nil
}

// claim reports whether key is outside its suppression period and, if so, suppresses it again.
func (m *SecurityMonitor) claim(key string, now time.Time, suppress time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, until := range m.raised {
		if !now.Before(until) {
			delete(m.raised, k)
		}
	}
	if _, ok := m.raised[key]; ok {
		return false
	}
	m.raised[key] = now.Add(suppress)
	return true
}

func sortedKeys[V any](in map[string]V) []string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
