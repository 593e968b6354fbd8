package domain

import "time"

// RiskLevel classifies how sensitive an audit event is.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Valid reports whether the risk level is known.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// RaisesAlert reports whether events at this level raise a security alert on ingestion.
func (r RiskLevel) RaisesAlert() bool {
	return r == RiskHigh || r == RiskCritical
}

// Audit event types emitted by the core.
const (
	EventUserRegistered       = "user.registered"
	EventLoginSucceeded       = "auth.login.succeeded"
	EventLoginFailed          = "auth.login.failed"
	EventAccountLocked        = "auth.account.locked"
	EventLogout               = "auth.logout"
	EventPasswordChanged      = "auth.password.changed"
	EventPasswordReset        = "auth.password.reset"
	EventEmailVerified        = "auth.email.verified"
	EventConsentRecorded      = "consent.recorded"
	EventConsentWithdrawn     = "consent.withdrawn"
	EventPrivacyRequested     = "privacy.request.submitted"
	EventPrivacyCompleted     = "privacy.request.completed"
	EventPrivacyRejected      = "privacy.request.rejected"
	EventRetentionJobFinished = "retention.job.finished"
	EventDataAccess           = "data.access"
	EventUserInteraction      = "user.interaction"
	EventSystem               = "system"
)

// AuditEvent is an immutable record of a security- or privacy-relevant occurrence.
type AuditEvent struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	UserID    *string        `json:"user_id,omitempty"`
	SessionID *string        `json:"session_id,omitempty"`
	Risk      RiskLevel      `json:"risk"`
	Payload   map[string]any `json:"payload,omitempty"`
	Source    string         `json:"source"`
	IPAddress *string        `json:"ip_address,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AlertSeverity ranks security alerts.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityError    AlertSeverity = "error"
	SeverityCritical AlertSeverity = "critical"
)

// SeverityForRisk maps an event risk level to the severity of the alert it raises.
func SeverityForRisk(r RiskLevel) AlertSeverity {
	switch r {
	case RiskCritical:
		return SeverityCritical
	case RiskHigh:
		return SeverityError
	case RiskMedium:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Alert types raised by the monitor.
const (
	AlertHighRiskEvent       = "high_risk_event"
	AlertExcessiveFailures   = "excessive_failed_logins"
	AlertDataAccessVolume    = "unusual_data_access"
	AlertStalePrivacyRequest = "stale_privacy_request"
	AlertRetentionFailure    = "retention_job_failed"
)

// SecurityAlert is append-only except for the acknowledge and resolve stamps.
type SecurityAlert struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Severity       AlertSeverity  `json:"severity"`
	Message        string         `json:"message"`
	Details        map[string]any `json:"details,omitempty"`
	TriggeredAt    time.Time      `json:"triggered_at"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
}

// Open reports whether the alert has not been resolved yet.
func (a SecurityAlert) Open() bool {
	return a.ResolvedAt == nil
}

// ComplianceMetrics are aggregates over a report period.
type ComplianceMetrics struct {
	TotalUsers               int     `json:"total_users"`
	NewUsers                 int     `json:"new_users"`
	UsersWithConsent         int     `json:"users_with_consent"`
	ConsentRate              float64 `json:"consent_rate"`
	ConsentWithdrawals       int     `json:"consent_withdrawals"`
	PrivacyRequests          int     `json:"privacy_requests"`
	PrivacyRequestsCompleted int     `json:"privacy_requests_completed"`
	PrivacyRequestsPending   int     `json:"privacy_requests_pending"`
	AvgResponseHours         float64 `json:"avg_response_hours"`
	SecurityIncidents        int     `json:"security_incidents"`
	CriticalIncidents        int     `json:"critical_incidents"`
	HighRiskEvents           int     `json:"high_risk_events"`
	RetentionJobsFailed      int     `json:"retention_jobs_failed"`
}

// Violation is a detected policy breach within a report period.
type Violation struct {
	Type        string    `json:"type"`
	Severity    RiskLevel `json:"severity"`
	Description string    `json:"description"`
	Count       int       `json:"count"`
}

// ComplianceReport is an immutable snapshot.
type ComplianceReport struct {
	ID              string            `json:"id"`
	Type            string            `json:"type"`
	PeriodStart     time.Time         `json:"period_start"`
	PeriodEnd       time.Time         `json:"period_end"`
	Metrics         ComplianceMetrics `json:"metrics"`
	Violations      []Violation       `json:"violations"`
	Recommendations []string          `json:"recommendations"`
	GeneratedAt     time.Time         `json:"generated_at"`
}

// HasSevereViolation reports whether any violation is rated high or critical.
func (r ComplianceReport) HasSevereViolation() bool {
	for _, v := range r.Violations {
		if v.Severity == RiskHigh || v.Severity == RiskCritical {
			return true
		}
	}
	return false
}

// HealthStatus is the aggregated system state.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// SystemHealth is returned by the monitor's health check.
type SystemHealth struct {
	Status           HealthStatus      `json:"status"`
	RecentAlerts     int               `json:"recent_alerts"`
	CriticalAlerts   int               `json:"critical_alerts"`
	ActiveViolations int               `json:"active_violations"`
	Checks           map[string]string `json:"checks"`
	CheckedAt        time.Time         `json:"checked_at"`
}
