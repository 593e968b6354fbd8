package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsOptions configures the domain collectors.
type MetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
}

// Metrics holds the Prometheus collectors for authentication, monitoring and retention.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	LoginAttempts     *prometheus.CounterVec
	Lockouts          prometheus.Counter
	SessionsRevoked   *prometheus.CounterVec
	AuditEvents       *prometheus.CounterVec
	Alerts            *prometheus.CounterVec
	PrivacyRequests   *prometheus.CounterVec
	RetentionRecords  *prometheus.CounterVec
	RetentionDuration *prometheus.HistogramVec
	SchedulerRuns     *prometheus.CounterVec
}

// NewMetrics registers the collectors, reusing any already registered under the same name.
func NewMetrics(opts MetricsOptions) (*Metrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "compliance"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{}
	var err error

	if m.LoginAttempts, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "login_attempts_total",
		Help:      "Login attempts partitioned by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}

	if m.Lockouts, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "lockouts_total",
		Help:      "Identifiers locked out after repeated failures.",
	})); err != nil {
		return nil, err
	}

	if m.SessionsRevoked, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "sessions_revoked_total",
		Help:      "Sessions revoked partitioned by reason.",
	}, []string{"reason"})); err != nil {
		return nil, err
	}

	if m.AuditEvents, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "events_total",
		Help:      "Audit events recorded partitioned by risk level.",
	}, []string{"risk"})); err != nil {
		return nil, err
	}

	if m.Alerts, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "alerts_total",
		Help:      "Security alerts raised partitioned by type and severity.",
	}, []string{"type", "severity"})); err != nil {
		return nil, err
	}

	if m.PrivacyRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "privacy",
		Name:      "requests_total",
		Help:      "Privacy requests partitioned by type and final status.",
	}, []string{"type", "status"})); err != nil {
		return nil, err
	}

	if m.RetentionRecords, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "retention",
		Name:      "records_total",
		Help:      "Records processed by retention jobs partitioned by data type and method.",
	}, []string{"data_type", "method"})); err != nil {
		return nil, err
	}

	if m.RetentionDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "retention",
		Name:      "job_duration_seconds",
		Help:      "Retention job duration partitioned by data type and status.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"data_type", "status"})); err != nil {
		return nil, err
	}

	if m.SchedulerRuns, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "runs_total",
		Help:      "Scheduled task executions partitioned by task and result.",
	}, []string{"task", "result"})); err != nil {
		return nil, err
	}

	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	if err := reg.Register(collector); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return collector, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return collector, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return collector, nil
}

// ObserveLogin counts a login attempt by outcome (success, failure, locked).
func (m *Metrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
	if outcome == "locked" {
		m.Lockouts.Inc()
	}
}

func (m *Metrics) ObserveSessionsRevoked(reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.SessionsRevoked.WithLabelValues(reason).Add(float64(count))
}

func (m *Metrics) ObserveAuditEvent(risk string) {
	if m == nil {
		return
	}
	m.AuditEvents.WithLabelValues(risk).Inc()
}

func (m *Metrics) ObserveAlert(alertType, severity string) {
	if m == nil {
		return
	}
	m.Alerts.WithLabelValues(alertType, severity).Inc()
}

func (m *Metrics) ObservePrivacyRequest(requestType, status string) {
	if m == nil {
		return
	}
	m.PrivacyRequests.WithLabelValues(requestType, status).Inc()
}

// ObserveRetention records the outcome of one retention job.
func (m *Metrics) ObserveRetention(dataType, method, status string, records int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if records > 0 {
		m.RetentionRecords.WithLabelValues(dataType, method).Add(float64(records))
	}
	m.RetentionDuration.WithLabelValues(dataType, status).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveSchedulerRun(task string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.SchedulerRuns.WithLabelValues(task, result).Inc()
}
