package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/config"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/security"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/telemetry"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/repository"
)

const (
	defaultAuditSource        = "compliance-core"
	defaultAuditTrailLimit    = 100
	maxAuditTrailLimit        = 1000
	bulkAccessRecordThreshold = 100

	// failedLoginKey is the payload attribute failed-login events are grouped by. It holds a hash so the
	// audit trail never stores raw identifiers.
	failedLoginKey = "identifier_hash"
)

var (
	// ErrAuditEventInvalid is returned when an event lacks a type or carries an unknown risk level.
	ErrAuditEventInvalid = domain.ValidationError("invalid_audit_event", "audit event is invalid", nil)
	// ErrAlertNotFound indicates the alert id is unknown.
	ErrAlertNotFound = domain.NewError(domain.KindNotFound, "alert_not_found", "alert not found")
)

// AlertCallback is invoked synchronously after an alert has been persisted.
type AlertCallback func(ctx context.Context, alert domain.SecurityAlert)

// AuditDeps groups the collaborators of AuditService.
type AuditDeps struct {
	Events    port.AuditRepository
	Alerts    port.AlertRepository
	Recent    port.RecentEventBuffer
	Publisher port.EventPublisher
	Notifier  port.Notifier
	Failures  port.SlidingWindowCounter
	Metrics   *telemetry.Metrics
	Logger    *zap.Logger
}

// AuditService ingests audit events and raises security alerts.
type AuditService struct {
	events    port.AuditRepository
	alerts    port.AlertRepository
	recent    port.RecentEventBuffer
	publisher port.EventPublisher
	notifier  port.Notifier
	failures  port.SlidingWindowCounter
	metrics   *telemetry.Metrics
	logger    *zap.Logger
	limiter   *rate.Limiter
	cfg       config.AuditSettings

	mu        sync.RWMutex
	callbacks []AlertCallback

	now func() time.Time
}

// NewAuditService constructs an AuditService.
func NewAuditService(deps AuditDeps, cfg config.AuditSettings) *AuditService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.AlertNotificationsPerMinute > 0 {
		limit = rate.Limit(cfg.AlertNotificationsPerMinute / 60)
	}
	burst := cfg.AlertNotificationBurst
	if burst <= 0 {
		burst = 1
	}

	return &AuditService{
		events:    deps.Events,
		alerts:    deps.Alerts,
		recent:    deps.Recent,
		publisher: deps.Publisher,
		notifier:  deps.Notifier,
		failures:  deps.Failures,
		metrics:   deps.Metrics,
		logger:    logger,
		limiter:   rate.NewLimiter(limit, burst),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// OnAlert registers a callback invoked for every raised alert.
func (s *AuditService) OnAlert(cb AlertCallback) {
	if cb == nil {
		return
	}
	s.mu.Lock()
	s.callbacks = append(s.callbacks, cb)
	s.mu.Unlock()
}

// LogAuditEvent stamps and persists the event, mirrors it to the recent-events ring and the bus,
// and raises an alert for high and critical risk. Only persistence failures are returned.
func (s *AuditService) LogAuditEvent(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	event.Type = strings.TrimSpace(event.Type)
	if event.Type == "" {
		return domain.AuditEvent{}, ErrAuditEventInvalid
	}
	if event.Risk == "" {
		event.Risk = domain.RiskLow
	}
	if !event.Risk.Valid() {
		return domain.AuditEvent{}, ErrAuditEventInvalid
	}
	if event.Source == "" {
		event.Source = defaultAuditSource
	}

	now := s.now()
	event.ID = security.NewULID(now)
	event.CreatedAt = now

	if err := s.events.Insert(ctx, event); err != nil {
		return domain.AuditEvent{}, fmt.Errorf("persist audit event: %w", err)
	}
	s.metrics.ObserveAuditEvent(string(event.Risk))

	if s.recent != nil {
		if err := s.recent.Push(ctx, event); err != nil {
			s.logger.Warn("failed to mirror audit event", zap.String("event_id", event.ID), zap.Error(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishAuditEvent(ctx, event); err != nil {
			s.logger.Warn("failed to publish audit event", zap.String("event_id", event.ID), zap.Error(err))
		}
	}

	if event.Risk.RaisesAlert() {
		details := map[string]any{"event_id": event.ID, "event_type": event.Type}
		if event.UserID != nil {
			details["user_id"] = *event.UserID
		}
		message := fmt.Sprintf("%s risk event %s", event.Risk, event.Type)
		if _, err := s.RaiseAlert(ctx, domain.AlertHighRiskEvent, domain.SeverityForRisk(event.Risk), message, details); err != nil {
			s.logger.Error("failed to raise alert for audit event", zap.String("event_id", event.ID), zap.Error(err))
		}
	}

	if event.Type == domain.EventLoginFailed {
		s.trackFailedLogin(ctx, event)
	}

	return event, nil
}

// trackFailedLogin counts failures per identifier in a sliding window and alerts once when the
// threshold is crossed. The scheduled monitor covers instances without a counter.
func (s *AuditService) trackFailedLogin(ctx context.Context, event domain.AuditEvent) {
	if s.failures == nil || s.cfg.FailedLoginThreshold <= 0 || s.cfg.FailedLoginWindow <= 0 {
		return
	}
	identifier, _ := event.Payload[failedLoginKey].(string)
	if identifier == "" {
		return
	}

	count, err := s.failures.Hit(ctx, "audit:failed_login:"+identifier, s.cfg.FailedLoginWindow, event.CreatedAt)
	if err != nil {
		s.logger.Warn("failed to count failed login", zap.Error(err))
		return
	}
	if count != s.cfg.FailedLoginThreshold {
		return
	}

	details := map[string]any{
		failedLoginKey: identifier,
		"count":        count,
		"window":       s.cfg.FailedLoginWindow.String(),
	}
	message := fmt.Sprintf("%d failed logins for one identifier within %s", count, s.cfg.FailedLoginWindow)
	if _, err := s.RaiseAlert(ctx, domain.AlertExcessiveFailures, domain.SeverityError, message, details); err != nil {
		s.logger.Error("failed to raise failed login alert", zap.Error(err))
	}
}

// RaiseAlert persists an alert, publishes it, notifies operators subject to the notification rate
// and invokes registered callbacks.
func (s *AuditService) RaiseAlert(ctx context.Context, alertType string, severity domain.AlertSeverity, message string, details map[string]any) (domain.SecurityAlert, error) {
	now := s.now()
	alert := domain.SecurityAlert{
		ID:          security.NewULID(now),
		Type:        alertType,
		Severity:    severity,
		Message:     message,
		Details:     details,
		TriggeredAt: now,
	}

	if err := s.alerts.Insert(ctx, alert); err != nil {
		return domain.SecurityAlert{}, fmt.Errorf("persist alert: %w", err)
	}
	s.metrics.ObserveAlert(alert.Type, string(alert.Severity))

	s.logger.Warn("security alert raised",
		zap.String("alert_id", alert.ID),
		zap.String("alert_type", alert.Type),
		zap.String("severity", string(alert.Severity)),
	)

	if s.publisher != nil {
		if err := s.publisher.PublishSecurityAlert(ctx, alert); err != nil {
			s.logger.Warn("failed to publish alert", zap.String("alert_id", alert.ID), zap.Error(err))
		}
	}

	if s.notifier != nil {
		if s.limiter.Allow() {
			if err := s.notifier.SendSecurityAlert(ctx, alert); err != nil {
				s.logger.Warn("failed to notify alert", zap.String("alert_id", alert.ID), zap.Error(err))
			}
		} else {
			s.logger.Info("alert notification throttled", zap.String("alert_id", alert.ID))
		}
	}

	s.mu.RLock()
	callbacks := append([]AlertCallback(nil), s.callbacks...)
	s.mu.RUnlock()
	for _, cb := range callbacks {
		cb(ctx, alert)
	}

	return alert, nil
}

// InteractionInput describes a user-initiated action.
type InteractionInput struct {
	UserID    string
	SessionID string
	Action    string
	IPAddress string
	Details   map[string]any
}

// LogUserInteraction records a user action. Sensitive actions are rated medium, everything else low.
func (s *AuditService) LogUserInteraction(ctx context.Context, in InteractionInput) (domain.AuditEvent, error) {
	payload := copyPayload(in.Details)
	payload["action"] = in.Action

	return s.LogAuditEvent(ctx, domain.AuditEvent{
		Type:      domain.EventUserInteraction,
		UserID:    stringPtrOrNil(in.UserID),
		SessionID: stringPtrOrNil(in.SessionID),
		Risk:      sensitivityRisk(in.Action, false),
		Payload:   payload,
		IPAddress: stringPtrOrNil(in.IPAddress),
	})
}

// DataAccessInput describes a read or mutation of stored data.
type DataAccessInput struct {
	UserID       string
	SessionID    string
	Resource     string
	Operation    string
	RecordCount  int
	PersonalData bool
	IPAddress    string
}

// LogDataAccess records a data access. Bulk, export, admin and delete operations on personal data
// are rated high.
func (s *AuditService) LogDataAccess(ctx context.Context, in DataAccessInput) (domain.AuditEvent, error) {
	risk := sensitivityRisk(in.Operation, in.PersonalData)
	if in.PersonalData && in.RecordCount >= bulkAccessRecordThreshold {
		risk = domain.RiskHigh
	}

	return s.LogAuditEvent(ctx, domain.AuditEvent{
		Type:      domain.EventDataAccess,
		UserID:    stringPtrOrNil(in.UserID),
		SessionID: stringPtrOrNil(in.SessionID),
		Risk:      risk,
		Payload: map[string]any{
			"resource":      in.Resource,
			"operation":     in.Operation,
			"record_count":  in.RecordCount,
			"personal_data": in.PersonalData,
		},
		IPAddress: stringPtrOrNil(in.IPAddress),
	})
}

// SystemEventInput describes an internal occurrence.
type SystemEventInput struct {
	Component string
	Message   string
	Err       error
	Details   map[string]any
}

// LogSystemEvent records an internal occurrence. Errors are rated medium.
func (s *AuditService) LogSystemEvent(ctx context.Context, in SystemEventInput) (domain.AuditEvent, error) {
	payload := copyPayload(in.Details)
	payload["component"] = in.Component
	payload["message"] = in.Message

	risk := domain.RiskLow
	if in.Err != nil {
		risk = domain.RiskMedium
		payload["error"] = in.Err.Error()
	}

	return s.LogAuditEvent(ctx, domain.AuditEvent{
		Type:    domain.EventSystem,
		Risk:    risk,
		Payload: payload,
		Source:  in.Component,
	})
}

// UserAuditTrail lists the user's events, newest first.
func (s *AuditService) UserAuditTrail(ctx context.Context, userID string, limit int) ([]domain.AuditEvent, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ValidationError("invalid_user", "user id is required", map[string]string{"user_id": "required"})
	}
	if limit <= 0 {
		limit = defaultAuditTrailLimit
	}
	if limit > maxAuditTrailLimit {
		limit = maxAuditTrailLimit
	}

	events, err := s.events.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}

// RecentEvents returns the newest events from the ring buffer.
func (s *AuditService) RecentEvents(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	if s.recent == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultAuditTrailLimit
	}
	return s.recent.Recent(ctx, limit)
}

// AcknowledgeAlert stamps the acknowledgement time once.
func (s *AuditService) AcknowledgeAlert(ctx context.Context, id string) (*domain.SecurityAlert, error) {
	return s.stampAlert(ctx, id, s.alerts.Acknowledge)
}

// ResolveAlert stamps the resolution time once.
func (s *AuditService) ResolveAlert(ctx context.Context, id string) (*domain.SecurityAlert, error) {
	return s.stampAlert(ctx, id, s.alerts.Resolve)
}

func (s *AuditService) stampAlert(ctx context.Context, id string, stamp func(context.Context, string, time.Time) error) (*domain.SecurityAlert, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrAlertNotFound
	}
	if err := stamp(ctx, id, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("update alert: %w", err)
	}

	alert, err := s.alerts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("load alert: %w", err)
	}
	return alert, nil
}

var sensitiveOperations = []string{"bulk", "export", "admin", "delete", "erase"}

// sensitivityRisk rates an operation by name. Sensitive operations on personal data are high,
// on anything else medium.
func sensitivityRisk(operation string, personalData bool) domain.RiskLevel {
	op := strings.ToLower(operation)
	for _, marker := range sensitiveOperations {
		if strings.Contains(op, marker) {
			if personalData {
				return domain.RiskHigh
			}
			return domain.RiskMedium
		}
	}
	return domain.RiskLow
}

func copyPayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}

// recordAudit logs an event on behalf of another operation. Failures are logged and swallowed.
func recordAudit(ctx context.Context, audit port.AuditLogger, logger *zap.Logger, event domain.AuditEvent) {
	if audit == nil {
		return
	}
	if _, err := audit.LogAuditEvent(ctx, event); err != nil {
		logger.Warn("audit event dropped", zap.String("event_type", event.Type), zap.Error(err))
	}
}

func failedLoginPayload(identifier, reason string) map[string]any {
	return map[string]any{
		failedLoginKey: security.HashToken(normalizeIdentifier(identifier)),
		"reason":       reason,
	}
}
