package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Selected when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Debug("stub event published",
		append([]zap.Field{
			zap.String("event_type", eventType),
			zap.String("user_id", userID),
			zap.Time("timestamp", at.UTC()),
		}, fields...)...,
	)
}

func (p *StubPublisher) PublishAuditEvent(_ context.Context, event domain.AuditEvent) error {
	p.logEvent(TopicAuditEvent, deref(event.UserID), event.CreatedAt,
		zap.String("type", event.Type),
		zap.String("risk", string(event.Risk)),
	)
	return nil
}

func (p *StubPublisher) PublishSecurityAlert(_ context.Context, alert domain.SecurityAlert) error {
	p.logEvent(TopicSecurityAlert, "", alert.TriggeredAt,
		zap.String("alert_type", alert.Type),
		zap.String("severity", string(alert.Severity)),
	)
	return nil
}

func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.logEvent(TopicPasswordChanged, event.UserID, event.ChangedAt, zap.Int("sessions_revoked", event.SessionsRevoked))
	return nil
}

func (p *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	p.logEvent(TopicSessionRevoked, event.UserID, event.RevokedAt, zap.String("reason", event.Reason))
	return nil
}

func (p *StubPublisher) PublishPrivacyRequestResolved(_ context.Context, event domain.PrivacyRequestResolvedEvent) error {
	p.logEvent(TopicPrivacyResolved, event.UserID, event.ResolvedAt,
		zap.String("request_type", string(event.Type)),
		zap.String("status", string(event.Status)),
	)
	return nil
}

func (p *StubPublisher) PublishRetentionJob(_ context.Context, job domain.RetentionJob) error {
	var at time.Time
	if job.CompletedAt != nil {
		at = *job.CompletedAt
	}
	p.logEvent(TopicRetentionFinished, "", at,
		zap.String("data_type", job.DataType),
		zap.String("status", string(job.Status)),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
