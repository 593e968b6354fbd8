package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/config"
)

const schemaVersion = "1.0"

// Topics, before prefixing.
const (
	TopicAuditEvent        = "audit.event"
	TopicSecurityAlert     = "security.alert"
	TopicPasswordChanged   = "user.password.changed"
	TopicSessionRevoked    = "session.revoked"
	TopicPrivacyResolved   = "privacy.request.resolved"
	TopicRetentionFinished = "retention.job.finished"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

// publish keys messages by user so one subject's events stay ordered within a partition.
func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	bytes, err := json.Marshal(eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}
	if userID != "" {
		message.Key = sarama.StringEncoder(userID)
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAuditEvent fans an audit event out to downstream consumers.
func (p *EventPublisher) PublishAuditEvent(ctx context.Context, event domain.AuditEvent) error {
	return p.publish(ctx, event.ID, TopicAuditEvent, deref(event.UserID), event.CreatedAt, event)
}

// PublishSecurityAlert publishes raised alerts.
func (p *EventPublisher) PublishSecurityAlert(ctx context.Context, alert domain.SecurityAlert) error {
	return p.publish(ctx, alert.ID, TopicSecurityAlert, "", alert.TriggeredAt, alert)
}

func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		UserID          string         `json:"user_id"`
		ChangedAt       time.Time      `json:"changed_at"`
		ChangedBy       string         `json:"changed_by"`
		SessionsRevoked int            `json:"sessions_revoked"`
		Metadata        map[string]any `json:"metadata,omitempty"`
	}{
		UserID:          event.UserID,
		ChangedAt:       event.ChangedAt.UTC(),
		ChangedBy:       event.ChangedBy,
		SessionsRevoked: event.SessionsRevoked,
		Metadata:        event.Metadata,
	}

	return p.publish(ctx, event.EventID, TopicPasswordChanged, event.UserID, event.ChangedAt, payload)
}

func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	payload := struct {
		SessionID string    `json:"session_id"`
		UserID    string    `json:"user_id"`
		RevokedAt time.Time `json:"revoked_at"`
		Reason    string    `json:"reason"`
		IPAddress *string   `json:"ip_address,omitempty"`
	}{
		SessionID: event.SessionID,
		UserID:    event.UserID,
		RevokedAt: event.RevokedAt.UTC(),
		Reason:    event.Reason,
		IPAddress: event.IPAddress,
	}

	return p.publish(ctx, event.EventID, TopicSessionRevoked, event.UserID, event.RevokedAt, payload)
}

func (p *EventPublisher) PublishPrivacyRequestResolved(ctx context.Context, event domain.PrivacyRequestResolvedEvent) error {
	payload := struct {
		RequestID  string                      `json:"request_id"`
		Type       domain.PrivacyRequestType   `json:"type"`
		Status     domain.PrivacyRequestStatus `json:"status"`
		ResolvedAt time.Time                   `json:"resolved_at"`
		Reason     *string                     `json:"reason,omitempty"`
	}{
		RequestID:  event.RequestID,
		Type:       event.Type,
		Status:     event.Status,
		ResolvedAt: event.ResolvedAt.UTC(),
		Reason:     event.Reason,
	}

	return p.publish(ctx, event.EventID, TopicPrivacyResolved, event.UserID, event.ResolvedAt, payload)
}

func (p *EventPublisher) PublishRetentionJob(ctx context.Context, job domain.RetentionJob) error {
	payload := struct {
		JobID             string                    `json:"job_id"`
		DataType          string                    `json:"data_type"`
		Trigger           domain.RetentionTrigger   `json:"trigger"`
		Status            domain.RetentionJobStatus `json:"status"`
		RecordsProcessed  int                       `json:"records_processed"`
		RecordsDeleted    int                       `json:"records_deleted"`
		RecordsAnonymized int                       `json:"records_anonymized"`
		ErrorCount        int                       `json:"error_count"`
	}{
		JobID:             job.ID,
		DataType:          job.DataType,
		Trigger:           job.Trigger,
		Status:            job.Status,
		RecordsProcessed:  job.RecordsProcessed,
		RecordsDeleted:    job.RecordsDeleted,
		RecordsAnonymized: job.RecordsAnonymized,
		ErrorCount:        len(job.Errors),
	}

	var at time.Time
	if job.CompletedAt != nil {
		at = *job.CompletedAt
	}
	return p.publish(ctx, job.ID, TopicRetentionFinished, "", at, payload)
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

var _ port.EventPublisher = (*EventPublisher)(nil)
