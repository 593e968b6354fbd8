package port

import (
	"context"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishAuditEvent(ctx context.Context, event domain.AuditEvent) error
	PublishSecurityAlert(ctx context.Context, alert domain.SecurityAlert) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
	PublishPrivacyRequestResolved(ctx context.Context, event domain.PrivacyRequestResolvedEvent) error
	PublishRetentionJob(ctx context.Context, job domain.RetentionJob) error
}

// Notifier delivers out-of-band messages. Delivery itself lives outside this service.
type Notifier interface {
	SendEmailVerification(ctx context.Context, user domain.User, token string) error
	SendPasswordReset(ctx context.Context, user domain.User, token string) error
	SendPasswordChanged(ctx context.Context, user domain.User) error
	SendSecurityAlert(ctx context.Context, alert domain.SecurityAlert) error
	SendPrivacyRequestUpdate(ctx context.Context, request domain.PrivacyRequest) error
}

// AuditLogger records audit events. Implementations are best-effort for callers.
type AuditLogger interface {
	LogAuditEvent(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error)
}
