package notification

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/logger"
)

// LoggingNotifier records notification dispatch without delivering anything. Raw tokens are
// only logged when ExposeTokens is set, which callers restrict to non-production environments.
type LoggingNotifier struct {
	logger       *zap.Logger
	exposeTokens bool
	alerts       *rate.Limiter
}

// Options tunes a LoggingNotifier.
type Options struct {
	ExposeTokens bool
	// AlertsPerMinute caps alert notifications. Zero disables the cap.
	AlertsPerMinute float64
	AlertBurst      int
}

// NewLoggingNotifier constructs a notifier backed by structured logging.
func NewLoggingNotifier(log *zap.Logger, opts Options) *LoggingNotifier {
	if log == nil {
		log = zap.NewNop()
	}

	n := &LoggingNotifier{logger: log, exposeTokens: opts.ExposeTokens}
	if opts.AlertsPerMinute > 0 {
		burst := opts.AlertBurst
		if burst <= 0 {
			burst = 1
		}
		n.alerts = rate.NewLimiter(rate.Limit(opts.AlertsPerMinute/60), burst)
	}
	return n
}

func (n *LoggingNotifier) SendEmailVerification(_ context.Context, user domain.User, token string) error {
	fields := []zap.Field{
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)),
	}
	if n.exposeTokens {
		fields = append(fields, zap.String("dev_token", token))
	}

	n.logger.Info("dispatch email verification", fields...)
	return nil
}

func (n *LoggingNotifier) SendPasswordReset(_ context.Context, user domain.User, token string) error {
	fields := []zap.Field{
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)),
	}
	if n.exposeTokens {
		fields = append(fields, zap.String("dev_token", token))
	}

	n.logger.Info("dispatch password reset", fields...)
	return nil
}

func (n *LoggingNotifier) SendPasswordChanged(_ context.Context, user domain.User) error {
	n.logger.Info("dispatch password changed notice",
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)),
	)
	return nil
}

// SendSecurityAlert drops notifications above the configured rate. Critical alerts are never dropped.
func (n *LoggingNotifier) SendSecurityAlert(_ context.Context, alert domain.SecurityAlert) error {
	if n.alerts != nil && alert.Severity != domain.SeverityCritical && !n.alerts.Allow() {
		n.logger.Debug("alert notification throttled",
			zap.String("alert_id", alert.ID),
			zap.String("alert_type", alert.Type),
		)
		return nil
	}

	n.logger.Warn("dispatch security alert",
		zap.String("alert_id", alert.ID),
		zap.String("alert_type", alert.Type),
		zap.String("severity", string(alert.Severity)),
		zap.String("message", alert.Message),
	)
	return nil
}

func (n *LoggingNotifier) SendPrivacyRequestUpdate(_ context.Context, request domain.PrivacyRequest) error {
	n.logger.Info("dispatch privacy request update",
		zap.String("request_id", request.ID),
		zap.String("user_id", request.UserID),
		zap.String("type", string(request.Type)),
		zap.String("status", string(request.Status)),
	)
	return nil
}

var _ port.Notifier = (*LoggingNotifier)(nil)
