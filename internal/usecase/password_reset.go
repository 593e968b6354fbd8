package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/config"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/security"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/repository"
)

const (
	defaultResetTTL        = time.Hour
	defaultPasswordHistory = 5
	resetTokenBytes        = 32
)

var (
	// ErrPasswordResetTokenInvalid covers unknown, used and expired reset tokens.
	ErrPasswordResetTokenInvalid = domain.ValidationError("invalid_reset_token", "password reset token is invalid or expired", map[string]string{"token": "invalid or expired"})
	// ErrCurrentPasswordInvalid indicates the supplied current password did not match.
	ErrCurrentPasswordInvalid = domain.NewError(domain.KindAuthentication, "invalid_credentials", "authentication required")
	// ErrPasswordReused indicates the new password matches the current or a recent password.
	ErrPasswordReused = domain.ValidationError("password_reused", "password was used recently", map[string]string{"password": "must differ from recent passwords"})
	// ErrPasswordRequired indicates an empty password.
	ErrPasswordRequired = domain.ValidationError("password_required", "password is required", map[string]string{"password": "required"})
)

// PasswordDeps groups the collaborators of PasswordResetService.
type PasswordDeps struct {
	Users    port.UserRepository
	Tokens   port.TokenRepository
	Tx       port.Transactor
	Hasher   port.PasswordHasher
	Policy   port.PasswordPolicyValidator
	Sessions *SessionService
	Events   port.EventPublisher
	Notifier port.Notifier
	Audit    port.AuditLogger
	Logger   *zap.Logger
}

// PasswordResetService changes and resets passwords. Every password change revokes all sessions
// of the user in the same transaction as the credential update.
type PasswordResetService struct {
	users        port.UserRepository
	tokens       port.TokenRepository
	tx           port.Transactor
	hasher       port.PasswordHasher
	policy       port.PasswordPolicyValidator
	sessions     *SessionService
	events       port.EventPublisher
	notifier     port.Notifier
	audit        port.AuditLogger
	logger       *zap.Logger
	resetTTL     time.Duration
	historyLimit int
	now          func() time.Time
}

// PasswordChangeInput captures the context required to update a password for an authenticated user.
type PasswordChangeInput struct {
	UserID          string
	CurrentPassword string
	NewPassword     string
	IP              string
	UserAgent       string
}

// PasswordChangeResult summarizes the outcome of a password change operation.
type PasswordChangeResult struct {
	UserID          string
	ChangedAt       time.Time
	SessionsRevoked int
}

// PasswordResetRequestInput encapsulates metadata for a password reset request.
type PasswordResetRequestInput struct {
	Email     string
	IP        string
	UserAgent string
}

// PasswordResetConfirmInput carries the payload to finalize a password reset.
type PasswordResetConfirmInput struct {
	Token       string
	NewPassword string
	IP          string
}

// ResetInitiationResult is empty when the email is unknown, so callers cannot tell the difference.
type ResetInitiationResult struct {
	UserID    string
	Token     string
	ExpiresAt time.Time
}

// NewPasswordResetService constructs a PasswordResetService.
func NewPasswordResetService(deps PasswordDeps, cfg config.SessionSettings) *PasswordResetService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := deps.Policy
	if policy == nil {
		policy = security.NewPasswordPolicy(security.DefaultPasswordPolicyConfig())
	}
	ttl := cfg.PasswordResetTTL
	if ttl <= 0 {
		ttl = defaultResetTTL
	}
	history := cfg.PasswordHistory
	if history <= 0 {
		history = defaultPasswordHistory
	}

	return &PasswordResetService{
		users:        deps.Users,
		tokens:       deps.Tokens,
		tx:           deps.Tx,
		hasher:       deps.Hasher,
		policy:       policy,
		sessions:     deps.Sessions,
		events:       deps.Events,
		notifier:     deps.Notifier,
		audit:        deps.Audit,
		logger:       logger,
		resetTTL:     ttl,
		historyLimit: history,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *PasswordResetService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// ChangePassword updates an authenticated user's password after validating the current credential.
func (s *PasswordResetService) ChangePassword(ctx context.Context, input PasswordChangeInput) (*PasswordChangeResult, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, domain.ErrNotAuthenticated
	}
	if input.CurrentPassword == "" || input.NewPassword == "" {
		return nil, ErrPasswordRequired
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotAuthenticated
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	matches, err := s.hasher.Verify(input.CurrentPassword, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify current password: %w", err)
	}
	if !matches {
		return nil, ErrCurrentPasswordInvalid
	}

	changedAt, revoked, err := s.applyNewPassword(ctx, *user, input.NewPassword, RevokeReasonPasswordChange, nil)
	if err != nil {
		return nil, err
	}

	s.announcePasswordChange(ctx, *user, userID, changedAt, revoked, domain.EventPasswordChanged, input.IP)

	return &PasswordChangeResult{UserID: user.ID, ChangedAt: changedAt, SessionsRevoked: revoked}, nil
}

// RequestPasswordReset issues a single-use reset token for a known email and hands it to the notifier.
// Unknown emails succeed silently.
func (s *PasswordResetService) RequestPasswordReset(ctx context.Context, input PasswordResetRequestInput) (*ResetInitiationResult, error) {
	email, err := security.NormalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &ResetInitiationResult{}, nil
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	raw, err := security.GenerateSecureToken(resetTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate reset token: %w", err)
	}

	now := s.now()
	token := domain.PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: security.HashToken(raw),
		IPAddress: stringPtrOrNil(input.IP),
		CreatedAt: now,
		ExpiresAt: now.Add(s.resetTTL),
	}
	if err := s.tokens.CreatePasswordReset(ctx, token); err != nil {
		return nil, fmt.Errorf("store reset token: %w", err)
	}

	if s.notifier != nil {
		if err := s.notifier.SendPasswordReset(ctx, *user, raw); err != nil {
			s.logger.Warn("failed to send password reset", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	return &ResetInitiationResult{UserID: user.ID, Token: raw, ExpiresAt: token.ExpiresAt}, nil
}

// ConfirmPasswordReset consumes the reset token and applies the new password in one transaction.
func (s *PasswordResetService) ConfirmPasswordReset(ctx context.Context, input PasswordResetConfirmInput) (*PasswordChangeResult, error) {
	raw := strings.TrimSpace(input.Token)
	if raw == "" {
		return nil, ErrPasswordResetTokenInvalid
	}
	if input.NewPassword == "" {
		return nil, ErrPasswordRequired
	}

	token, err := s.tokens.GetPasswordResetByHash(ctx, security.HashToken(raw))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPasswordResetTokenInvalid
		}
		return nil, fmt.Errorf("lookup reset token: %w", err)
	}
	if !token.Usable(s.now()) {
		return nil, ErrPasswordResetTokenInvalid
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPasswordResetTokenInvalid
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	consume := func(ctx context.Context, tx port.TxScope) error {
		if err := tx.Tokens().ConsumePasswordReset(ctx, token.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrPasswordResetTokenInvalid
			}
			return fmt.Errorf("consume reset token: %w", err)
		}
		return nil
	}

	changedAt, revoked, err := s.applyNewPassword(ctx, *user, input.NewPassword, RevokeReasonPasswordReset, consume)
	if err != nil {
		return nil, err
	}

	s.announcePasswordChange(ctx, *user, "password_reset", changedAt, revoked, domain.EventPasswordReset, input.IP)

	return &PasswordChangeResult{UserID: user.ID, ChangedAt: changedAt, SessionsRevoked: revoked}, nil
}

// applyNewPassword validates and stores the new credential. The password update, history entry,
// reset-token invalidation and session revocation commit together; extra runs first in the same
// transaction.
func (s *PasswordResetService) applyNewPassword(ctx context.Context, user domain.User, newPassword, reason string, extra func(context.Context, port.TxScope) error) (time.Time, int, error) {
	if err := validatePassword(s.policy, newPassword, passwordContext(user)); err != nil {
		return time.Time{}, 0, err
	}

	if same, err := s.hasher.Verify(newPassword, user.PasswordHash); err != nil {
		return time.Time{}, 0, fmt.Errorf("compare current password: %w", err)
	} else if same {
		return time.Time{}, 0, ErrPasswordReused
	}

	history, err := s.users.ListPasswordHistory(ctx, user.ID, s.historyLimit)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return time.Time{}, 0, fmt.Errorf("list password history: %w", err)
	}
	for _, entry := range history {
		reused, err := s.hasher.Verify(newPassword, entry.PasswordHash)
		if err != nil {
			return time.Time{}, 0, fmt.Errorf("compare password history: %w", err)
		}
		if reused {
			return time.Time{}, 0, ErrPasswordReused
		}
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("hash new password: %w", err)
	}

	changedAt := s.now()
	var revokedIDs []string
	revoked := 0

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx port.TxScope) error {
		if extra != nil {
			if err := extra(ctx, tx); err != nil {
				return err
			}
		}
		if err := tx.Users().UpdatePassword(ctx, user.ID, hashed, security.PasswordAlgoArgon2id, changedAt); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if err := tx.Users().AddPasswordHistory(ctx, domain.UserPasswordHistory{
			ID:           uuid.NewString(),
			UserID:       user.ID,
			PasswordHash: hashed,
			SetAt:        changedAt,
		}); err != nil {
			return fmt.Errorf("store password history: %w", err)
		}
		if _, err := tx.Tokens().InvalidatePasswordResets(ctx, user.ID); err != nil {
			return fmt.Errorf("invalidate reset tokens: %w", err)
		}

		ids, count, err := s.sessions.revokeAll(ctx, tx.Sessions(), user.ID, reason)
		if err != nil {
			return err
		}
		revokedIDs, revoked = ids, count
		return nil
	})
	if err != nil {
		return time.Time{}, 0, err
	}

	s.sessions.announceRevocations(ctx, user.ID, revokedIDs, reason)
	return changedAt, revoked, nil
}

func (s *PasswordResetService) announcePasswordChange(ctx context.Context, user domain.User, changedBy string, changedAt time.Time, revoked int, eventType, ip string) {
	if s.events != nil {
		event := domain.PasswordChangedEvent{
			EventID:         uuid.NewString(),
			UserID:          user.ID,
			ChangedAt:       changedAt,
			ChangedBy:       changedBy,
			SessionsRevoked: revoked,
		}
		if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
			s.logger.Warn("publish password changed event failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	if s.notifier != nil {
		if err := s.notifier.SendPasswordChanged(ctx, user); err != nil {
			s.logger.Warn("failed to send password changed notice", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		Type:      eventType,
		UserID:    &user.ID,
		Risk:      domain.RiskMedium,
		Payload:   map[string]any{"sessions_revoked": revoked},
		IPAddress: stringPtrOrNil(ip),
	})
}

func passwordContext(user domain.User) domain.PasswordContext {
	pc := domain.PasswordContext{Email: user.Email}
	if user.FirstName != nil {
		pc.FirstName = *user.FirstName
	}
	if user.LastName != nil {
		pc.LastName = *user.LastName
	}
	return pc
}

// validatePassword runs the policy and reports rejections as validation errors with field detail.
func validatePassword(policy port.PasswordPolicyValidator, password string, pc domain.PasswordContext) error {
	if password == "" {
		return ErrPasswordRequired
	}
	err := policy.Validate(password, pc)
	if err == nil {
		return nil
	}

	if domain.KindOf(err) == domain.KindValidation {
		return err
	}
	return fmt.Errorf("validate password: %w", err)
}
