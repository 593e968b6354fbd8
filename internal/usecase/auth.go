package usecase

import (
	"context"
	"encoding/json"
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
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/telemetry"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/repository"
)

const (
	defaultVerificationTTL  = 48 * time.Hour
	verificationTokenBytes  = 32
	registrationSource      = "registration"
	loginOutcomeSuccess     = "success"
	loginOutcomeFailure     = "failure"
	loginOutcomeLocked      = "locked"
	failureUnknownAccount   = "unknown_account"
	failureBadPassword      = "invalid_password"
	failureAccountDisabled  = "account_disabled"
	failureLockoutActive    = "lockout_active"
	failureMalformedAccount = "malformed_identifier"
)

var (
	// ErrInvalidCredentials is the single outcome for every failed login.
	ErrInvalidCredentials = domain.NewError(domain.KindAuthentication, "invalid_credentials", "authentication required")
	// ErrAccountLocked is returned while a lockout is active. It renders like any other authentication failure.
	ErrAccountLocked = domain.NewError(domain.KindAuthentication, "account_locked", "authentication required")
	// ErrEmailTaken indicates a registration for an address that already has an account.
	ErrEmailTaken = domain.NewError(domain.KindConflict, "email_taken", "an account with this email already exists")
	// ErrConsentRequired indicates the jurisdiction requires processing consent at registration.
	ErrConsentRequired = domain.ValidationError("consent_required", "processing consent is required", map[string]string{"consent_given": "required"})
	// ErrVerificationTokenInvalid covers unknown, used and expired verification tokens.
	ErrVerificationTokenInvalid = domain.ValidationError("invalid_verification_token", "verification token is invalid or expired", map[string]string{"token": "invalid or expired"})
	// ErrUserNotFound indicates the user id is unknown.
	ErrUserNotFound = domain.NewError(domain.KindNotFound, "user_not_found", "user not found")
)

// AuthDeps groups the collaborators of AuthService.
type AuthDeps struct {
	Users    port.UserRepository
	Tokens   port.TokenRepository
	Tx       port.Transactor
	Hasher   port.PasswordHasher
	Policy   port.PasswordPolicyValidator
	Cipher   port.FieldCipher
	Sessions *SessionService
	Access   *TokenService
	Attempts *LoginAttemptService
	Consents *ConsentService
	Audit    port.AuditLogger
	Notifier port.Notifier
	Metrics  *telemetry.Metrics
	Logger   *zap.Logger
}

// AuthService coordinates registration, login and account state.
type AuthService struct {
	users           port.UserRepository
	tokens          port.TokenRepository
	tx              port.Transactor
	hasher          port.PasswordHasher
	policy          port.PasswordPolicyValidator
	cipher          port.FieldCipher
	sessions        *SessionService
	access          *TokenService
	attempts        *LoginAttemptService
	consents        *ConsentService
	audit           port.AuditLogger
	notifier        port.Notifier
	metrics         *telemetry.Metrics
	logger          *zap.Logger
	verificationTTL time.Duration
	now             func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(deps AuthDeps, cfg config.SessionSettings) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := deps.Policy
	if policy == nil {
		policy = security.NewPasswordPolicy(security.DefaultPasswordPolicyConfig())
	}
	ttl := cfg.VerificationTTL
	if ttl <= 0 {
		ttl = defaultVerificationTTL
	}

	return &AuthService{
		users:           deps.Users,
		tokens:          deps.Tokens,
		tx:              deps.Tx,
		hasher:          deps.Hasher,
		policy:          policy,
		cipher:          deps.Cipher,
		sessions:        deps.Sessions,
		access:          deps.Access,
		attempts:        deps.Attempts,
		consents:        deps.Consents,
		audit:           deps.Audit,
		notifier:        deps.Notifier,
		metrics:         deps.Metrics,
		logger:          logger,
		verificationTTL: ttl,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// RegisterInput captures a self-service registration.
type RegisterInput struct {
	Email            string
	Password         string
	FirstName        string
	LastName         string
	Company          string
	Phone            string
	Jurisdiction     string
	ConsentGiven     bool
	MarketingConsent bool
	IP               string
	UserAgent        string
}

// RegisterResult carries the created account. VerificationToken is the raw token handed to the notifier.
type RegisterResult struct {
	User              domain.User
	VerificationToken string
}

// Register creates a pending account with its verification token and consent decisions in one transaction.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	email, err := security.NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}

	firstName := security.SanitizeInput(in.FirstName)
	lastName := security.SanitizeInput(in.LastName)
	company := security.SanitizeInput(in.Company)

	if err := validatePassword(s.policy, in.Password, domain.PasswordContext{Email: email, FirstName: firstName, LastName: lastName}); err != nil {
		return nil, err
	}

	profile := RegionalCompliance(in.Jurisdiction)
	if profile.ConsentRequired && !in.ConsentGiven {
		return nil, ErrConsentRequired
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	phone, err := encryptField(s.cipher, security.SanitizeInput(in.Phone))
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := domain.User{
		ID:                uuid.NewString(),
		Email:             email,
		PasswordHash:      hash,
		PasswordAlgo:      security.PasswordAlgoArgon2id,
		Role:              domain.RoleUser,
		Status:            domain.UserStatusPending,
		FirstName:         stringPtrOrNil(firstName),
		LastName:          stringPtrOrNil(lastName),
		Company:           stringPtrOrNil(company),
		Phone:             phone,
		Jurisdiction:      profile.Code,
		RegisteredAt:      now,
		PasswordChangedAt: now,
	}

	raw, err := security.GenerateSecureToken(verificationTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}
	verification := domain.VerificationToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: security.HashToken(raw),
		CreatedAt: now,
		ExpiresAt: now.Add(s.verificationTTL),
	}

	consents := s.registrationConsents(user.ID, in)

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx port.TxScope) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		if err := tx.Users().AddPasswordHistory(ctx, domain.UserPasswordHistory{
			ID:           uuid.NewString(),
			UserID:       user.ID,
			PasswordHash: hash,
			SetAt:        now,
		}); err != nil {
			return fmt.Errorf("store password history: %w", err)
		}
		if err := tx.Tokens().CreateVerification(ctx, verification); err != nil {
			return fmt.Errorf("store verification token: %w", err)
		}
		for _, record := range consents {
			if err := tx.Consents().Upsert(ctx, record); err != nil {
				return fmt.Errorf("store consent: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("register user: %w", err)
	}

	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		Type:   domain.EventUserRegistered,
		UserID: &user.ID,
		Risk:   domain.RiskLow,
		Payload: map[string]any{
			"jurisdiction":  user.Jurisdiction,
			"consent_given": in.ConsentGiven,
		},
		IPAddress: stringPtrOrNil(in.IP),
	})

	if s.notifier != nil {
		if err := s.notifier.SendEmailVerification(ctx, user, raw); err != nil {
			s.logger.Warn("failed to send verification email", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	return &RegisterResult{User: user.Sanitized(), VerificationToken: raw}, nil
}

func (s *AuthService) registrationConsents(userID string, in RegisterInput) []domain.ConsentRecord {
	if s.consents == nil {
		return nil
	}
	decisions := []ConsentInput{
		{UserID: userID, Type: domain.ConsentProcessing, Given: in.ConsentGiven, Source: registrationSource, IPAddress: in.IP},
	}
	if in.MarketingConsent {
		decisions = append(decisions, ConsentInput{UserID: userID, Type: domain.ConsentMarketing, Given: true, Source: registrationSource, IPAddress: in.IP})
	}

	records := make([]domain.ConsentRecord, 0, len(decisions))
	for _, d := range decisions {
		records = append(records, s.consents.newRecord(d))
	}
	return records
}

// LoginInput captures an authentication attempt.
type LoginInput struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	User    domain.User
	Session domain.Session
	Token   IssuedToken
}

// Authenticate verifies credentials under the lockout policy and opens a session. Every failure is
// reported as the same authentication error.
func (s *AuthService) Authenticate(ctx context.Context, in LoginInput) (*LoginResult, error) {
	identifier := normalizeIdentifier(in.Email)
	if identifier == "" || in.Password == "" {
		return nil, ErrInvalidCredentials
	}

	status, err := s.attempts.CheckLoginAttempts(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if !status.Allowed {
		s.metrics.ObserveLogin(loginOutcomeLocked)
		recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
			Type:      domain.EventLoginFailed,
			Risk:      domain.RiskMedium,
			Payload:   failedLoginPayload(identifier, failureLockoutActive),
			IPAddress: stringPtrOrNil(in.IP),
		})
		return nil, ErrAccountLocked
	}

	email, err := security.NormalizeEmail(identifier)
	if err != nil {
		return nil, s.failLogin(ctx, identifier, nil, failureMalformedAccount, in.IP)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, s.failLogin(ctx, identifier, nil, failureUnknownAccount, in.IP)
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, s.failLogin(ctx, identifier, user, failureBadPassword, in.IP)
	}
	if !user.CanAuthenticate() {
		return nil, s.failLogin(ctx, identifier, user, failureAccountDisabled, in.IP)
	}

	if _, err := s.attempts.RecordLoginAttempt(ctx, identifier, true); err != nil {
		s.logger.Warn("failed to reset login attempts", zap.Error(err))
	}

	session, err := s.sessions.CreateSession(ctx, user.ID, user.Role, domain.CapabilitiesForRole(user.Role), domain.SessionMetadata{
		IPAddress: in.IP,
		UserAgent: in.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	token, err := s.access.IssueAccessToken(session)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to record last login", zap.String("user_id", user.ID), zap.Error(err))
	}
	user.LastLogin = &now

	s.metrics.ObserveLogin(loginOutcomeSuccess)
	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		Type:      domain.EventLoginSucceeded,
		UserID:    &user.ID,
		SessionID: &session.ID,
		Risk:      domain.RiskLow,
		IPAddress: stringPtrOrNil(in.IP),
	})

	return &LoginResult{User: user.Sanitized(), Session: session, Token: token}, nil
}

// failLogin counts the failure and, when it starts a lockout for a known account, revokes the
// account's sessions.
func (s *AuthService) failLogin(ctx context.Context, identifier string, user *domain.User, reason, ip string) error {
	s.metrics.ObserveLogin(loginOutcomeFailure)

	event := domain.AuditEvent{
		Type:      domain.EventLoginFailed,
		Risk:      domain.RiskMedium,
		Payload:   failedLoginPayload(identifier, reason),
		IPAddress: stringPtrOrNil(ip),
	}
	if user != nil {
		event.UserID = &user.ID
	}
	recordAudit(ctx, s.audit, s.logger, event)

	status, err := s.attempts.RecordLoginAttempt(ctx, identifier, false)
	if err != nil {
		s.logger.Error("failed to record login failure", zap.Error(err))
		return ErrInvalidCredentials
	}
	if status.Allowed {
		return ErrInvalidCredentials
	}

	payload := map[string]any{"reason": "too_many_failed_attempts"}
	if status.LockoutExpiresAt != nil {
		payload["lockout_until"] = status.LockoutExpiresAt.Format(time.RFC3339)
	}
	locked := domain.AuditEvent{
		Type:      domain.EventAccountLocked,
		Risk:      domain.RiskHigh,
		Payload:   payload,
		IPAddress: stringPtrOrNil(ip),
	}

	if user != nil {
		locked.UserID = &user.ID
		revoked, err := s.sessions.RevokeAllSessions(ctx, user.ID, RevokeReasonAccountLocked)
		if err != nil {
			s.logger.Error("failed to revoke sessions on lockout", zap.String("user_id", user.ID), zap.Error(err))
		}
		payload["sessions_revoked"] = revoked
	}
	recordAudit(ctx, s.audit, s.logger, locked)

	return ErrInvalidCredentials
}

// VerifyEmail consumes a verification token and activates a pending account.
func (s *AuthService) VerifyEmail(ctx context.Context, rawToken string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return ErrVerificationTokenInvalid
	}

	token, err := s.tokens.GetVerificationByHash(ctx, security.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrVerificationTokenInvalid
		}
		return fmt.Errorf("lookup verification token: %w", err)
	}

	now := s.now()
	if !token.Usable(now) {
		return ErrVerificationTokenInvalid
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx port.TxScope) error {
		if err := tx.Tokens().ConsumeVerification(ctx, token.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrVerificationTokenInvalid
			}
			return fmt.Errorf("consume verification token: %w", err)
		}
		if err := tx.Users().MarkEmailVerified(ctx, token.UserID, now); err != nil {
			return fmt.Errorf("mark email verified: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		Type:   domain.EventEmailVerified,
		UserID: &token.UserID,
		Risk:   domain.RiskLow,
	})
	return nil
}

// Logout ends the caller's current session.
func (s *AuthService) Logout(ctx context.Context, userID, sessionID string) error {
	if err := s.sessions.RevokeSession(ctx, sessionID, RevokeReasonLogout); err != nil {
		return err
	}
	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		Type:      domain.EventLogout,
		UserID:    stringPtrOrNil(userID),
		SessionID: stringPtrOrNil(sessionID),
		Risk:      domain.RiskLow,
	})
	return nil
}

// LogoutAll ends every session of the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) (int, error) {
	revoked, err := s.sessions.RevokeAllSessions(ctx, userID, RevokeReasonLogoutAll)
	if err != nil {
		return 0, err
	}
	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		Type:    domain.EventLogout,
		UserID:  stringPtrOrNil(userID),
		Risk:    domain.RiskLow,
		Payload: map[string]any{"scope": "all", "sessions_revoked": revoked},
	})
	return revoked, nil
}

// SetAccountLock toggles the administrative lock. Locking revokes every session in the same
// transaction as the flag update.
func (s *AuthService) SetAccountLock(ctx context.Context, userID string, locked bool) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrUserNotFound
	}

	var revokedIDs []string
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx port.TxScope) error {
		if err := tx.Users().SetLocked(ctx, userID, locked); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("set account lock: %w", err)
		}
		if !locked {
			return nil
		}
		ids, _, err := s.sessions.revokeAll(ctx, tx.Sessions(), userID, RevokeReasonAccountLocked)
		revokedIDs = ids
		return err
	})
	if err != nil {
		return err
	}

	if locked {
		s.sessions.announceRevocations(ctx, userID, revokedIDs, RevokeReasonAccountLocked)
		recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
			Type:    domain.EventAccountLocked,
			UserID:  &userID,
			Risk:    domain.RiskHigh,
			Payload: map[string]any{"reason": "administrative", "sessions_revoked": len(revokedIDs)},
		})
	}
	return nil
}

// Profile returns the sanitized account with encrypted fields opened.
func (s *AuthService) Profile(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}

	phone, err := decryptField(s.cipher, user.Phone)
	if err != nil {
		return domain.User{}, err
	}
	user.Phone = phone
	return user.Sanitized(), nil
}

// encryptField seals a non-empty value and returns its stored JSON form.
func encryptField(cipher port.FieldCipher, value string) (*string, error) {
	if value == "" {
		return nil, nil
	}
	sealed, err := cipher.Encrypt(value)
	if err != nil {
		return nil, fmt.Errorf("encrypt field: %w", err)
	}
	encoded, err := json.Marshal(sealed)
	if err != nil {
		return nil, fmt.Errorf("encode encrypted field: %w", err)
	}
	stored := string(encoded)
	return &stored, nil
}

// decryptField opens a value produced by encryptField. Anonymized placeholders pass through unchanged.
func decryptField(cipher port.FieldCipher, stored *string) (*string, error) {
	if stored == nil || *stored == "" {
		return stored, nil
	}
	var sealed port.EncryptedField
	if err := json.Unmarshal([]byte(*stored), &sealed); err != nil || sealed.Ciphertext == "" {
		return stored, nil
	}
	plain, err := cipher.Decrypt(sealed)
	if err != nil {
		return nil, err
	}
	return &plain, nil
}
