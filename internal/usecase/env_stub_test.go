package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/config"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/security"
)

const testPassword = "correct-horse-battery"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// testEnv wires every service over in-memory stores sharing one clock.
type testEnv struct {
	clock        *testClock
	store        *memoryStore
	cache        *memoryCache
	attempts     *memoryAttempts
	restrictions *memoryRestrictions
	counter      *memoryCounter
	ring         *memoryRing
	publisher    *recordingPublisher
	notifier     *recordingNotifier
	cipher       *security.AESFieldCipher
	issuer       *security.JWTIssuer

	audit      *AuditService
	sessions   *SessionService
	tokens     *TokenService
	lockout    *LoginAttemptService
	consents   *ConsentService
	auth       *AuthService
	passwords  *PasswordResetService
	privacy    *PrivacyService
	retention  *RetentionService
	monitor    *SecurityMonitor
	compliance *ComplianceService
}

type envOption func(*envSettings)

type envSettings struct {
	audit     config.AuditSettings
	lockout   config.LockoutSettings
	session   config.SessionSettings
	consent   config.ConsentSettings
	privacy   config.PrivacySettings
	retention config.RetentionSettings
	checks    map[string]HealthCheck
}

func withAuditSettings(cfg config.AuditSettings) envOption {
	return func(s *envSettings) { s.audit = cfg }
}

func withRetentionBatch(size int) envOption {
	return func(s *envSettings) { s.retention.BatchSize = size }
}

func withHealthChecks(checks map[string]HealthCheck) envOption {
	return func(s *envSettings) { s.checks = checks }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	settings := envSettings{
		audit:   config.AuditSettings{FailedLoginThreshold: 10, FailedLoginWindow: 15 * time.Minute, RecentBufferSize: 50},
		lockout: config.LockoutSettings{MaxAttempts: 5, Window: 15 * time.Minute},
		session: config.SessionSettings{Timeout: 24 * time.Hour, VerificationTTL: 48 * time.Hour, PasswordResetTTL: time.Hour, PasswordHistory: 3},
		consent: config.ConsentSettings{ValidityDays: 365, PolicyVersion: "2.1", RestrictionTTL: 30 * 24 * time.Hour},
		privacy: config.PrivacySettings{MaxPendingAge: 25 * 24 * time.Hour, ProcessingTimeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(&settings)
	}

	logger := zaptest.NewLogger(t)
	clock := newTestClock()

	keys, err := security.NewEphemeralKeyProvider("test-key")
	if err != nil {
		t.Fatalf("key provider: %v", err)
	}
	issuer, err := security.NewJWTIssuer(keys, "compliance-core", []string{"compliance-api"})
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	issuer.WithClock(clock.Now)

	cipher, err := security.NewAESFieldCipher("0123456789abcdef0123456789abcdef", "compliance-core:test")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}

	env := &testEnv{
		clock:        clock,
		store:        newMemoryStore(),
		cache:        newMemoryCache(clock.Now),
		attempts:     newMemoryAttempts(),
		restrictions: newMemoryRestrictions(),
		counter:      newMemoryCounter(),
		ring:         &memoryRing{size: settings.audit.RecentBufferSize},
		publisher:    &recordingPublisher{},
		notifier:     newRecordingNotifier(),
		cipher:       cipher,
		issuer:       issuer,
	}
	store := env.store

	env.audit = NewAuditService(AuditDeps{
		Events:    store.auditRepo(),
		Alerts:    store.alertRepo(),
		Recent:    env.ring,
		Publisher: env.publisher,
		Notifier:  env.notifier,
		Failures:  env.counter,
		Logger:    logger,
	}, settings.audit)
	env.audit.WithClock(clock.Now)

	env.sessions = NewSessionService(env.cache, store.sessionMirror(), env.publisher, settings.session.Timeout, logger)
	env.sessions.WithClock(clock.Now)

	env.tokens = NewTokenService(issuer, env.sessions, 15*time.Minute)
	env.tokens.WithClock(clock.Now)

	env.lockout = NewLoginAttemptService(env.attempts, settings.lockout)
	env.lockout.WithClock(clock.Now)

	env.consents = NewConsentService(store.consentRepo(), env.restrictions, env.audit, settings.consent, logger)
	env.consents.WithClock(clock.Now)

	env.auth = NewAuthService(AuthDeps{
		Users:    store.users(),
		Tokens:   store.tokens(),
		Tx:       store.transactor(),
		Hasher:   plainHasher{},
		Policy:   lengthPolicy{},
		Cipher:   cipher,
		Sessions: env.sessions,
		Access:   env.tokens,
		Attempts: env.lockout,
		Consents: env.consents,
		Audit:    env.audit,
		Notifier: env.notifier,
		Logger:   logger,
	}, settings.session)
	env.auth.WithClock(clock.Now)

	env.passwords = NewPasswordResetService(PasswordDeps{
		Users:    store.users(),
		Tokens:   store.tokens(),
		Tx:       store.transactor(),
		Hasher:   plainHasher{},
		Policy:   lengthPolicy{},
		Sessions: env.sessions,
		Events:   env.publisher,
		Notifier: env.notifier,
		Audit:    env.audit,
		Logger:   logger,
	}, settings.session)
	env.passwords.WithClock(clock.Now)

	env.privacy = NewPrivacyService(PrivacyDeps{
		Requests:  store.requestRepo(),
		Holds:     store.holdRepo(),
		Users:     store.users(),
		Mirror:    store.sessionMirror(),
		Responses: store.responseRepo(),
		Tx:        store.transactor(),
		Cipher:    cipher,
		Sessions:  env.sessions,
		Consents:  env.consents,
		Events:    env.publisher,
		Notifier:  env.notifier,
		Audit:     env.audit,
		Logger:    logger,
	}, settings.privacy)
	env.privacy.WithClock(clock.Now)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.privacy.Shutdown(ctx)
	})

	env.retention = NewRetentionService(RetentionDeps{
		Policies: store.policyRepo(),
		Jobs:     store.jobRepo(),
		Records:  store.retentionRows(),
		Tx:       store.transactor(),
		Mirror:   store.sessionMirror(),
		Cache:    env.cache,
		Events:   env.publisher,
		Audit:    env.audit,
		Alerts:   env.audit,
		Logger:   logger,
	}, settings.retention)
	env.retention.WithClock(clock.Now)

	env.monitor = NewSecurityMonitor(MonitorDeps{
		Events:   store.auditRepo(),
		Alerts:   store.alertRepo(),
		Reports:  store.reportRepo(),
		Requests: store.requestRepo(),
		Raiser:   env.audit,
		Checks:   settings.checks,
		Logger:   logger,
	}, settings.audit, settings.privacy)
	env.monitor.WithClock(clock.Now)

	env.compliance = NewComplianceService(ComplianceDeps{
		Stats:    store.statsRepo(),
		Events:   store.auditRepo(),
		Alerts:   store.alertRepo(),
		Jobs:     store.jobRepo(),
		Policies: store.policyRepo(),
		Records:  store.retentionRows(),
		Requests: store.requestRepo(),
		Reports:  store.reportRepo(),
		Audit:    env.audit,
		Logger:   logger,

		ConsentValidity: settings.consent.ConsentValidity(),
	}, settings.privacy.MaxPendingAge)
	env.compliance.WithClock(clock.Now)

	return env
}

// registerUser creates an EU account with processing consent and returns it.
func (e *testEnv) registerUser(t *testing.T, email string) domain.User {
	t.Helper()
	result, err := e.auth.Register(context.Background(), RegisterInput{
		Email:        email,
		Password:     testPassword,
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Phone:        "+254700123456",
		Jurisdiction: "EU",
		ConsentGiven: true,
		IP:           "203.0.113.7",
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return result.User
}

func (e *testEnv) login(t *testing.T, email string) *LoginResult {
	t.Helper()
	result, err := e.auth.Authenticate(context.Background(), LoginInput{Email: email, Password: testPassword, IP: "203.0.113.7"})
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return result
}
