package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/telemetry"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/repository"
)

const defaultSessionTimeout = 24 * time.Hour

// Revocation reasons recorded on the session mirror and in revocation events.
const (
	RevokeReasonLogout         = "user_logout"
	RevokeReasonLogoutAll      = "global_signout"
	RevokeReasonPasswordChange = "password_change"
	RevokeReasonPasswordReset  = "password_reset"
	RevokeReasonAccountLocked  = "account_locked"
	RevokeReasonErasure        = "data_erasure"
	RevokeReasonExpired        = "expired"
)

// ErrSessionNotFound is the not-authenticated outcome for unknown, revoked or expired sessions.
var ErrSessionNotFound = domain.NewError(domain.KindAuthentication, "session_not_found", "authentication required")

// SessionService owns session lifecycle. The cache copy decides liveness; the relational
// mirror keeps the audit trail.
type SessionService struct {
	cache   port.SessionCache
	mirror  port.SessionRepository
	events  port.EventPublisher
	metrics *telemetry.Metrics
	logger  *zap.Logger
	ttl     time.Duration
	now     func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(cache port.SessionCache, mirror port.SessionRepository, events port.EventPublisher, ttl time.Duration, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = defaultSessionTimeout
	}
	return &SessionService{
		cache:  cache,
		mirror: mirror,
		events: events,
		logger: logger,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *SessionService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithMetrics attaches revocation counters.
func (s *SessionService) WithMetrics(metrics *telemetry.Metrics) *SessionService {
	s.metrics = metrics
	return s
}

// TTL returns the configured session timeout.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// CreateSession opens a session bounded by the configured timeout.
func (s *SessionService) CreateSession(ctx context.Context, userID, role string, capabilities []string, meta domain.SessionMetadata) (domain.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Session{}, fmt.Errorf("user id is required")
	}

	now := s.now()
	session := domain.Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		Role:         role,
		Capabilities: append([]string(nil), capabilities...),
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
		LastSeen:     now,
		IPAddress:    stringPtrOrNil(meta.IPAddress),
		UserAgent:    stringPtrOrNil(meta.UserAgent),
	}

	if err := s.mirror.Create(ctx, session); err != nil {
		return domain.Session{}, fmt.Errorf("mirror session: %w", err)
	}
	if err := s.cache.Save(ctx, session, s.ttl); err != nil {
		return domain.Session{}, fmt.Errorf("cache session: %w", err)
	}

	return session, nil
}

// ValidateSession returns the live session or ErrSessionNotFound. A record found past its
// absolute expiry is purged from both stores before reporting not found.
func (s *SessionService) ValidateSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	session, err := s.cache.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	if session.IsActive(s.now()) {
		return session, nil
	}

	if err := s.cache.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("failed to purge expired session from cache", zap.String("session_id", sessionID), zap.Error(err))
	}
	if err := s.mirror.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("failed to purge expired session mirror", zap.String("session_id", sessionID), zap.Error(err))
	}
	return nil, ErrSessionNotFound
}

// RevokeSession ends a single session. Revoking an unknown or already revoked session succeeds.
func (s *SessionService) RevokeSession(ctx context.Context, sessionID, reason string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	reason = chooseRevocationReason(reason, RevokeReasonLogout)

	var userID string
	var ip *string
	cached, err := s.cache.Get(ctx, sessionID)
	switch {
	case err == nil:
		userID = cached.UserID
		ip = cached.IPAddress
	case !errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("lookup session: %w", err)
	}

	if err := s.cache.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete cached session: %w", err)
	}
	if err := s.mirror.Revoke(ctx, sessionID, reason, s.now()); err != nil {
		return fmt.Errorf("revoke session mirror: %w", err)
	}

	if userID != "" {
		s.metrics.ObserveSessionsRevoked(reason, 1)
		s.publishRevoked(ctx, sessionID, userID, reason, ip)
	}
	return nil
}

// RevokeAllSessions ends every session of the user and returns how many were live.
func (s *SessionService) RevokeAllSessions(ctx context.Context, userID, reason string) (int, error) {
	reason = chooseRevocationReason(reason, RevokeReasonLogoutAll)
	ids, count, err := s.revokeAll(ctx, s.mirror, userID, reason)
	if err != nil {
		return 0, err
	}
	s.announceRevocations(ctx, userID, ids, reason)
	return count, nil
}

// revokeAll clears the cache and the supplied mirror. Callers running inside a transaction pass the
// transaction-bound mirror and announce the revocations after commit.
func (s *SessionService) revokeAll(ctx context.Context, mirror port.SessionRepository, userID, reason string) ([]string, int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, 0, fmt.Errorf("user id is required")
	}

	ids, err := s.cache.DeleteAllForUser(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("delete cached sessions: %w", err)
	}

	count, err := mirror.RevokeAllForUser(ctx, userID, reason, s.now())
	if err != nil {
		return nil, 0, fmt.Errorf("revoke session mirror: %w", err)
	}

	if len(ids) > count {
		count = len(ids)
	}
	return ids, count, nil
}

func (s *SessionService) announceRevocations(ctx context.Context, userID string, ids []string, reason string) {
	s.metrics.ObserveSessionsRevoked(reason, len(ids))
	for _, id := range ids {
		s.publishRevoked(ctx, id, userID, reason, nil)
	}
}

func (s *SessionService) publishRevoked(ctx context.Context, sessionID, userID, reason string, ip *string) {
	if s.events == nil {
		return
	}
	event := domain.SessionRevokedEvent{
		EventID:   uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		RevokedAt: s.now(),
		Reason:    reason,
		IPAddress: ip,
	}
	if err := s.events.PublishSessionRevoked(ctx, event); err != nil {
		s.logger.Warn("failed to publish session revoked event", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func chooseRevocationReason(candidate, fallback string) string {
	if trimmed := strings.TrimSpace(candidate); trimmed != "" {
		return trimmed
	}
	return fallback
}

func stringPtrOrNil(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
