package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
)

const defaultAccessTokenTTL = 15 * time.Minute

// IssuedToken is a signed access token bound to a session.
type IssuedToken struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	SessionID   string
}

// TokenService signs access tokens for sessions and resolves presented tokens back to live sessions.
type TokenService struct {
	issuer   port.TokenIssuer
	sessions *SessionService
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(issuer port.TokenIssuer, sessions *SessionService, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = defaultAccessTokenTTL
	}
	return &TokenService{
		issuer:   issuer,
		sessions: sessions,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *TokenService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// IssueAccessToken signs a token for the session. The token never outlives the session.
func (s *TokenService) IssueAccessToken(session domain.Session) (IssuedToken, error) {
	if strings.TrimSpace(session.ID) == "" {
		return IssuedToken{}, fmt.Errorf("session id is required")
	}

	now := s.now()
	ttl := s.ttl
	if remaining := session.ExpiresAt.Sub(now); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return IssuedToken{}, ErrSessionNotFound
	}

	token, err := s.issuer.Issue(domain.AccessClaims{
		Subject:      session.UserID,
		SessionID:    session.ID,
		Role:         session.Role,
		Capabilities: session.Capabilities,
	}, ttl)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("issue access token: %w", err)
	}

	return IssuedToken{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   now.Add(ttl),
		SessionID:   session.ID,
	}, nil
}

// Authenticate verifies a bearer token and returns its claims with the live session it names.
// Every failure is a not-authenticated error.
func (s *TokenService) Authenticate(ctx context.Context, raw string) (domain.AccessClaims, *domain.Session, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.AccessClaims{}, nil, domain.ErrNotAuthenticated
	}

	claims, err := s.issuer.Verify(raw)
	if err != nil {
		return domain.AccessClaims{}, nil, err
	}
	if claims.SessionID == "" {
		return domain.AccessClaims{}, nil, domain.ErrNotAuthenticated
	}

	session, err := s.sessions.ValidateSession(ctx, claims.SessionID)
	if err != nil {
		return domain.AccessClaims{}, nil, err
	}
	if session.UserID != claims.Subject {
		return domain.AccessClaims{}, nil, domain.ErrNotAuthenticated
	}

	return claims, session, nil
}
