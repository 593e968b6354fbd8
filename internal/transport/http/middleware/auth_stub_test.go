package middleware

import (
	"context"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
)

type stubAuthenticator struct {
	tokens map[string]*domain.Session
	err    error
	calls  int
}

func (s *stubAuthenticator) Authenticate(_ context.Context, raw string) (domain.AccessClaims, *domain.Session, error) {
	s.calls++
	if s.err != nil {
		return domain.AccessClaims{}, nil, s.err
	}
	session, ok := s.tokens[raw]
	if !ok {
		return domain.AccessClaims{}, nil, domain.ErrNotAuthenticated
	}
	return domain.AccessClaims{Subject: session.UserID, SessionID: session.ID, Role: session.Role}, session, nil
}

type stubRestrictions struct {
	restricted map[string]bool
	err        error
}

func (s *stubRestrictions) ProcessingRestricted(_ context.Context, userID string) error {
	if s.err != nil {
		return s.err
	}
	if s.restricted[userID] {
		return domain.NewError(domain.KindAuthorization, "processing_restricted", "restricted")
	}
	return nil
}
