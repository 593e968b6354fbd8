package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/config"
)

const (
	defaultMaxLoginAttempts = 5
	defaultLockoutWindow    = 15 * time.Minute
)

// LoginAttemptService enforces per-identifier lockout on repeated authentication failures.
type LoginAttemptService struct {
	store       port.LoginAttemptStore
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

// NewLoginAttemptService constructs a LoginAttemptService.
func NewLoginAttemptService(store port.LoginAttemptStore, cfg config.LockoutSettings) *LoginAttemptService {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxLoginAttempts
	}
	window := cfg.Window
	if window <= 0 {
		window = defaultLockoutWindow
	}
	return &LoginAttemptService{
		store:       store,
		maxAttempts: maxAttempts,
		window:      window,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *LoginAttemptService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// CheckLoginAttempts reports whether the identifier may attempt authentication. An elapsed lockout is
// reset by the store in the same round-trip, so the caller sees a full attempt budget.
func (s *LoginAttemptService) CheckLoginAttempts(ctx context.Context, identifier string) (domain.LoginAttemptStatus, error) {
	identifier = normalizeIdentifier(identifier)
	if identifier == "" {
		return domain.LoginAttemptStatus{}, fmt.Errorf("identifier is required")
	}

	record, err := s.store.Check(ctx, identifier, s.now())
	if err != nil {
		return domain.LoginAttemptStatus{}, fmt.Errorf("check login attempts: %w", err)
	}
	return s.status(record), nil
}

// RecordLoginAttempt clears the counter on success and increments it on failure.
func (s *LoginAttemptService) RecordLoginAttempt(ctx context.Context, identifier string, success bool) (domain.LoginAttemptStatus, error) {
	identifier = normalizeIdentifier(identifier)
	if identifier == "" {
		return domain.LoginAttemptStatus{}, fmt.Errorf("identifier is required")
	}

	if success {
		if err := s.store.Reset(ctx, identifier); err != nil {
			return domain.LoginAttemptStatus{}, fmt.Errorf("reset login attempts: %w", err)
		}
		return domain.LoginAttemptStatus{Allowed: true, RemainingAttempts: s.maxAttempts}, nil
	}

	record, err := s.store.RecordFailure(ctx, identifier, s.maxAttempts, s.window, s.now())
	if err != nil {
		return domain.LoginAttemptStatus{}, fmt.Errorf("record login failure: %w", err)
	}
	return s.status(record), nil
}

func (s *LoginAttemptService) status(record domain.LoginAttemptRecord) domain.LoginAttemptStatus {
	now := s.now()
	if record.LockoutExpiresAt != nil && now.Before(*record.LockoutExpiresAt) {
		until := *record.LockoutExpiresAt
		return domain.LoginAttemptStatus{Allowed: false, RemainingAttempts: 0, LockoutExpiresAt: &until}
	}

	remaining := s.maxAttempts - record.Attempts
	if remaining < 0 {
		remaining = 0
	}
	return domain.LoginAttemptStatus{Allowed: remaining > 0, RemainingAttempts: remaining}
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
