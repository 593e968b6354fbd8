package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
)

const defaultRestrictionPrefix = "processing:restricted"

// RestrictionStore persists processing-restriction flags so authorization checks see
// consent withdrawal without a database round-trip.
type RestrictionStore struct {
	client *red.Client
	prefix string
}

// NewRestrictionStore constructs a Redis-backed restriction cache.
func NewRestrictionStore(client *red.Client, keyPrefix string) *RestrictionStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultRestrictionPrefix
	}

	return &RestrictionStore{client: client, prefix: prefix}
}

// MarkRestricted flags the user with the supplied reason for ttl.
func (s *RestrictionStore) MarkRestricted(ctx context.Context, userID string, reason string, ttl time.Duration) error {
	key := s.key(userID)
	if key == "" {
		return fmt.Errorf("user id is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	value := strings.TrimSpace(reason)
	if value == "" {
		value = "processing_restricted"
	}

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set restriction: %w", err)
	}

	return nil
}

// IsRestricted reports whether processing is restricted and returns the stored reason.
func (s *RestrictionStore) IsRestricted(ctx context.Context, userID string) (bool, string, error) {
	key := s.key(userID)
	if key == "" {
		return false, "", fmt.Errorf("user id is required")
	}

	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("redis get restriction: %w", err)
	}

	return true, value, nil
}

// ClearRestriction lifts the flag. Clearing an absent flag is not an error.
func (s *RestrictionStore) ClearRestriction(ctx context.Context, userID string) error {
	key := s.key(userID)
	if key == "" {
		return fmt.Errorf("user id is required")
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete restriction: %w", err)
	}
	return nil
}

func (s *RestrictionStore) key(userID string) string {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", s.prefix, trimmed)
}

var _ port.RestrictionStore = (*RestrictionStore)(nil)
