package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/repository"
)

const defaultSessionPrefix = "session"

// SessionStore is the authoritative session cache. Each session lives under its own key with a TTL,
// and a per-user sorted set scored by expiry indexes the user's sessions.
type SessionStore struct {
	client *red.Client
	prefix string
}

// NewSessionStore constructs a Redis-backed session cache.
func NewSessionStore(client *red.Client, keyPrefix string) *SessionStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultSessionPrefix
	}
	return &SessionStore{client: client, prefix: prefix}
}

type cachedSession struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Role         string     `json:"role"`
	Capabilities []string   `json:"capabilities"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	LastSeen     time.Time  `json:"last_seen"`
	IPAddress    *string    `json:"ip_address,omitempty"`
	UserAgent    *string    `json:"user_agent,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokeReason *string    `json:"revoke_reason,omitempty"`
}

// Save writes the session with ttl and indexes it under its user. Sessions share one timeout, so the
// index TTL tracks the newest session.
func (s *SessionStore) Save(ctx context.Context, session domain.Session, ttl time.Duration) error {
	if session.ID == "" || session.UserID == "" {
		return fmt.Errorf("session id and user id are required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	payload, err := json.Marshal(cachedSession(session))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	userKey := s.userKey(session.UserID)
	_, err = s.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(session.ID), payload, ttl)
		pipe.ZAdd(ctx, userKey, red.Z{Score: float64(session.ExpiresAt.Unix()), Member: session.ID})
		pipe.Expire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}

	return nil
}

// Get returns the cached session or repository.ErrNotFound once the TTL has lapsed.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var cached cachedSession
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	session := domain.Session(cached)
	return &session, nil
}

// Delete removes a session. Deleting an absent session is not an error.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(sessionID))
		if session != nil {
			pipe.ZRem(ctx, s.userKey(session.UserID), sessionID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

// ListUserSessionIDs returns ids indexed for the user, including ones whose key may have expired.
func (s *SessionStore) ListUserSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.client.ZRange(ctx, s.userKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list user sessions: %w", err)
	}
	return ids, nil
}

// DeleteAllForUser removes every session for the user and returns the ids that were indexed.
func (s *SessionStore) DeleteAllForUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.ListUserSessionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		for _, id := range ids {
			pipe.Del(ctx, s.sessionKey(id))
		}
		pipe.Del(ctx, s.userKey(userID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis delete user sessions: %w", err)
	}

	return ids, nil
}

// PruneExpired drops index entries whose sessions expired before at. Session keys themselves expire by TTL.
func (s *SessionStore) PruneExpired(ctx context.Context, at time.Time) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	pattern := fmt.Sprintf("%s:user:*", s.prefix)
	max := strconv.FormatInt(at.Unix(), 10)

	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return removed, fmt.Errorf("redis scan session indexes: %w", err)
		}

		for _, key := range keys {
			n, err := s.client.ZRemRangeByScore(ctx, key, "-inf", "("+max).Result()
			if err != nil {
				return removed, fmt.Errorf("redis prune %s: %w", key, err)
			}
			removed += int(n)
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (s *SessionStore) sessionKey(id string) string {
	return fmt.Sprintf("%s:id:%s", s.prefix, id)
}

func (s *SessionStore) userKey(userID string) string {
	return fmt.Sprintf("%s:user:%s", s.prefix, userID)
}

var _ port.SessionCache = (*SessionStore)(nil)
