package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
)

const defaultLoginAttemptPrefix = "login:attempts"

// recordFailureScript increments the counter and stamps the lockout once attempts reach the limit.
// An elapsed lockout is cleared first so the next window starts from zero.
var recordFailureScript = red.NewScript(`
local key = KEYS[1]
local max_attempts = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])

local lock = tonumber(redis.call('HGET', key, 'lockout_until') or '0')
if lock > 0 and lock <= now_ms then
  redis.call('DEL', key)
  lock = 0
end

local attempts = redis.call('HINCRBY', key, 'attempts', 1)
redis.call('HSET', key, 'last_attempt', now_ms)
if lock == 0 and attempts >= max_attempts then
  lock = now_ms + window_ms
  redis.call('HSET', key, 'lockout_until', lock)
end
redis.call('PEXPIRE', key, window_ms)

return {attempts, now_ms, lock}
`)

// checkScript returns the current record, deleting it when its lockout has elapsed.
var checkScript = red.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])

local vals = redis.call('HMGET', key, 'attempts', 'last_attempt', 'lockout_until')
local lock = tonumber(vals[3] or '0')
if lock > 0 and lock <= now_ms then
  redis.call('DEL', key)
  return {0, 0, 0}
end

return {tonumber(vals[1] or '0'), tonumber(vals[2] or '0'), lock}
`)

// LoginAttemptStore keeps failed-login counters per identifier in Redis hashes.
type LoginAttemptStore struct {
	client *red.Client
	prefix string
}

// NewLoginAttemptStore constructs a Redis-backed login attempt store.
func NewLoginAttemptStore(client *red.Client, keyPrefix string) *LoginAttemptStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultLoginAttemptPrefix
	}
	return &LoginAttemptStore{client: client, prefix: prefix}
}

func (s *LoginAttemptStore) RecordFailure(ctx context.Context, identifier string, maxAttempts int, window time.Duration, at time.Time) (domain.LoginAttemptRecord, error) {
	if identifier == "" {
		return domain.LoginAttemptRecord{}, fmt.Errorf("identifier is required")
	}
	if maxAttempts <= 0 || window <= 0 {
		return domain.LoginAttemptRecord{}, fmt.Errorf("max attempts and window must be positive")
	}

	values, err := recordFailureScript.Run(ctx, s.client, []string{s.key(identifier)},
		maxAttempts, window.Milliseconds(), at.UnixMilli(),
	).Int64Slice()
	if err != nil {
		return domain.LoginAttemptRecord{}, fmt.Errorf("redis record login failure: %w", err)
	}

	return toAttemptRecord(identifier, values)
}

func (s *LoginAttemptStore) Check(ctx context.Context, identifier string, at time.Time) (domain.LoginAttemptRecord, error) {
	if identifier == "" {
		return domain.LoginAttemptRecord{}, fmt.Errorf("identifier is required")
	}

	values, err := checkScript.Run(ctx, s.client, []string{s.key(identifier)}, at.UnixMilli()).Int64Slice()
	if err != nil {
		return domain.LoginAttemptRecord{}, fmt.Errorf("redis check login attempts: %w", err)
	}

	return toAttemptRecord(identifier, values)
}

// Reset clears the counter after a successful login.
func (s *LoginAttemptStore) Reset(ctx context.Context, identifier string) error {
	if err := s.client.Del(ctx, s.key(identifier)).Err(); err != nil {
		return fmt.Errorf("redis reset login attempts: %w", err)
	}
	return nil
}

func toAttemptRecord(identifier string, values []int64) (domain.LoginAttemptRecord, error) {
	if len(values) != 3 {
		return domain.LoginAttemptRecord{}, fmt.Errorf("unexpected script reply length %d", len(values))
	}

	record := domain.LoginAttemptRecord{
		Identifier: identifier,
		Attempts:   int(values[0]),
	}
	if values[1] > 0 {
		record.LastAttemptAt = time.UnixMilli(values[1]).UTC()
	}
	if values[2] > 0 {
		lockout := time.UnixMilli(values[2]).UTC()
		record.LockoutExpiresAt = &lockout
	}
	return record, nil
}

func (s *LoginAttemptStore) key(identifier string) string {
	return fmt.Sprintf("%s:%s", s.prefix, strings.ToLower(strings.TrimSpace(identifier)))
}

var _ port.LoginAttemptStore = (*LoginAttemptStore)(nil)
