package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
)

// SlidingWindowConfig defines configuration for a sliding window counter.
type SlidingWindowConfig struct {
	KeyPrefix string
	TTL       time.Duration
}

// SlidingWindowStore keeps event timestamps per identifier in Redis sorted sets. It backs the HTTP
// rate limiter and the real-time failed-login and data-access monitors.
type SlidingWindowStore struct {
	client *redis.Client
	cfg    SlidingWindowConfig
}

// NewSlidingWindowStore constructs a store using the provided Redis client and config.
func NewSlidingWindowStore(client *redis.Client, cfg SlidingWindowConfig) *SlidingWindowStore {
	return &SlidingWindowStore{client: client, cfg: cfg}
}

// RecordAttempt stores the timestamp and refreshes the key TTL.
func (r *SlidingWindowStore) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	key := r.key(identifier)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, member(at))
		if r.cfg.TTL > 0 {
			pipe.Expire(ctx, key, r.cfg.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record attempt: %w", err)
	}

	return nil
}

// Hit trims the window, records at and returns the count inside the window in one transaction.
func (r *SlidingWindowStore) Hit(ctx context.Context, identifier string, window time.Duration, at time.Time) (int, error) {
	if window <= 0 {
		return 0, errors.New("window must be positive")
	}

	key := r.key(identifier)
	var count *redis.IntCmd

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", score(at.Add(-window)))
		pipe.ZAdd(ctx, key, member(at))
		count = pipe.ZCount(ctx, key, score(at.Add(-window)), score(at))
		ttl := r.cfg.TTL
		if ttl < window {
			ttl = window
		}
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis hit: %w", err)
	}

	return int(count.Val()), nil
}

// CountAttempts returns how many attempts occurred within the window ending at reference.
func (r *SlidingWindowStore) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	if window <= 0 {
		return 0, errors.New("window must be positive")
	}

	count, err := r.client.ZCount(ctx, r.key(identifier), score(reference.Add(-window)), score(reference)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcount: %w", err)
	}

	return int(count), nil
}

// TrimWindow removes attempts older than the window relative to reference.
func (r *SlidingWindowStore) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	if window <= 0 {
		return errors.New("window must be positive")
	}

	if err := r.client.ZRemRangeByScore(ctx, r.key(identifier), "-inf", score(reference.Add(-window))).Err(); err != nil {
		return fmt.Errorf("redis zremrangebyscore: %w", err)
	}

	return nil
}

// OldestAttempt returns the oldest attempt remaining inside the active window.
func (r *SlidingWindowStore) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	if window <= 0 {
		return time.Time{}, false, errors.New("window must be positive")
	}

	values, err := r.client.ZRangeByScoreWithScores(ctx, r.key(identifier), &redis.ZRangeBy{
		Min:   score(reference.Add(-window)),
		Max:   score(reference),
		Count: 1,
	}).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis zrangebyscore: %w", err)
	}

	if len(values) == 0 {
		return time.Time{}, false, nil
	}

	return time.Unix(0, int64(values[0].Score)), true, nil
}

// Reset drops every recorded attempt for the identifier.
func (r *SlidingWindowStore) Reset(ctx context.Context, identifier string) error {
	if err := r.client.Del(ctx, r.key(identifier)).Err(); err != nil {
		return fmt.Errorf("redis del window: %w", err)
	}
	return nil
}

func (r *SlidingWindowStore) key(identifier string) string {
	if r.cfg.KeyPrefix == "" {
		return identifier
	}
	return fmt.Sprintf("%s:%s", r.cfg.KeyPrefix, identifier)
}

var memberSeq atomic.Uint64

// member disambiguates attempts that share a timestamp so none are collapsed by ZADD.
func member(at time.Time) redis.Z {
	seq := memberSeq.Add(1)
	var b strings.Builder
	b.WriteString(strconv.FormatInt(at.UnixNano(), 10))
	b.WriteByte('-')
	b.WriteString(strconv.FormatUint(seq, 36))
	return redis.Z{Score: float64(at.UnixNano()), Member: b.String()}
}

func score(at time.Time) string {
	return strconv.FormatInt(at.UnixNano(), 10)
}

var (
	_ port.RateLimitStore       = (*SlidingWindowStore)(nil)
	_ port.SlidingWindowCounter = (*SlidingWindowStore)(nil)
)
