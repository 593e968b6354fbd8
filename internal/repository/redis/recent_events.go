package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	red "github.com/redis/go-redis/v9"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
)

const defaultRecentEventsKey = "audit:recent"

// RecentEventBuffer keeps the newest audit events in a capped Redis list, newest first.
type RecentEventBuffer struct {
	client *red.Client
	key    string
	size   int64
}

// NewRecentEventBuffer constructs a ring buffer holding at most size events.
func NewRecentEventBuffer(client *red.Client, key string, size int) *RecentEventBuffer {
	key = strings.TrimSpace(key)
	if key == "" {
		key = defaultRecentEventsKey
	}
	if size <= 0 {
		size = 1000
	}
	return &RecentEventBuffer{client: client, key: key, size: int64(size)}
}

func (b *RecentEventBuffer) Push(ctx context.Context, event domain.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	_, err = b.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.LPush(ctx, b.key, payload)
		pipe.LTrim(ctx, b.key, 0, b.size-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis push audit event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first. Entries that fail to decode are skipped.
func (b *RecentEventBuffer) Recent(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 || int64(limit) > b.size {
		limit = int(b.size)
	}

	raw, err := b.client.LRange(ctx, b.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read audit events: %w", err)
	}

	events := make([]domain.AuditEvent, 0, len(raw))
	for _, item := range raw {
		var event domain.AuditEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

var _ port.RecentEventBuffer = (*RecentEventBuffer)(nil)
