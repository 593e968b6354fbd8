package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/repository"
)

func testSession(id, userID string, expires time.Time) domain.Session {
	ip := "203.0.113.7"
	return domain.Session{
		ID:           id,
		UserID:       userID,
		Role:         domain.RoleUser,
		Capabilities: []string{domain.CapabilityProfileRead},
		CreatedAt:    expires.Add(-time.Hour),
		ExpiresAt:    expires,
		LastSeen:     expires.Add(-time.Hour),
		IPAddress:    &ip,
	}
}

func TestSessionStore_SaveGetDelete(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewSessionStore(client, "sess")
	ctx := context.Background()

	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	if err := store.Save(ctx, testSession("s1", "u1", expires), time.Hour); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.UserID != "u1" || !got.ExpiresAt.Equal(expires) || got.IPAddress == nil {
		t.Fatalf("unexpected session: %+v", got)
	}
	if !got.HasCapability(domain.CapabilityProfileRead) {
		t.Fatalf("expected capability to round-trip")
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	ids, _ := store.ListUserSessionIDs(ctx, "u1")
	if len(ids) != 0 {
		t.Fatalf("expected index to be cleaned, got %v", ids)
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("second Delete returned error: %v", err)
	}
}

func TestSessionStore_TTLExpiry(t *testing.T) {
	client, server := newTestRedis(t)
	store := NewSessionStore(client, "sess")
	ctx := context.Background()

	if err := store.Save(ctx, testSession("s1", "u1", time.Now().Add(time.Minute)), time.Minute); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	server.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, "s1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
}

func TestSessionStore_DeleteAllForUser(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewSessionStore(client, "sess")
	ctx := context.Background()

	expires := time.Now().Add(time.Hour)
	for _, id := range []string{"s1", "s2"} {
		if err := store.Save(ctx, testSession(id, "u1", expires), time.Hour); err != nil {
			t.Fatalf("Save returned error: %v", err)
		}
	}
	if err := store.Save(ctx, testSession("other", "u2", expires), time.Hour); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	ids, err := store.DeleteAllForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("DeleteAllForUser returned error: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}

	for _, id := range ids {
		if _, err := store.Get(ctx, id); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("expected %s to be deleted, got %v", id, err)
		}
	}
	if _, err := store.Get(ctx, "other"); err != nil {
		t.Fatalf("other user's session should survive: %v", err)
	}
}

func TestSessionStore_PruneExpired(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewSessionStore(client, "sess")
	ctx := context.Background()

	now := time.Now().UTC()
	if err := store.Save(ctx, testSession("old", "u1", now.Add(-time.Minute)), time.Hour); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if err := store.Save(ctx, testSession("fresh", "u1", now.Add(time.Hour)), time.Hour); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	removed, err := store.PruneExpired(ctx, now)
	if err != nil {
		t.Fatalf("PruneExpired returned error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned entry, got %d", removed)
	}

	ids, _ := store.ListUserSessionIDs(ctx, "u1")
	if len(ids) != 1 || ids[0] != "fresh" {
		t.Fatalf("unexpected remaining ids: %v", ids)
	}
}

func TestSessionStore_SaveValidation(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewSessionStore(client, "")

	if err := store.Save(context.Background(), domain.Session{}, time.Minute); err == nil {
		t.Fatal("expected error for empty ids")
	}
	if err := store.Save(context.Background(), testSession("s", "u", time.Now()), 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
