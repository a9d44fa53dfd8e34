package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreWithClient(client)
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "hash-1", "usr_1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("save: %v", err)
	}

	profileID, err := store.LookupRefreshSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if profileID != "usr_1" {
		t.Fatalf("expected usr_1, got %q", profileID)
	}
}

func TestLookupUnknownSession(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.LookupRefreshSession(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "hash-1", "usr_1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.RevokeRefreshSession(ctx, "hash-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := store.LookupRefreshSession(ctx, "hash-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after revoke, got %v", err)
	}
}
