package session

import (
	"context"
	"testing"
	"time"

	"vetor/api/internal/store"
	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rs, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })
	return rs
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	rs := setupTestRedis(t)
	ctx := context.Background()

	user := store.User{ID: "usr_1", DisplayName: "Helena", Email: "helena@cliente.com", Role: "client"}
	if err := rs.SaveRefreshSession(ctx, "hash-1", user, time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession: %v", err)
	}

	found, err := rs.LookupRefreshSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("LookupRefreshSession: %v", err)
	}
	if found.ID != user.ID || found.Email != user.Email || found.Role != "client" {
		t.Fatalf("unexpected user: %+v", found)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	mr := miniredis.RunT(t)
	rs, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer rs.Close()

	ctx := context.Background()
	user := store.User{ID: "usr_2", Role: "client"}
	if err := rs.SaveRefreshSession(ctx, "hash-2", user, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("SaveRefreshSession: %v", err)
	}

	mr.FastForward(2 * time.Second)

	if _, err := rs.LookupRefreshSession(ctx, "hash-2"); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestSaveRejectsAlreadyExpired(t *testing.T) {
	rs := setupTestRedis(t)
	user := store.User{ID: "usr_3"}
	if err := rs.SaveRefreshSession(context.Background(), "hash-3", user, time.Now().Add(-time.Minute)); err == nil {
		t.Fatal("expected error for already expired token")
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	rs := setupTestRedis(t)
	ctx := context.Background()

	user := store.User{ID: "usr_4", Role: "client"}
	if err := rs.SaveRefreshSession(ctx, "hash-4", user, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession: %v", err)
	}
	if err := rs.RevokeRefreshSession(ctx, "hash-4"); err != nil {
		t.Fatalf("RevokeRefreshSession: %v", err)
	}
	if _, err := rs.LookupRefreshSession(ctx, "hash-4"); err == nil {
		t.Fatal("expected error after revocation")
	}
}
