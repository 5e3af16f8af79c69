package redisstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/lmsauth/model"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newStore(t *testing.T) (*TokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewTokenStore(rdb, "test"), mr
}

func TestRevokeIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	if _, err := s.Create(ctx, &model.Token{ID: "t1", UserID: "u1", Type: model.TokenRefresh, Value: "v1", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Revoke(ctx, "t1")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, model.ErrAlreadyRevoked), errors.Is(err, model.ErrContention):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}

	tok, err := s.Revoke(ctx, "t1")
	if !errors.Is(err, model.ErrAlreadyRevoked) || tok == nil || !tok.Revoked || tok.RevokedAt == nil {
		t.Fatalf("expected revoked record with ErrAlreadyRevoked, got %+v %v", tok, err)
	}
	if ok, _ := s.IsValid(ctx, "v1"); ok {
		t.Fatal("revoked token must not be valid")
	}
}

func TestRevokeUnknown(t *testing.T) {
	s, _ := newStore(t)
	if _, err := s.Revoke(context.Background(), "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.RevokeByValue(context.Background(), "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound by value, got %v", err)
	}
}

func TestCreateRoundTripAndDuplicates(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)
	in := &model.Token{
		ID:         "t1",
		UserID:     "u1",
		Type:       model.TokenRefresh,
		Value:      "signed.jwt.value",
		ExpiresAt:  time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		DeviceInfo: model.DeviceInfo{"ua": "phone"},
	}
	if _, err := s.Create(ctx, in); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetByValue(ctx, "signed.jwt.value")
	if err != nil {
		t.Fatalf("get by value: %v", err)
	}
	if got.ID != "t1" || got.UserID != "u1" || got.DeviceInfo["ua"] != "phone" || !got.ExpiresAt.Equal(in.ExpiresAt) {
		t.Fatalf("unexpected record: %+v", got)
	}
	for _, k := range mr.Keys() {
		if k == "test:tokv:signed.jwt.value" {
			t.Fatal("token value must not appear in key space")
		}
	}

	if _, err := s.Create(ctx, &model.Token{ID: "t2", UserID: "u1", Value: "signed.jwt.value"}); !errors.Is(err, model.ErrDuplicate) {
		t.Fatalf("expected duplicate value, got %v", err)
	}
	if _, err := s.Create(ctx, &model.Token{ID: "t1", UserID: "u1", Value: "other"}); !errors.Is(err, model.ErrDuplicate) {
		t.Fatalf("expected duplicate id, got %v", err)
	}
}

func TestBulkOperations(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	now := time.Now()
	_, _ = s.Create(ctx, &model.Token{ID: "r1", UserID: "u1", Type: model.TokenRefresh, Value: "r1", ExpiresAt: now.Add(time.Hour)})
	_, _ = s.Create(ctx, &model.Token{ID: "r2", UserID: "u1", Type: model.TokenRefresh, Value: "r2", ExpiresAt: now.Add(time.Hour)})
	_, _ = s.Create(ctx, &model.Token{ID: "p1", UserID: "u1", Type: model.TokenResetPassword, Value: "p1", ExpiresAt: now.Add(time.Hour)})
	_, _ = s.Create(ctx, &model.Token{ID: "o1", UserID: "u2", Type: model.TokenRefresh, Value: "o1", ExpiresAt: now.Add(-time.Hour)})

	n, err := s.RevokeAllForUser(ctx, "u1", model.TokenRefresh)
	if err != nil || n != 2 {
		t.Fatalf("revoke all refresh: n=%d err=%v", n, err)
	}
	if n, _ := s.RevokeAllForUser(ctx, "u1", model.TokenRefresh); n != 0 {
		t.Fatalf("second revoke all must count nothing, got %d", n)
	}
	if ok, _ := s.IsValid(ctx, "p1"); !ok {
		t.Fatal("reset token must survive refresh-only revocation")
	}
	if ok, _ := s.IsValid(ctx, "o1"); ok {
		t.Fatal("expired token must not be valid")
	}

	removed, err := s.CleanExpired(ctx, now)
	if err != nil || removed != 1 {
		t.Fatalf("clean expired: n=%d err=%v", removed, err)
	}
	if _, err := s.GetByValue(ctx, "o1"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected cleaned token to be gone, got %v", err)
	}
	if _, err := s.GetByID(ctx, "r1"); err != nil {
		t.Fatalf("live token removed: %v", err)
	}
}
