package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/store"
	"github.com/MrEthical07/goSession/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store {
		return store.NewMemoryStore()
	})
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	if _, err := s.Create(ctx, "42", store.HashToken("x"), now, now.Add(time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	rec, err := s.FindByHash(ctx, store.HashToken("x"))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	rec.UserID = "mutated"

	again, err := s.FindByHash(ctx, store.HashToken("x"))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if again.UserID != "42" {
		t.Fatal("callers must not be able to mutate stored records")
	}
}

func TestRecordStatusPrecedence(t *testing.T) {
	now := time.Now()
	revokedAt := now.Add(-time.Minute)

	cases := []struct {
		name string
		rec  store.Record
		gen  uint64
		want error
	}{
		{"active", store.Record{ExpiresAt: now.Add(time.Hour)}, 0, nil},
		{"rotated wins over revoked", store.Record{ExpiresAt: now.Add(time.Hour), RevokedAt: &revokedAt, ReplacedBy: "n"}, 0, store.ErrReused},
		{"rotated wins over expiry", store.Record{ExpiresAt: now.Add(-time.Hour), RevokedAt: &revokedAt, ReplacedBy: "n"}, 0, store.ErrReused},
		{"revoked", store.Record{ExpiresAt: now.Add(time.Hour), RevokedAt: &revokedAt}, 0, store.ErrRevoked},
		{"stale generation", store.Record{ExpiresAt: now.Add(time.Hour), Generation: 1}, 2, store.ErrRevoked},
		{"expired", store.Record{ExpiresAt: now}, 0, store.ErrExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rec.Status(now, tc.gen); got != tc.want {
				t.Fatalf("Status = %v, want %v", got, tc.want)
			}
		})
	}
}
