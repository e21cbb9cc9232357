// Package storetest holds the behavioural suite every store.Store
// implementation must pass. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/store"
	"github.com/google/uuid"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateFindActive", func(t *testing.T) { testCreateFindActive(t, newStore(t)) })
	t.Run("FindActiveExclusions", func(t *testing.T) { testFindActiveExclusions(t, newStore(t)) })
	t.Run("RotateOnce", func(t *testing.T) { testRotateOnce(t, newStore(t)) })
	t.Run("RotateExpired", func(t *testing.T) { testRotateExpired(t, newStore(t)) })
	t.Run("RevokeAllInvalidatesDevices", func(t *testing.T) { testRevokeAll(t, newStore(t)) })
	t.Run("RevokeAllBeatsInFlightRotation", func(t *testing.T) { testRevokeAllVsRotation(t, newStore(t)) })
	t.Run("ConcurrentRotateSingleWinner", func(t *testing.T) { testConcurrentRotate(t, newStore(t)) })
	t.Run("RevokeIdempotent", func(t *testing.T) { testRevokeIdempotent(t, newStore(t)) })
	t.Run("LinkReplacement", func(t *testing.T) { testLinkReplacement(t, newStore(t)) })
	t.Run("RotateChecksOwner", func(t *testing.T) { testRotateChecksOwner(t, newStore(t)) })
}

func hashOf(s string) store.Hash {
	return store.HashToken(s)
}

func mustCreate(t *testing.T, s store.Store, userID, raw string, issuedAt time.Time) string {
	t.Helper()
	id, err := s.Create(context.Background(), userID, hashOf(raw), issuedAt, issuedAt.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("create %q: %v", raw, err)
	}
	return id
}

func rotateReq(oldRaw, newRaw string, now time.Time) store.RotateRequest {
	return store.RotateRequest{
		UserID:    "42",
		OldHash:   hashOf(oldRaw),
		NewID:     uuid.NewString(),
		NewHash:   hashOf(newRaw),
		IssuedAt:  now,
		ExpiresAt: now.Add(24 * time.Hour),
		Now:       now,
	}
}

func testCreateFindActive(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := mustCreate(t, s, "42", "token-a", base)

	rec, err := s.FindActive(ctx, hashOf("token-a"), base.Add(time.Minute))
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if rec.ID != id || rec.UserID != "42" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.TokenHash != hashOf("token-a") {
		t.Fatal("token hash mismatch")
	}
	if !rec.ExpiresAt.Equal(base.Add(24 * time.Hour)) {
		t.Fatalf("expiry = %v", rec.ExpiresAt)
	}

	if _, err := s.FindActive(ctx, hashOf("unknown"), base); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown hash: expected ErrNotFound, got %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func testFindActiveExclusions(t *testing.T, s store.Store) {
	ctx := context.Background()
	revokedID := mustCreate(t, s, "42", "revoked", base)
	mustCreate(t, s, "42", "live", base)

	if err := s.Revoke(ctx, revokedID, base.Add(time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := s.FindActive(ctx, hashOf("revoked"), base.Add(2*time.Minute)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("revoked record: expected ErrNotFound, got %v", err)
	}
	if _, err := s.FindActive(ctx, hashOf("live"), base.Add(25*time.Hour)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expired record: expected ErrNotFound, got %v", err)
	}

	rec, err := s.FindByHash(ctx, hashOf("revoked"))
	if err != nil {
		t.Fatalf("find by hash: %v", err)
	}
	if !rec.Revoked() {
		t.Fatal("FindByHash must return revoked records with RevokedAt set")
	}

	active, err := s.ListActive(ctx, "42", base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].TokenHash != hashOf("live") {
		t.Fatalf("expected only the live record, got %+v", active)
	}
}

func testRotateOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	oldID := mustCreate(t, s, "42", "r1", base)
	now := base.Add(time.Hour)

	req := rotateReq("r1", "r2", now)
	old, err := s.Rotate(ctx, req)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if old.ID != oldID || old.UserID != "42" {
		t.Fatalf("unexpected old record: %+v", old)
	}

	if _, err := s.FindActive(ctx, hashOf("r1"), now); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("rotated token must not be active, got %v", err)
	}
	next, err := s.FindActive(ctx, hashOf("r2"), now)
	if err != nil {
		t.Fatalf("replacement not active: %v", err)
	}
	if next.ID != req.NewID || next.UserID != "42" {
		t.Fatalf("unexpected replacement: %+v", next)
	}

	stored, err := s.FindByHash(ctx, hashOf("r1"))
	if err != nil {
		t.Fatalf("find by hash: %v", err)
	}
	if stored.ReplacedBy != req.NewID || !stored.Revoked() {
		t.Fatalf("old record not linked: %+v", stored)
	}

	again, err := s.Rotate(ctx, rotateReq("r1", "r3", now.Add(time.Second)))
	if !errors.Is(err, store.ErrReused) {
		t.Fatalf("second rotation: expected ErrReused, got %v", err)
	}
	if again == nil || again.UserID != "42" {
		t.Fatal("reuse must report the owning record")
	}
	if _, err := s.FindByHash(ctx, hashOf("r3")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("failed rotation must not create a record, got %v", err)
	}

	if _, err := s.Rotate(ctx, rotateReq("never-issued", "r4", now)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown token: expected ErrNotFound, got %v", err)
	}
}

func testRotateExpired(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustCreate(t, s, "42", "old", base)

	_, err := s.Rotate(ctx, rotateReq("old", "new", base.Add(48*time.Hour)))
	if !errors.Is(err, store.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func testRevokeAll(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustCreate(t, s, "42", "laptop", base)
	mustCreate(t, s, "42", "phone", base.Add(time.Second))
	mustCreate(t, s, "7", "other-user", base)

	now := base.Add(time.Hour)
	n, err := s.RevokeAllForUser(ctx, "42", now)
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if n != 2 {
		t.Fatalf("revoked %d records, want 2", n)
	}

	for _, raw := range []string{"laptop", "phone"} {
		if _, err := s.FindActive(ctx, hashOf(raw), now); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("%s still active after revoke-all: %v", raw, err)
		}
		if _, err := s.Rotate(ctx, rotateReq(raw, raw+"-next", now)); !errors.Is(err, store.ErrRevoked) {
			t.Fatalf("%s rotation after revoke-all: expected ErrRevoked, got %v", raw, err)
		}
	}
	if _, err := s.FindActive(ctx, hashOf("other-user"), now); err != nil {
		t.Fatalf("other user's record must stay active: %v", err)
	}

	active, err := s.ListActive(ctx, "42", now)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active records, got %d", len(active))
	}

	// A fresh login after revoke-all lands on the new generation.
	mustCreate(t, s, "42", "after", now)
	if _, err := s.FindActive(ctx, hashOf("after"), now); err != nil {
		t.Fatalf("post-revoke login must be active: %v", err)
	}
}

func testRevokeAllVsRotation(t *testing.T, s store.Store) {
	ctx := context.Background()
	const devices = 8
	for i := 0; i < devices; i++ {
		mustCreate(t, s, "42", fmt.Sprintf("dev-%d", i), base)
	}
	now := base.Add(time.Hour)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < devices; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, _ = s.Rotate(ctx, rotateReq(fmt.Sprintf("dev-%d", i), fmt.Sprintf("dev-%d-next", i), now))
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		if _, err := s.RevokeAllForUser(ctx, "42", now); err != nil {
			t.Errorf("revoke all: %v", err)
		}
	}()
	close(start)
	wg.Wait()

	active, err := s.ListActive(ctx, "42", now)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("%d records survived revoke-all", len(active))
	}
	for i := 0; i < devices; i++ {
		raw := fmt.Sprintf("dev-%d-next", i)
		if _, err := s.FindActive(ctx, hashOf(raw), now); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("replacement %s active after revoke-all: %v", raw, err)
		}
	}
}

func testConcurrentRotate(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustCreate(t, s, "42", "shared", base)
	now := base.Add(time.Minute)

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		reused  int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := s.Rotate(ctx, rotateReq("shared", fmt.Sprintf("next-%d", i), now))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, store.ErrReused):
				reused++
			default:
				t.Errorf("unexpected rotate error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if success != 1 {
		t.Fatalf("expected exactly one successful rotation, got %d", success)
	}
	if reused != workers-1 {
		t.Fatalf("expected %d reuse failures, got %d", workers-1, reused)
	}
	active, err := s.ListActive(ctx, "42", now)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected one active replacement, got %d", len(active))
	}
}

func testRevokeIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := mustCreate(t, s, "42", "tok", base)

	first := base.Add(time.Minute)
	if err := s.Revoke(ctx, id, first); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := s.Revoke(ctx, id, first.Add(time.Hour)); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	rec, err := s.FindByHash(ctx, hashOf("tok"))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if rec.RevokedAt == nil || !rec.RevokedAt.Equal(first) {
		t.Fatalf("revoked_at changed on second revoke: %v", rec.RevokedAt)
	}
	if err := s.Revoke(ctx, uuid.NewString(), first); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown id: expected ErrNotFound, got %v", err)
	}
}

func testLinkReplacement(t *testing.T, s store.Store) {
	ctx := context.Background()
	oldID := mustCreate(t, s, "42", "a", base)
	newID := mustCreate(t, s, "42", "b", base)

	if err := s.LinkReplacement(ctx, oldID, newID); err != nil {
		t.Fatalf("link: %v", err)
	}
	rec, err := s.FindByHash(ctx, hashOf("a"))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if rec.ReplacedBy != newID {
		t.Fatalf("replaced_by = %q, want %q", rec.ReplacedBy, newID)
	}
	if err := s.LinkReplacement(ctx, uuid.NewString(), newID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown old id: expected ErrNotFound, got %v", err)
	}
}

func testRotateChecksOwner(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustCreate(t, s, "42", "mine", base)
	now := base.Add(time.Minute)

	req := rotateReq("mine", "stolen", now)
	req.UserID = "7"
	if _, err := s.Rotate(ctx, req); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("foreign owner: expected ErrNotFound, got %v", err)
	}
	if _, err := s.FindActive(ctx, hashOf("mine"), now); err != nil {
		t.Fatalf("record must survive a foreign rotation attempt: %v", err)
	}

	req = rotateReq("mine", "next", now)
	req.UserID = ""
	old, err := s.Rotate(ctx, req)
	if err != nil {
		t.Fatalf("rotate without owner: %v", err)
	}
	if old.UserID != "42" {
		t.Fatalf("unexpected owner %q", old.UserID)
	}
}
