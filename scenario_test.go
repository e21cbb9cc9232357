package goSession

import (
	"context"
	"errors"
	"testing"
	"time"
)

// User 42 signs in on a laptop and a phone, rotates once on the laptop, then
// revokes everything from the phone.
func TestUser42RevokeAllAcrossDevices(t *testing.T) {
	h := newEngineHarness(t)
	ctx := WithClientIP(context.Background(), "203.0.113.42")

	laptop, err := h.engine.IssueSession(ctx, "42")
	if err != nil {
		t.Fatalf("laptop login: %v", err)
	}
	phone, err := h.engine.IssueSession(ctx, "42")
	if err != nil {
		t.Fatalf("phone login: %v", err)
	}

	h.advance(16 * time.Minute)
	laptop, err = h.engine.Refresh(ctx, laptop.RefreshToken, h.now())
	if err != nil {
		t.Fatalf("laptop refresh: %v", err)
	}

	n, err := h.engine.RevokeAll(ctx, "42")
	if err != nil {
		t.Fatalf("revoke-all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 revoked sessions, got %d", n)
	}

	for name, tok := range map[string]string{"laptop": laptop.RefreshToken, "phone": phone.RefreshToken} {
		if _, err := h.engine.Refresh(ctx, tok, h.now()); !errors.Is(err, ErrRefreshInvalid) {
			t.Fatalf("%s refresh after revoke-all: %v", name, err)
		}
	}
	if sessions, _ := h.engine.Sessions(ctx, "42"); len(sessions) != 0 {
		t.Fatalf("expected no active sessions, got %d", len(sessions))
	}

	// Access tokens are stateless and stay valid until expiry.
	if _, err := h.engine.VerifyAccess(ctx, laptop.AccessToken); err != nil {
		t.Fatalf("access token should remain valid until expiry: %v", err)
	}

	fresh, err := h.engine.IssueSession(ctx, "42")
	if err != nil {
		t.Fatalf("login after revoke-all: %v", err)
	}
	if _, err := h.engine.Refresh(ctx, fresh.RefreshToken, h.now()); err != nil {
		t.Fatalf("new session after revoke-all: %v", err)
	}

	var revoke *AuditEvent
	for _, ev := range h.drainAudit() {
		if ev.Action == AuditActionRevoke {
			ev := ev
			revoke = &ev
		}
	}
	if revoke == nil {
		t.Fatal("missing revoke audit event")
	}
	if revoke.UserID != "42" || revoke.TeamID != "team-7" || revoke.IP != "203.0.113.42" || !revoke.Success {
		t.Fatalf("unexpected revoke event %+v", revoke)
	}
}

func TestRevokeAllWithoutTeamStillAudits(t *testing.T) {
	h := newEngineHarness(t, func(b *Builder) {
		b.WithUserDirectory(staticDirectory{})
	})
	ctx := context.Background()

	_, _ = h.engine.IssueSession(ctx, "42")
	if _, err := h.engine.RevokeAll(ctx, "42"); err != nil {
		t.Fatalf("revoke-all: %v", err)
	}

	events := h.drainAudit()
	if len(events) != 1 {
		t.Fatalf("expected one audit event, got %+v", events)
	}
	if events[0].TeamID != "" || events[0].IP != "unknown" {
		t.Fatalf("unexpected event %+v", events[0])
	}
}

func TestRevokeAllStoreOutage(t *testing.T) {
	h := newEngineHarness(t)
	h.mr.Close()

	if _, err := h.engine.RevokeAll(context.Background(), "42"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
