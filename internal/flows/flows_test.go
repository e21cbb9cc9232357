package flows

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/store"
)

var flowNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T) *jwt.Manager {
	t.Helper()
	m, err := jwt.NewManager(jwt.Config{
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(strings.Repeat("k", 32)),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func issuer(m *jwt.Manager, kind jwt.Kind) TokenIssuer {
	return func(subject string, now time.Time) (string, time.Time, error) {
		return m.Issue(kind, subject, now)
	}
}

func testDeps(t *testing.T) (Deps, *store.MemoryStore) {
	t.Helper()
	m := newTestManager(t)
	st := store.NewMemoryStore()
	verify := func(tok string, now time.Time) (*jwt.Claims, error) {
		return m.VerifyKind(tok, jwt.KindRefresh, now)
	}
	return Deps{
		Issue: IssueDeps{
			IssueAccess:  issuer(m, jwt.KindAccess),
			IssueRefresh: issuer(m, jwt.KindRefresh),
			Store:        st,
		},
		Refresh: RefreshDeps{
			VerifyRefresh: verify,
			IssueAccess:   issuer(m, jwt.KindAccess),
			IssueRefresh:  issuer(m, jwt.KindRefresh),
			NewRecordID:   uuid.NewString,
			Store:         st,
		},
		Probe:  ProbeDeps{VerifyRefresh: verify, Store: st},
		Revoke: RevokeDeps{Store: st},
	}, st
}

func TestIssueThenRefreshRotates(t *testing.T) {
	deps, st := testDeps(t)
	ctx := context.Background()

	issued, err := RunIssueSession(ctx, "42", flowNow, deps.Issue)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	res := RunRefresh(ctx, issued.RefreshToken, flowNow.Add(time.Minute), deps.Refresh)
	if res.Failure != RefreshFailureNone {
		t.Fatalf("refresh failed: kind=%d err=%v", res.Failure, res.Err)
	}
	if res.UserID != "42" || res.OldRecordID != issued.RecordID {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.RefreshToken == issued.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	if _, err := st.FindActive(ctx, store.HashToken(issued.RefreshToken), flowNow.Add(time.Minute)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("old token still active: %v", err)
	}
	rec, err := st.FindActive(ctx, store.HashToken(res.RefreshToken), flowNow.Add(time.Minute))
	if err != nil || rec.ID != res.NewRecordID {
		t.Fatalf("new record not active: %v", err)
	}
}

func TestRefreshReplayIsReuse(t *testing.T) {
	deps, _ := testDeps(t)
	ctx := context.Background()
	issued, _ := RunIssueSession(ctx, "42", flowNow, deps.Issue)

	if res := RunRefresh(ctx, issued.RefreshToken, flowNow, deps.Refresh); res.Failure != RefreshFailureNone {
		t.Fatalf("first refresh: %v", res.Err)
	}
	res := RunRefresh(ctx, issued.RefreshToken, flowNow, deps.Refresh)
	if res.Failure != RefreshFailureReuse {
		t.Fatalf("expected reuse, got kind=%d err=%v", res.Failure, res.Err)
	}
	if res.UserID != "42" {
		t.Fatalf("reuse must report owner, got %q", res.UserID)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	deps, _ := testDeps(t)
	issued, _ := RunIssueSession(context.Background(), "42", flowNow, deps.Issue)

	res := RunRefresh(context.Background(), issued.AccessToken, flowNow, deps.Refresh)
	if res.Failure != RefreshFailureVerify || !errors.Is(res.Err, jwt.ErrWrongKind) {
		t.Fatalf("expected wrong-kind verify failure, got kind=%d err=%v", res.Failure, res.Err)
	}
}

func TestRefreshAfterRevokeAll(t *testing.T) {
	deps, _ := testDeps(t)
	ctx := context.Background()
	a, _ := RunIssueSession(ctx, "42", flowNow, deps.Issue)
	b, _ := RunIssueSession(ctx, "42", flowNow, deps.Issue)

	rev := RunRevokeAll(ctx, "42", flowNow, deps.Revoke)
	if rev.Err != nil || rev.Revoked != 2 {
		t.Fatalf("revoke-all: %+v", rev)
	}
	for _, tok := range []string{a.RefreshToken, b.RefreshToken} {
		if res := RunRefresh(ctx, tok, flowNow, deps.Refresh); res.Failure != RefreshFailureRevoked {
			t.Fatalf("expected revoked, got kind=%d err=%v", res.Failure, res.Err)
		}
	}
}

func TestRefreshUnknownRecord(t *testing.T) {
	deps, _ := testDeps(t)
	m := newTestManager(t)
	tok, _, _ := m.Issue(jwt.KindRefresh, "42", flowNow)

	if res := RunRefresh(context.Background(), tok, flowNow, deps.Refresh); res.Failure != RefreshFailureNotFound {
		t.Fatalf("expected not found, got kind=%d err=%v", res.Failure, res.Err)
	}
}

type stubLimiter struct {
	err  error
	keys []string
}

func (s *stubLimiter) CheckRefresh(_ context.Context, key string) error {
	s.keys = append(s.keys, key)
	return s.err
}

func TestRefreshRateLimitUsesClientKey(t *testing.T) {
	deps, _ := testDeps(t)
	issued, _ := RunIssueSession(context.Background(), "42", flowNow, deps.Issue)

	lim := &stubLimiter{err: rate.ErrRateLimited}
	deps.Refresh.RateLimiter = lim
	deps.Refresh.ClientKey = func(context.Context) string { return "203.0.113.7" }

	res := RunRefresh(context.Background(), issued.RefreshToken, flowNow, deps.Refresh)
	if res.Failure != RefreshFailureRateLimited {
		t.Fatalf("expected rate limited, got kind=%d", res.Failure)
	}
	if len(lim.keys) != 1 || lim.keys[0] != "203.0.113.7" {
		t.Fatalf("limiter keyed by %v", lim.keys)
	}
}

func TestRefreshRateLimitFallsBackToUser(t *testing.T) {
	deps, _ := testDeps(t)
	issued, _ := RunIssueSession(context.Background(), "42", flowNow, deps.Issue)

	lim := &stubLimiter{}
	deps.Refresh.RateLimiter = lim
	deps.Refresh.ClientKey = func(context.Context) string { return "" }

	if res := RunRefresh(context.Background(), issued.RefreshToken, flowNow, deps.Refresh); res.Failure != RefreshFailureNone {
		t.Fatalf("refresh failed: %v", res.Err)
	}
	if len(lim.keys) != 1 || lim.keys[0] != "user:42" {
		t.Fatalf("limiter keyed by %v", lim.keys)
	}
}

func TestRefreshLimiterOutageFailsOpen(t *testing.T) {
	deps, _ := testDeps(t)
	issued, _ := RunIssueSession(context.Background(), "42", flowNow, deps.Issue)

	var warned []string
	deps.Refresh.RateLimiter = &stubLimiter{err: rate.ErrRedisUnavailable}
	deps.Refresh.Warn = func(msg string, _ ...any) { warned = append(warned, msg) }

	if res := RunRefresh(context.Background(), issued.RefreshToken, flowNow, deps.Refresh); res.Failure != RefreshFailureNone {
		t.Fatalf("limiter outage must not block refresh: %v", res.Err)
	}
	if len(warned) != 1 {
		t.Fatalf("expected one warning, got %v", warned)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	deps, _ := testDeps(t)
	issued, _ := RunIssueSession(context.Background(), "42", flowNow, deps.Issue)

	const workers = 12
	results := make([]RefreshResult, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = RunRefresh(context.Background(), issued.RefreshToken, flowNow, deps.Refresh)
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, reused int
	for _, r := range results {
		switch r.Failure {
		case RefreshFailureNone:
			ok++
		case RefreshFailureReuse:
			reused++
		default:
			t.Fatalf("unexpected failure kind=%d err=%v", r.Failure, r.Err)
		}
	}
	if ok != 1 || reused != workers-1 {
		t.Fatalf("ok=%d reused=%d", ok, reused)
	}
}

func TestProbeDoesNotMutate(t *testing.T) {
	deps, _ := testDeps(t)
	ctx := context.Background()
	issued, _ := RunIssueSession(ctx, "42", flowNow, deps.Issue)

	for i := 0; i < 3; i++ {
		rec, err := RunProbe(ctx, issued.RefreshToken, flowNow, deps.Probe)
		if err != nil || rec.ID != issued.RecordID {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if res := RunRefresh(ctx, issued.RefreshToken, flowNow, deps.Refresh); res.Failure != RefreshFailureNone {
		t.Fatalf("refresh after probes: %v", res.Err)
	}
}

func TestRevokeAllTeamLookupFailureKeepsRevoke(t *testing.T) {
	deps, _ := testDeps(t)
	ctx := context.Background()
	_, _ = RunIssueSession(ctx, "42", flowNow, deps.Issue)

	deps.Revoke.ResolveTeam = func(context.Context, string) (string, error) {
		return "", errors.New("directory down")
	}
	res := RunRevokeAll(ctx, "42", flowNow, deps.Revoke)
	if res.Err != nil || res.Revoked != 1 || res.TeamID != "" {
		t.Fatalf("unexpected result %+v", res)
	}

	deps.Revoke.ResolveTeam = func(context.Context, string) (string, error) { return "team-7", nil }
	if res := RunRevokeAll(ctx, "42", flowNow, deps.Revoke); res.TeamID != "team-7" {
		t.Fatalf("team not resolved: %+v", res)
	}
}

type stubLoginLimiter struct {
	checkErr           error
	increments, resets int
}

func (s *stubLoginLimiter) CheckLogin(context.Context, string) error { return s.checkErr }
func (s *stubLoginLimiter) IncrementLogin(context.Context, string) error {
	s.increments++
	return nil
}
func (s *stubLoginLimiter) ResetLogin(context.Context, string) error {
	s.resets++
	return nil
}

func TestRunLogin(t *testing.T) {
	errBad := errors.New("invalid credentials")
	lim := &stubLoginLimiter{}
	deps := LoginDeps{
		Authenticate: func(_ context.Context, id, pw string) (string, error) {
			if id == "alice" && pw == "secret" {
				return "42", nil
			}
			return "", errBad
		},
		RateLimiter:        lim,
		InvalidCredentials: errBad,
	}
	ctx := context.Background()

	if res := RunLogin(ctx, "  ", "x", deps); res.Failure != LoginFailureInput {
		t.Fatalf("blank identifier: %+v", res)
	}
	if res := RunLogin(ctx, "alice", "wrong", deps); res.Failure != LoginFailureCredentials || lim.increments != 1 {
		t.Fatalf("bad password: %+v increments=%d", res, lim.increments)
	}
	if res := RunLogin(ctx, " alice ", "secret", deps); res.Failure != LoginFailureNone || res.UserID != "42" || lim.resets != 1 {
		t.Fatalf("good login: %+v resets=%d", res, lim.resets)
	}

	lim.checkErr = rate.ErrRateLimited
	if res := RunLogin(ctx, "alice", "secret", deps); res.Failure != LoginFailureRateLimited {
		t.Fatalf("throttled login: %+v", res)
	}
}

type duplicateRotateStore struct{}

func (duplicateRotateStore) Rotate(context.Context, store.RotateRequest) (*store.Record, error) {
	return nil, store.ErrDuplicate
}

func TestRefreshHashCollisionIsMintFailure(t *testing.T) {
	deps, _ := testDeps(t)
	issued, _ := RunIssueSession(context.Background(), "42", flowNow, deps.Issue)
	deps.Refresh.Store = duplicateRotateStore{}

	res := RunRefresh(context.Background(), issued.RefreshToken, flowNow, deps.Refresh)
	if res.Failure != RefreshFailureMint {
		t.Fatalf("expected mint failure, got kind=%d", res.Failure)
	}
	if !errors.Is(res.Err, store.ErrDuplicate) {
		t.Fatalf("unexpected err %v", res.Err)
	}
}
