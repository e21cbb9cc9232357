package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/MrEthical07/goSession/jwt"
)

type fakeVerifier struct {
	valid map[string]string
	calls int
}

func (f *fakeVerifier) VerifyAccess(_ context.Context, token string) (*jwt.Claims, error) {
	f.calls++
	sub, ok := f.valid[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	c := &jwt.Claims{Kind: jwt.KindAccess}
	c.Subject = sub
	return c, nil
}

func okHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := ClaimsFromContext(r.Context()); ok {
			w.Header().Set("X-User", claims.Subject)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRouteGuardMatrix(t *testing.T) {
	verifier := &fakeVerifier{valid: map[string]string{"good": "42"}}
	guard := RouteGuard(verifier, GuardConfig{
		ProtectedPrefixes: []string{"/dashboard", "/account/"},
		ExcludedPrefixes:  []string{"/dashboard/public"},
		SignInPath:        "/sign-in",
	})
	h := guard(okHandler(t))

	tests := []struct {
		name       string
		path       string
		access     string
		refresh    string
		wantStatus int
		wantUser   string
	}{
		{name: "public page", path: "/about", wantStatus: http.StatusOK},
		{name: "prefix lookalike not protected", path: "/dashboards", wantStatus: http.StatusOK},
		{name: "api excluded", path: "/api/auth/refresh", wantStatus: http.StatusOK},
		{name: "static excluded", path: "/static/app.js", wantStatus: http.StatusOK},
		{name: "next assets excluded", path: "/_next/chunk.js", wantStatus: http.StatusOK},
		{name: "favicon excluded", path: "/favicon.ico", wantStatus: http.StatusOK},
		{name: "custom exclusion", path: "/dashboard/public/help", wantStatus: http.StatusOK},
		{name: "protected no cookie", path: "/dashboard", wantStatus: http.StatusSeeOther},
		{name: "protected nested no cookie", path: "/dashboard/queue", wantStatus: http.StatusSeeOther},
		{name: "protected trailing-slash prefix", path: "/account/settings", wantStatus: http.StatusSeeOther},
		{name: "protected valid access", path: "/dashboard/queue", access: "good", wantStatus: http.StatusOK, wantUser: "42"},
		{name: "protected invalid access", path: "/dashboard", access: "forged", wantStatus: http.StatusSeeOther},
		{name: "refresh cookie without hook", path: "/dashboard", refresh: "r", wantStatus: http.StatusSeeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.access != "" {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: tt.access})
			}
			if tt.refresh != "" {
				req.AddCookie(&http.Cookie{Name: "refresh_token", Value: tt.refresh})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("X-User"); got != tt.wantUser {
				t.Fatalf("user = %q, want %q", got, tt.wantUser)
			}
		})
	}
}

func TestRouteGuardRedirectCarriesNext(t *testing.T) {
	h := RouteGuard(&fakeVerifier{}, GuardConfig{ProtectedPrefixes: []string{"/dashboard"}})(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/dashboard/appointments?day=mon", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if loc.Path != "/sign-in" {
		t.Fatalf("redirect path %q", loc.Path)
	}
	if got := loc.Query().Get("next"); got != "/dashboard/appointments?day=mon" {
		t.Fatalf("next = %q", got)
	}
}

func TestRouteGuardDefersToRefreshHook(t *testing.T) {
	hook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	h := RouteGuard(&fakeVerifier{}, GuardConfig{
		ProtectedPrefixes: []string{"/dashboard"},
		OnRefreshable:     hook,
	})(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "r"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected hook to run, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("no refresh cookie must redirect, got %d", rec.Code)
	}
}

func TestRouteGuardSkipsVerifierOnUnprotected(t *testing.T) {
	v := &fakeVerifier{}
	h := RouteGuard(v, GuardConfig{ProtectedPrefixes: []string{"/dashboard"}})(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "anything"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	if v.calls != 0 {
		t.Fatalf("verifier called %d times on unprotected path", v.calls)
	}
}

func TestRequireAuth(t *testing.T) {
	v := &fakeVerifier{valid: map[string]string{"good": "42"}}
	var failures []error
	h := RequireAuth(v, "access_token", func(w http.ResponseWriter, _ *http.Request, err error) {
		failures = append(failures, err)
		w.WriteHeader(http.StatusUnauthorized)
	})(okHandler(t))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/revoke", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "good"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("X-User") != "42" {
		t.Fatalf("cookie auth: %d %q", rec.Code, rec.Header().Get("X-User"))
	}

	req = httptest.NewRequest(http.MethodPost, "/api/auth/revoke", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer auth: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/auth/revoke", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized || len(failures) != 1 || !errors.Is(failures[0], errMissingToken) {
		t.Fatalf("missing token: %d %v", rec.Code, failures)
	}
}

func TestRequireAuthDefaultFailure(t *testing.T) {
	h := RequireAuth(&fakeVerifier{}, "access_token", nil)(okHandler(t))
	req := httptest.NewRequest(http.MethodGet, "/api/auth/sessions", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}
