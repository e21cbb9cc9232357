package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrEthical07/goSession/jwt"
)

// AccessVerifier validates an access token by signature and expiry.
// *goSession.Engine satisfies it.
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, token string) (*jwt.Claims, error)
}

// DefaultExcludedPrefixes are never guarded: API routes answer with status
// codes instead of redirects, and assets must load on the sign-in page.
var DefaultExcludedPrefixes = []string{"/api/", "/static/", "/_next/", "/favicon.ico"}

// GuardConfig configures RouteGuard.
type GuardConfig struct {
	ProtectedPrefixes []string
	// ExcludedPrefixes extends DefaultExcludedPrefixes.
	ExcludedPrefixes []string
	SignInPath       string
	AccessCookie     string
	RefreshCookie    string
	// OnRefreshable, when set, handles protected requests that carry no
	// usable access token but do carry a refresh cookie. It typically runs a
	// refresh-then-retry page. When nil the guard redirects.
	OnRefreshable http.Handler
}

type claimsContextKey struct{}

// ClaimsFromContext returns the access claims placed by RouteGuard or
// RequireAuth.
func ClaimsFromContext(ctx context.Context) (*jwt.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*jwt.Claims)
	return claims, ok
}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *jwt.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// RouteGuard gates page routes under cfg.ProtectedPrefixes. It performs no
// I/O beyond cookie reads and signature verification, and never refreshes
// inline.
func RouteGuard(verifier AccessVerifier, cfg GuardConfig) func(http.Handler) http.Handler {
	if cfg.AccessCookie == "" {
		cfg.AccessCookie = "access_token"
	}
	if cfg.RefreshCookie == "" {
		cfg.RefreshCookie = "refresh_token"
	}
	if cfg.SignInPath == "" {
		cfg.SignInPath = "/sign-in"
	}
	excluded := append(append([]string(nil), DefaultExcludedPrefixes...), cfg.ExcludedPrefixes...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if hasAnyPrefix(path, excluded) || !matchesProtected(path, cfg.ProtectedPrefixes) {
				next.ServeHTTP(w, r)
				return
			}

			if token := cookieValue(r, cfg.AccessCookie); token != "" && verifier != nil {
				if claims, err := verifier.VerifyAccess(r.Context(), token); err == nil {
					next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
					return
				}
			}

			if cfg.OnRefreshable != nil && cookieValue(r, cfg.RefreshCookie) != "" {
				cfg.OnRefreshable.ServeHTTP(w, r)
				return
			}

			http.Redirect(w, r, signInURL(cfg.SignInPath, r.URL), http.StatusSeeOther)
		})
	}
}

// RequireAuth is the API variant of RouteGuard: it accepts the access token
// from cookieName or an Authorization bearer header and calls onFail instead
// of redirecting. A nil onFail writes a plain 401.
func RequireAuth(verifier AccessVerifier, cookieName string, onFail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	if onFail == nil {
		onFail = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := cookieValue(r, cookieName)
			if token == "" {
				token, _ = bearerToken(r.Header.Get("Authorization"))
			}
			if token == "" || verifier == nil {
				onFail(w, r, errMissingToken)
				return
			}

			claims, err := verifier.VerifyAccess(r.Context(), token)
			if err != nil {
				onFail(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func matchesProtected(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func cookieValue(r *http.Request, name string) string {
	if name == "" {
		return ""
	}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func signInURL(signIn string, from *url.URL) string {
	next := from.Path
	if from.RawQuery != "" {
		next += "?" + from.RawQuery
	}
	return signIn + "?" + url.Values{"next": {next}}.Encode()
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
