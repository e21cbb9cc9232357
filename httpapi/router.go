package httpapi

import (
	"net/http"
	"net/netip"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Dependencies wires the router.
type Dependencies struct {
	Engine *goSession.Engine
	Logger *zap.Logger
	// BuildID enables stale-deployment detection on /api routes.
	BuildID string
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Pages serves everything outside /api behind the route guard.
	Pages http.Handler
	// OnRefreshable is passed to the route guard.
	OnRefreshable http.Handler
	// TrustedProxies may set X-Forwarded-For and X-Real-IP. Everyone else is
	// identified by RemoteAddr.
	TrustedProxies []netip.Prefix
}

// NewRouter builds the HTTP surface: auth API, health, metrics, and the
// guarded page handler.
func NewRouter(dep Dependencies) http.Handler {
	logger := dep.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := NewHandler(dep.Engine, logger)
	cfg := dep.Engine.Config()

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(ClientIP(dep.TrustedProxies))
	r.Use(RequestLogger(logger))

	r.Get("/healthz", h.Healthz)
	if dep.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", dep.Metrics)
	}

	requireAuth := middleware.RequireAuth(dep.Engine, cfg.Cookie.AccessName, h.unauthorized)
	revokeAuth := middleware.RequireAuth(dep.Engine, cfg.Cookie.AccessName, h.unauthorizedClear)

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(BuildCheck(dep.BuildID))
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Post("/refresh", h.Refresh)
		r.Get("/refresh", h.Probe)
		r.With(revokeAuth).Post("/revoke", h.Revoke)
		r.With(requireAuth).Get("/sessions", h.Sessions)
	})

	if dep.Pages != nil {
		guard := middleware.RouteGuard(dep.Engine, middleware.GuardConfig{
			ProtectedPrefixes: cfg.Guard.ProtectedPrefixes,
			ExcludedPrefixes:  cfg.Guard.ExcludedPrefixes,
			SignInPath:        cfg.Guard.SignInPath,
			AccessCookie:      cfg.Cookie.AccessName,
			RefreshCookie:     cfg.Cookie.RefreshName,
			OnRefreshable:     dep.OnRefreshable,
		})
		r.NotFound(guard(dep.Pages).ServeHTTP)
	}

	return r
}
