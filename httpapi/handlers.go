package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/middleware"
	"go.uber.org/zap"
)

// Handler serves the auth endpoints over one Engine.
type Handler struct {
	engine  *goSession.Engine
	cookies cookieJar
	logger  *zap.Logger
}

// NewHandler binds the auth endpoints to engine.
func NewHandler(engine *goSession.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		engine:  engine,
		cookies: newCookieJar(engine.Config()),
		logger:  logger,
	}
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type sessionResponse struct {
	UserID           string    `json:"user_id"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
}

type sessionView struct {
	ID        string    `json:"id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CurrentUser returns the user id authenticated by RequireAuth.
func CurrentUser(r *http.Request) (string, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}
	if req.Identifier == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, "identifier and password are required")
		return
	}

	pair, err := h.engine.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		m := mapEngineError(err)
		if m.status == http.StatusInternalServerError {
			h.logger.Error("login failed", zap.Error(err))
		}
		writeError(w, r, m.status, m.code, m.msg)
		return
	}

	h.cookies.set(w, pair)
	writeJSON(w, r, http.StatusOK, sessionResponse{
		UserID:           pair.UserID,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

// Logout clears both cookies only. Server-side records stay so other devices
// remain signed in.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if ck, err := r.Cookie(h.cookies.cfg.AccessName); err == nil {
		if claims, err := h.engine.VerifyAccess(r.Context(), ck.Value); err == nil {
			h.engine.Logout(r.Context(), claims.Subject)
		}
	}
	h.cookies.clear(w)
	writeJSON(w, r, http.StatusOK, map[string]bool{"logged_out": true})
}

// Refresh rotates the refresh cookie. Any failure clears both cookies except
// transient ones (store outage, throttling).
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := h.cookies.refreshToken(r)
	if token == "" {
		h.cookies.clear(w)
		writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, "missing refresh token")
		return
	}

	pair, err := h.engine.Refresh(r.Context(), token, h.engine.Now())
	if err != nil {
		m := mapEngineError(err)
		if !m.transient {
			h.cookies.clear(w)
		}
		if m.status >= http.StatusInternalServerError {
			h.logger.Warn("refresh failed", zap.Error(err))
		}
		writeError(w, r, m.status, m.code, m.msg)
		return
	}

	h.cookies.set(w, pair)
	writeJSON(w, r, http.StatusOK, sessionResponse{
		UserID:           pair.UserID,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

// Probe reports whether the refresh cookie is usable. It never sets or
// clears cookies.
func (h *Handler) Probe(w http.ResponseWriter, r *http.Request) {
	token := h.cookies.refreshToken(r)
	if token == "" {
		writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, "missing refresh token")
		return
	}

	res, err := h.engine.Probe(r.Context(), token, h.engine.Now())
	if err != nil {
		m := mapEngineError(err)
		writeError(w, r, m.status, m.code, m.msg)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"user_id":            res.UserID,
		"refresh_expires_at": res.ExpiresAt,
	})
}

// Revoke signs the caller out everywhere and clears their cookies.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID, ok := CurrentUser(r)
	if !ok {
		h.cookies.clear(w)
		writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
		return
	}

	n, err := h.engine.RevokeAll(r.Context(), userID)
	if err != nil {
		m := mapEngineError(err)
		if !m.transient {
			h.cookies.clear(w)
		}
		h.logger.Error("revoke failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, r, m.status, m.code, m.msg)
		return
	}

	h.cookies.clear(w)
	writeJSON(w, r, http.StatusOK, map[string]int{"revoked": n})
}

func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := CurrentUser(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
		return
	}

	sessions, err := h.engine.Sessions(r.Context(), userID)
	if err != nil {
		m := mapEngineError(err)
		writeError(w, r, m.status, m.code, m.msg)
		return
	}

	out := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionView{ID: s.ID, IssuedAt: s.IssuedAt, ExpiresAt: s.ExpiresAt})
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{"sessions": out})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, CodeStoreUnavailable, "session store unavailable")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	code := CodeUnauthorized
	if errors.Is(err, goSession.ErrTokenExpired) {
		code = CodeTokenExpired
	}
	writeError(w, r, http.StatusUnauthorized, code, "unauthorized")
}

// unauthorizedClear is unauthorized for endpoints whose failures sign the
// client out.
func (h *Handler) unauthorizedClear(w http.ResponseWriter, r *http.Request, err error) {
	h.cookies.clear(w)
	h.unauthorized(w, r, err)
}
