package httpapi

import (
	"net/http"
	"time"

	goSession "github.com/MrEthical07/goSession"
)

type cookieJar struct {
	cfg        goSession.CookieConfig
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func newCookieJar(cfg goSession.Config) cookieJar {
	return cookieJar{
		cfg:        cfg.Cookie,
		accessTTL:  cfg.JWT.AccessTTL,
		refreshTTL: cfg.JWT.RefreshTTL,
	}
}

func (c cookieJar) cookie(name, value string, ttl time.Duration) *http.Cookie {
	path := c.cfg.Path
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   c.cfg.Domain,
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   c.cfg.Secure,
		SameSite: c.cfg.SameSite,
	}
}

func (c cookieJar) set(w http.ResponseWriter, pair *goSession.TokenPair) {
	access := c.cookie(c.cfg.AccessName, pair.AccessToken, c.accessTTL)
	access.Expires = pair.AccessExpiresAt
	refresh := c.cookie(c.cfg.RefreshName, pair.RefreshToken, c.refreshTTL)
	refresh.Expires = pair.RefreshExpiresAt
	http.SetCookie(w, access)
	http.SetCookie(w, refresh)
}

func (c cookieJar) clear(w http.ResponseWriter) {
	for _, name := range []string{c.cfg.AccessName, c.cfg.RefreshName} {
		ck := c.cookie(name, "", 0)
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		http.SetCookie(w, ck)
	}
}

func (c cookieJar) refreshToken(r *http.Request) string {
	ck, err := r.Cookie(c.cfg.RefreshName)
	if err != nil {
		return ""
	}
	return ck.Value
}
