package autorefresh

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// RefreshPath is the server's rotation endpoint.
const RefreshPath = "/api/auth/refresh"

// HTTPRefresher refreshes through POST /api/auth/refresh. The session
// cookies live in the client's jar.
type HTTPRefresher struct {
	BaseURL     string
	Client      *http.Client
	BuildID     string
	AccessName  string
	RefreshName string
	Now         func() time.Time
}

// NewHTTPRefresher returns a refresher with its own cookie jar.
func NewHTTPRefresher(baseURL string) (*HTTPRefresher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &HTTPRefresher{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Client:      &http.Client{Jar: jar, Timeout: 10 * time.Second},
		AccessName:  "access_token",
		RefreshName: "refresh_token",
		Now:         time.Now,
	}, nil
}

func (h *HTTPRefresher) Refresh(ctx context.Context) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+RefreshPath, nil)
	if err != nil {
		return Result{}, err
	}
	if h.BuildID != "" {
		req.Header.Set("X-Build-ID", h.BuildID)
	}

	issuedAt := h.now()
	resp, err := h.Client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, ParseError(resp)
	}

	var env struct {
		Data struct {
			AccessExpiresAt time.Time `json:"access_expires_at"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return Result{}, fmt.Errorf("decode refresh response: %w", err)
	}
	return Result{IssuedAt: issuedAt, ExpiresAt: env.Data.AccessExpiresAt}, nil
}

// Clear drops both session cookies from the jar.
func (h *HTTPRefresher) Clear() {
	if h.Client == nil || h.Client.Jar == nil {
		return
	}
	u, err := url.Parse(h.BaseURL + "/")
	if err != nil {
		return
	}
	h.Client.Jar.SetCookies(u, []*http.Cookie{
		{Name: h.AccessName, Path: "/", MaxAge: -1},
		{Name: h.RefreshName, Path: "/", MaxAge: -1},
	})
}

func (h *HTTPRefresher) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}
