package autorefresh

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeServer mimics the refresh endpoint and one protected API route.
type fakeServer struct {
	refreshes atomic.Int32
	current   atomic.Value // string: the access token the API accepts
	reject    atomic.Bool
}

func (s *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(RefreshPath, func(w http.ResponseWriter, r *http.Request) {
		s.refreshes.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if s.reject.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":{"code":"TOKEN_REUSED","message":"refresh token reuse detected"}}`))
			return
		}
		if r.Header.Get("X-Build-ID") == "old" {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"success":false,"error":{"code":"STALE_DEPLOYMENT","message":"client build is out of date"}}`))
			return
		}
		tok := "access-" + time.Now().Format(time.RFC3339Nano)
		s.current.Store(tok)
		http.SetCookie(w, &http.Cookie{Name: "access_token", Value: tok, Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "r-" + tok, Path: "/"})
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{"access_expires_at": time.Now().Add(15 * time.Minute)},
		})
	})
	mux.HandleFunc("/api/echo", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("access_token")
		cur, _ := s.current.Load().(string)
		if err != nil || ck.Value != cur {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	})
	return mux
}

func newTransportHarness(t *testing.T) (*fakeServer, *http.Client, *Agent, *HTTPRefresher) {
	t.Helper()
	fs := &fakeServer{}
	fs.current.Store("initial")
	srv := httptest.NewServer(fs.handler())
	t.Cleanup(srv.Close)

	refresher, err := NewHTTPRefresher(srv.URL)
	require.NoError(t, err)
	agent, err := New(Config{Refresher: refresher})
	require.NoError(t, err)
	t.Cleanup(agent.Close)

	client := &http.Client{
		Jar:       refresher.Client.Jar,
		Transport: &Transport{Agent: agent, Jar: refresher.Client.Jar},
	}
	return fs, client, agent, refresher
}

func TestTransportRetriesOnceAfterRefresh(t *testing.T) {
	fs, client, agent, _ := newTransportHarness(t)

	resp, err := client.Post(fakeURL(t, client, "/api/echo"), "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, "hello", string(body))
	require.Equal(t, int32(1), fs.refreshes.Load())
	require.Equal(t, StateScheduled, agent.State())
}

func TestTransportGivesUpWhenRefreshRejected(t *testing.T) {
	fs, client, agent, _ := newTransportHarness(t)
	fs.reject.Store(true)

	resp, err := client.Get(fakeURL(t, client, "/api/echo"))
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, StateLoggedOut, agent.State())

	// no further refresh attempts once logged out
	resp, err = client.Get(fakeURL(t, client, "/api/echo"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, int32(1), fs.refreshes.Load())
}

func TestHTTPRefresherMapsErrorCodes(t *testing.T) {
	fs, _, _, refresher := newTransportHarness(t)

	refresher.BuildID = "old"
	_, err := refresher.Refresh(t.Context())
	require.ErrorIs(t, err, ErrStaleDeployment)

	refresher.BuildID = ""
	fs.reject.Store(true)
	_, err = refresher.Refresh(t.Context())
	require.ErrorIs(t, err, ErrUnauthorized)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, KindTokenReused, apiErr.Kind)
	require.False(t, apiErr.Transient())
}

func TestHTTPRefresherClearDropsCookies(t *testing.T) {
	_, client, _, refresher := newTransportHarness(t)

	_, err := refresher.Refresh(t.Context())
	require.NoError(t, err)
	u := mustURL(t, fakeURL(t, client, "/"))
	require.Len(t, refresher.Client.Jar.Cookies(u), 2)

	refresher.Clear()
	require.Empty(t, refresher.Client.Jar.Cookies(u))
}

func fakeURL(t *testing.T, client *http.Client, path string) string {
	t.Helper()
	tr, ok := client.Transport.(*Transport)
	require.True(t, ok)
	refresher, ok := tr.Agent.cfg.Refresher.(*HTTPRefresher)
	require.True(t, ok)
	return refresher.BaseURL + path
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
