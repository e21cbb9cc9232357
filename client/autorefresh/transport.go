package autorefresh

import (
	"net/http"
	"strings"
)

// Transport retries a request once after a reactive refresh when the server
// answers 401. Requests with a body are retried only when GetBody is set.
type Transport struct {
	Base  http.RoundTripper
	Agent *Agent
	// Jar, when set, supplies the refreshed cookies for the retry. It must be
	// the jar the refresher writes to.
	Jar http.CookieJar
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base().RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || t.Agent == nil {
		return resp, err
	}
	if strings.HasSuffix(req.URL.Path, RefreshPath) {
		return resp, nil
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}

	if refreshErr := t.Agent.Refresh(req.Context()); refreshErr != nil {
		return resp, nil
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		retry.Body = body
	}
	if t.Jar != nil {
		retry.Header.Del("Cookie")
		for _, c := range t.Jar.Cookies(req.URL) {
			retry.AddCookie(c)
		}
	}

	_ = resp.Body.Close()
	return t.base().RoundTrip(retry)
}
