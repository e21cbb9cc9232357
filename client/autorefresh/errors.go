package autorefresh

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrStaleDeployment matches an APIError raised because the server runs a
	// different build than the client.
	ErrStaleDeployment = errors.New("stale deployment")
	// ErrUnauthorized matches an APIError that rejects the session itself.
	ErrUnauthorized = errors.New("session rejected")
	// ErrLoggedOut is returned by Refresh once the agent has logged out.
	ErrLoggedOut = errors.New("logged out")
	// ErrClosed is returned by Refresh after Close.
	ErrClosed = errors.New("agent closed")
	// ErrBadExpiry means a refresh succeeded but reported a token that is
	// already expired. The agent stays idle instead of refreshing again.
	ErrBadExpiry = errors.New("refresh returned an expired token")
)

// Kind classifies a server error code.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthorized
	KindTokenExpired
	KindTokenInvalid
	KindTokenReused
	KindRateLimited
	KindStoreUnavailable
	KindStaleDeployment
	KindBadRequest
)

var kindByCode = map[string]Kind{
	"UNAUTHORIZED":      KindUnauthorized,
	"TOKEN_EXPIRED":     KindTokenExpired,
	"TOKEN_INVALID":     KindTokenInvalid,
	"TOKEN_REUSED":      KindTokenReused,
	"RATE_LIMITED":      KindRateLimited,
	"STORE_UNAVAILABLE": KindStoreUnavailable,
	"STALE_DEPLOYMENT":  KindStaleDeployment,
	"BAD_REQUEST":       KindBadRequest,
}

// APIError is a decoded error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
	Kind    Kind
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

// Is lets callers branch with errors.Is on ErrStaleDeployment and
// ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrStaleDeployment:
		return e.Kind == KindStaleDeployment
	case ErrUnauthorized:
		switch e.Kind {
		case KindUnauthorized, KindTokenExpired, KindTokenInvalid, KindTokenReused:
			return true
		}
	}
	return false
}

// Transient reports whether the server kept the session: the call may be
// retried later without signing in again.
func (e *APIError) Transient() bool {
	switch e.Kind {
	case KindRateLimited, KindStoreUnavailable, KindStaleDeployment:
		return true
	}
	return e.Status >= http.StatusInternalServerError
}

// ParseError decodes a non-2xx response into an *APIError. The body is read
// but not closed.
func ParseError(resp *http.Response) error {
	var env struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	apiErr := &APIError{Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Kind = kindByCode[env.Error.Code]
	} else {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// isTransient reports whether err leaves the session intact. Transport
// failures never reached the server and count as transient.
func isTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return true
}
