package httpapi

import (
	"errors"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
)

type errorMapping struct {
	status int
	code   string
	msg    string
	// transient failures leave client cookies in place
	transient bool
}

func mapEngineError(err error) errorMapping {
	switch {
	case errors.Is(err, goSession.ErrStoreUnavailable):
		return errorMapping{http.StatusServiceUnavailable, CodeStoreUnavailable, "session store unavailable", true}
	case errors.Is(err, goSession.ErrRefreshRateLimited):
		return errorMapping{http.StatusTooManyRequests, CodeRateLimited, "too many refresh attempts", true}
	case errors.Is(err, goSession.ErrRefreshReuse):
		return errorMapping{http.StatusUnauthorized, CodeTokenReused, "refresh token reuse detected", false}
	case errors.Is(err, goSession.ErrRefreshExpired), errors.Is(err, goSession.ErrTokenExpired):
		return errorMapping{http.StatusUnauthorized, CodeTokenExpired, "token expired", false}
	case errors.Is(err, goSession.ErrRefreshInvalid), errors.Is(err, goSession.ErrTokenInvalid):
		return errorMapping{http.StatusUnauthorized, CodeTokenInvalid, "token invalid", false}
	case errors.Is(err, goSession.ErrInvalidCredentials):
		return errorMapping{http.StatusUnauthorized, CodeUnauthorized, "invalid credentials", false}
	case errors.Is(err, goSession.ErrUnauthorized):
		return errorMapping{http.StatusUnauthorized, CodeUnauthorized, "unauthorized", false}
	default:
		return errorMapping{http.StatusInternalServerError, CodeInternal, "internal error", false}
	}
}
