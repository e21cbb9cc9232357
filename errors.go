package goSession

import "errors"

var (
	// ErrUnauthorized is returned when a caller has no valid access token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTokenInvalid is returned for access tokens that fail verification.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned for access tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrRefreshInvalid is returned when a refresh token is malformed, forged,
	// unknown or revoked.
	ErrRefreshInvalid = errors.New("refresh token invalid")
	// ErrRefreshExpired is returned when a refresh token or its record expired.
	ErrRefreshExpired = errors.New("refresh token expired")
	// ErrRefreshReuse is returned when an already rotated refresh token is
	// presented again. Every session of the owner is revoked.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrSessionNotFound is returned when no record matches the refresh token.
	// It is always joined with ErrRefreshInvalid.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStoreUnavailable is returned when the refresh store cannot be reached.
	// It is transient; callers must not clear client credentials on it.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrRefreshRateLimited is returned when the caller exceeded the refresh budget.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrInvalidCredentials is returned by Login for unknown users or bad passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEngineNotReady is returned when an Engine method runs on a nil or
	// partially built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
