package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goSession/internal/rate"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureInput
	LoginFailureRateLimited
	LoginFailureCredentials
	LoginFailureAuthenticator
)

type LoginRateLimiter interface {
	CheckLogin(ctx context.Context, identifier string) error
	IncrementLogin(ctx context.Context, identifier string) error
	ResetLogin(ctx context.Context, identifier string) error
}

// LoginDeps captures password login dependencies.
type LoginDeps struct {
	Authenticate       func(ctx context.Context, identifier, password string) (string, error)
	RateLimiter        LoginRateLimiter
	InvalidCredentials error
	Warn               func(string, ...any)
}

// LoginResult carries the authenticated user id or failure metadata.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	UserID  string
}

// RunLogin authenticates identifier/password. It does not issue tokens; the
// engine calls RunIssueSession on success.
func RunLogin(ctx context.Context, identifier, password string, deps LoginDeps) LoginResult {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return LoginResult{Failure: LoginFailureInput, Err: deps.InvalidCredentials}
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckLogin(ctx, identifier); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return LoginResult{Failure: LoginFailureRateLimited, Err: err}
			}
			warn(deps.Warn, "goSession: login limiter unavailable", "error", err)
		}
	}

	userID, err := deps.Authenticate(ctx, identifier, password)
	if err != nil {
		if deps.InvalidCredentials != nil && errors.Is(err, deps.InvalidCredentials) {
			if deps.RateLimiter != nil {
				if incErr := deps.RateLimiter.IncrementLogin(ctx, identifier); incErr != nil && !errors.Is(incErr, rate.ErrRateLimited) {
					warn(deps.Warn, "goSession: login limiter increment failed", "error", incErr)
				}
			}
			return LoginResult{Failure: LoginFailureCredentials, Err: err}
		}
		return LoginResult{Failure: LoginFailureAuthenticator, Err: err}
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.ResetLogin(ctx, identifier); err != nil {
			warn(deps.Warn, "goSession: login limiter reset failed", "error", err)
		}
	}

	return LoginResult{UserID: userID}
}

func warn(fn func(string, ...any), msg string, kv ...any) {
	if fn != nil {
		fn(msg, kv...)
	}
}
