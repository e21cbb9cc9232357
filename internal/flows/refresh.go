package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/store"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureVerify
	RefreshFailureRateLimited
	RefreshFailureMint
	RefreshFailureReuse
	RefreshFailureNotFound
	RefreshFailureRevoked
	RefreshFailureExpired
	RefreshFailureStore
	RefreshFailureIssueAccess
)

// RefreshResult carries either the rotated token pair or failure metadata.
type RefreshResult struct {
	Failure          RefreshFailureKind
	Err              error
	UserID           string
	OldRecordID      string
	NewRecordID      string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, clientKey string) error
}

type RefreshStore interface {
	Rotate(ctx context.Context, req store.RotateRequest) (*store.Record, error)
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	VerifyRefresh func(token string, now time.Time) (*jwt.Claims, error)
	IssueAccess   TokenIssuer
	IssueRefresh  TokenIssuer
	NewRecordID   func() string
	ClientKey     func(context.Context) string
	RateLimiter   RefreshRateLimiter
	Store         RefreshStore
	Warn          func(string, ...any)
}

// RunRefresh verifies the presented refresh token, rotates its record and
// issues the next pair. The old token is unusable once this returns success.
func RunRefresh(ctx context.Context, presented string, now time.Time, deps RefreshDeps) RefreshResult {
	claims, err := deps.VerifyRefresh(presented, now)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureVerify, Err: err}
	}
	userID := claims.Subject

	if deps.RateLimiter != nil {
		key := "user:" + userID
		if deps.ClientKey != nil {
			if k := deps.ClientKey(ctx); k != "" {
				key = k
			}
		}
		if err := deps.RateLimiter.CheckRefresh(ctx, key); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return RefreshResult{Failure: RefreshFailureRateLimited, Err: err, UserID: userID}
			}
			warn(deps.Warn, "goSession: refresh limiter unavailable", "error", err)
		}
	}

	nextRefresh, nextRefreshExp, err := deps.IssueRefresh(userID, now)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureMint, Err: err, UserID: userID}
	}

	req := store.RotateRequest{
		UserID:    userID,
		OldHash:   store.HashToken(presented),
		NewID:     deps.NewRecordID(),
		NewHash:   store.HashToken(nextRefresh),
		IssuedAt:  now.Truncate(time.Second),
		ExpiresAt: nextRefreshExp,
		Now:       now,
	}
	old, err := deps.Store.Rotate(ctx, req)
	if err != nil {
		result := RefreshResult{Err: err, UserID: userID}
		if old != nil {
			result.UserID = old.UserID
			result.OldRecordID = old.ID
		}
		switch {
		case errors.Is(err, store.ErrReused):
			result.Failure = RefreshFailureReuse
		case errors.Is(err, store.ErrNotFound):
			result.Failure = RefreshFailureNotFound
		case errors.Is(err, store.ErrRevoked):
			result.Failure = RefreshFailureRevoked
		case errors.Is(err, store.ErrExpired):
			result.Failure = RefreshFailureExpired
		case errors.Is(err, store.ErrDuplicate):
			result.Failure = RefreshFailureMint
		default:
			result.Failure = RefreshFailureStore
		}
		return result
	}

	accessToken, accessExp, err := deps.IssueAccess(old.UserID, now)
	if err != nil {
		return RefreshResult{
			Failure:     RefreshFailureIssueAccess,
			Err:         err,
			UserID:      old.UserID,
			OldRecordID: old.ID,
			NewRecordID: req.NewID,
		}
	}

	return RefreshResult{
		UserID:           old.UserID,
		OldRecordID:      old.ID,
		NewRecordID:      req.NewID,
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     nextRefresh,
		RefreshExpiresAt: nextRefreshExp,
	}
}
