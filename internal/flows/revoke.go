package flows

import (
	"context"
	"time"
)

type RevokeStore interface {
	RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int, error)
}

type TeamResolver func(ctx context.Context, userID string) (string, error)

// RevokeDeps captures revoke-all dependencies.
type RevokeDeps struct {
	Store       RevokeStore
	ResolveTeam TeamResolver
	Warn        func(string, ...any)
}

// RevokeResult reports the revoke-all outcome plus the owner's team when the
// directory could resolve it.
type RevokeResult struct {
	Revoked int
	TeamID  string
	Err     error
}

// RunRevokeAll invalidates every refresh record of userID. Team resolution
// runs after the revoke and its failure only drops TeamID.
func RunRevokeAll(ctx context.Context, userID string, now time.Time, deps RevokeDeps) RevokeResult {
	n, err := deps.Store.RevokeAllForUser(ctx, userID, now)
	if err != nil {
		return RevokeResult{Err: err}
	}

	result := RevokeResult{Revoked: n}
	if deps.ResolveTeam != nil {
		teamID, err := deps.ResolveTeam(ctx, userID)
		if err != nil {
			warn(deps.Warn, "goSession: team lookup failed", "user_id", userID, "error", err)
		} else {
			result.TeamID = teamID
		}
	}
	return result
}
