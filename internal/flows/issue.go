package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/store"
)

// TokenIssuer signs a token for subject at now and returns it with its expiry.
type TokenIssuer func(subject string, now time.Time) (string, time.Time, error)

type IssueStore interface {
	Create(ctx context.Context, userID string, tokenHash store.Hash, issuedAt, expiresAt time.Time) (string, error)
}

// IssueDeps captures session issuance dependencies.
type IssueDeps struct {
	IssueAccess  TokenIssuer
	IssueRefresh TokenIssuer
	Store        IssueStore
}

// IssueResult carries a freshly minted pair and the record backing it.
type IssueResult struct {
	RecordID         string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RunIssueSession mints an access/refresh pair for userID and persists the
// hashed refresh token. Nothing is persisted when signing fails.
func RunIssueSession(ctx context.Context, userID string, now time.Time, deps IssueDeps) (IssueResult, error) {
	refreshToken, refreshExp, err := deps.IssueRefresh(userID, now)
	if err != nil {
		return IssueResult{}, err
	}
	accessToken, accessExp, err := deps.IssueAccess(userID, now)
	if err != nil {
		return IssueResult{}, err
	}

	recordID, err := deps.Store.Create(ctx, userID, store.HashToken(refreshToken), now.Truncate(time.Second), refreshExp)
	if err != nil {
		return IssueResult{}, err
	}

	return IssueResult{
		RecordID:         recordID,
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExp,
	}, nil
}
