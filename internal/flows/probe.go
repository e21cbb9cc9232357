package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/store"
)

type ProbeStore interface {
	FindActive(ctx context.Context, tokenHash store.Hash, now time.Time) (*store.Record, error)
}

// ProbeDeps captures read-only refresh probe dependencies.
type ProbeDeps struct {
	VerifyRefresh func(token string, now time.Time) (*jwt.Claims, error)
	Store         ProbeStore
}

// RunProbe reports whether presented would currently be accepted for a
// refresh. It never mutates the store.
func RunProbe(ctx context.Context, presented string, now time.Time, deps ProbeDeps) (*store.Record, error) {
	if _, err := deps.VerifyRefresh(presented, now); err != nil {
		return nil, err
	}
	return deps.Store.FindActive(ctx, store.HashToken(presented), now)
}
