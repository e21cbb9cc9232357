package goSession

import (
	"context"
	"errors"
	"fmt"
	"time"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/store"
	"go.uber.org/zap"
)

// Engine owns the token codec, the refresh store, the limiter and the audit
// dispatcher, and exposes the session lifecycle operations.
//
// Engine is safe for concurrent use. It is configured once by Builder and
// treated as immutable afterwards.
type Engine struct {
	config        Config
	jwtManager    *jwt.Manager
	store         store.Store
	rateLimiter   *rate.Limiter
	audit         *internalaudit.Dispatcher
	metrics       *Metrics
	directory     UserDirectory
	authenticator Authenticator
	logger        *zap.Logger
	now           func() time.Time
	flows         flows.Deps
}

// Close drains the audit dispatcher. Close does not close the store or the
// Redis client; the caller owns them.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Ping checks the refresh store.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// VerifyAccess validates an access token by signature and expiry only. It
// never consults the store.
func (e *Engine) VerifyAccess(ctx context.Context, token string) (*jwt.Claims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.jwtManager.VerifyKind(token, jwt.KindAccess, e.now())
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return claims, nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warn(msg string, kv ...any) {
	e.logger.Sugar().Warnw(msg, kv...)
}
