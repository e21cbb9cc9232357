package goSession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/store"
	"go.uber.org/zap"
)

// Refresh rotates the presented refresh token and returns the next pair.
//
// Two concurrent calls with the same token yield exactly one success; the
// other fails with ErrRefreshReuse. A reuse revokes every session of the
// token's owner when Refresh.RevokeAllOnReuse is set. ErrStoreUnavailable is
// transient and must not clear client credentials.
func (e *Engine) Refresh(ctx context.Context, presented string, now time.Time) (*TokenPair, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	res := flows.RunRefresh(ctx, presented, now, e.flows.Refresh)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricRefreshLatency, time.Since(start))
	}

	if res.Failure == flows.RefreshFailureNone {
		e.metricInc(MetricRefreshSuccess)
		return &TokenPair{
			UserID:           res.UserID,
			AccessToken:      res.AccessToken,
			AccessExpiresAt:  res.AccessExpiresAt,
			RefreshToken:     res.RefreshToken,
			RefreshExpiresAt: res.RefreshExpiresAt,
		}, nil
	}

	e.metricInc(MetricRefreshFailure)
	return nil, e.mapRefreshFailure(ctx, res, now)
}

func (e *Engine) mapRefreshFailure(ctx context.Context, res flows.RefreshResult, now time.Time) error {
	switch res.Failure {
	case flows.RefreshFailureVerify:
		if errors.Is(res.Err, jwt.ErrExpired) {
			return ErrRefreshExpired
		}
		return fmt.Errorf("%w: %v", ErrRefreshInvalid, res.Err)
	case flows.RefreshFailureRateLimited:
		e.metricInc(MetricRefreshRateLimited)
		return ErrRefreshRateLimited
	case flows.RefreshFailureReuse:
		e.handleReuse(ctx, res, now)
		return ErrRefreshReuse
	case flows.RefreshFailureNotFound:
		return errors.Join(ErrRefreshInvalid, ErrSessionNotFound)
	case flows.RefreshFailureRevoked:
		return ErrRefreshInvalid
	case flows.RefreshFailureExpired:
		return ErrRefreshExpired
	case flows.RefreshFailureStore:
		e.metricInc(MetricStoreUnavailable)
		e.logger.Warn("goSession: refresh store failure", zap.Error(res.Err))
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	default:
		e.logger.Error("goSession: refresh token issuance failed", zap.String("user_id", res.UserID), zap.Error(res.Err))
		return fmt.Errorf("goSession: refresh: %w", res.Err)
	}
}

// handleReuse escalates a replayed token to a revoke-all of its owner.
func (e *Engine) handleReuse(ctx context.Context, res flows.RefreshResult, now time.Time) {
	e.metricInc(MetricRefreshReuseDetected)

	meta := map[string]string{"record_id": res.OldRecordID}
	if e.config.Refresh.RevokeAllOnReuse && res.UserID != "" {
		revoked := flows.RunRevokeAll(ctx, res.UserID, now, e.flows.Revoke)
		if revoked.Err != nil {
			e.logger.Error("goSession: revoke-all after reuse failed",
				zap.String("user_id", res.UserID), zap.Error(revoked.Err))
		} else {
			e.metricInc(MetricRevokeAll)
			if e.metrics != nil {
				e.metrics.Add(MetricSessionsRevoked, uint64(revoked.Revoked))
			}
			meta["revoked"] = fmt.Sprint(revoked.Revoked)
		}
	}

	e.logger.Warn("goSession: refresh token reuse detected",
		zap.String("user_id", res.UserID), zap.String("record_id", res.OldRecordID))
	e.emitAudit(ctx, AuditActionRefreshReuse, res.UserID, "", false, ErrRefreshReuse, meta)
}

// Probe reports whether presented would currently be accepted by Refresh,
// without rotating it.
func (e *Engine) Probe(ctx context.Context, presented string, now time.Time) (*ProbeResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	e.metricInc(MetricRefreshProbe)

	rec, err := flows.RunProbe(ctx, presented, now, e.flows.Probe)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrExpired), errors.Is(err, store.ErrExpired):
			return nil, ErrRefreshExpired
		case errors.Is(err, store.ErrNotFound):
			return nil, errors.Join(ErrRefreshInvalid, ErrSessionNotFound)
		case errors.Is(err, store.ErrUnavailable):
			e.metricInc(MetricStoreUnavailable)
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrRefreshInvalid, err)
		}
	}

	return &ProbeResult{UserID: rec.UserID, RecordID: rec.ID, ExpiresAt: rec.ExpiresAt}, nil
}
