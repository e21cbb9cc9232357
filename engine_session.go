package goSession

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/store"
	"go.uber.org/zap"
)

// IssueSession mints an access/refresh pair for an already authenticated
// user and persists the refresh record. Password login and any alternate
// entry point end here.
func (e *Engine) IssueSession(ctx context.Context, userID string) (*TokenPair, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, errors.New("goSession: empty user id")
	}

	res, err := flows.RunIssueSession(ctx, userID, e.now(), e.flows.Issue)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			e.metricInc(MetricStoreUnavailable)
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil, err
	}

	e.metricInc(MetricSessionCreated)
	return &TokenPair{
		UserID:           userID,
		AccessToken:      res.AccessToken,
		AccessExpiresAt:  res.AccessExpiresAt,
		RefreshToken:     res.RefreshToken,
		RefreshExpiresAt: res.RefreshExpiresAt,
	}, nil
}

// Login authenticates identifier/password through the configured
// Authenticator and issues a session.
func (e *Engine) Login(ctx context.Context, identifier, password string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.authenticator == nil {
		return nil, fmt.Errorf("%w: no authenticator configured", ErrEngineNotReady)
	}

	res := flows.RunLogin(ctx, identifier, password, e.flows.Login)
	if res.Failure != flows.LoginFailureNone {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditActionLoginFailure, "", "", false, res.Err, map[string]string{"identifier": identifier})
		switch res.Failure {
		case flows.LoginFailureRateLimited:
			return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, rate.ErrRateLimited)
		case flows.LoginFailureAuthenticator:
			return nil, res.Err
		default:
			return nil, ErrInvalidCredentials
		}
	}

	pair, err := e.IssueSession(ctx, res.UserID)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditActionLogin, res.UserID, "", true, nil, nil)
	return pair, nil
}

// Logout records a cookie-only logout. The refresh record stays untouched so
// the user's other devices remain signed in.
func (e *Engine) Logout(ctx context.Context, userID string) {
	if e == nil {
		return
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, AuditActionLogout, userID, "", true, nil, nil)
}

// RevokeAll invalidates every refresh record of userID, including rotations
// racing this call, and emits a revoke audit event. Audit failures never fail
// the revoke.
func (e *Engine) RevokeAll(ctx context.Context, userID string) (int, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}

	res := flows.RunRevokeAll(ctx, userID, e.now(), e.flows.Revoke)
	if res.Err != nil {
		e.metricInc(MetricStoreUnavailable)
		e.logger.Error("goSession: revoke-all failed", zap.String("user_id", userID), zap.Error(res.Err))
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	}

	e.metricInc(MetricRevokeAll)
	if e.metrics != nil {
		e.metrics.Add(MetricSessionsRevoked, uint64(res.Revoked))
	}
	e.emitAudit(ctx, AuditActionRevoke, userID, res.TeamID, true, nil, map[string]string{
		"revoked": fmt.Sprint(res.Revoked),
	})
	return res.Revoked, nil
}

// Sessions lists the user's active refresh records, newest first.
func (e *Engine) Sessions(ctx context.Context, userID string) ([]Session, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	records, err := e.store.ListActive(ctx, userID, e.now())
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	out := make([]Session, 0, len(records))
	for _, r := range records {
		out = append(out, Session{ID: r.ID, IssuedAt: r.IssuedAt, ExpiresAt: r.ExpiresAt})
	}
	return out, nil
}
