package autorefresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// State is the agent's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateScheduled
	StateRefreshing
	StateLoggedOut
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateRefreshing:
		return "refreshing"
	case StateLoggedOut:
		return "logged_out"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Result describes the access token obtained by a refresh.
type Result struct {
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Refresher performs one refresh round trip.
type Refresher interface {
	Refresh(ctx context.Context) (Result, error)
}

// clearer is implemented by refreshers that hold local credentials.
type clearer interface {
	Clear()
}

// Config configures an Agent.
type Config struct {
	Refresher Refresher
	// Ratio of the token lifetime after which a proactive refresh runs.
	// Defaults to 0.8.
	Ratio float64
	// MinDelay floors the wait before a scheduled refresh. Defaults to 1s.
	MinDelay time.Duration
	// OnLoggedOut fires once when a refresh is rejected.
	OnLoggedOut func(err error)
	// OnStaleDeployment runs before Do retries a call rejected as stale,
	// typically to reload client assets.
	OnStaleDeployment func()
	Logger            *zap.Logger
	Now               func() time.Time
}

// Agent keeps a client session alive: it schedules proactive refreshes,
// coalesces concurrent refreshes and logs out when the server rejects the
// session.
type Agent struct {
	cfg    Config
	group  singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	timer     *time.Timer
	refreshAt time.Time
}

// New returns an idle agent.
func New(cfg Config) (*Agent, error) {
	if cfg.Refresher == nil {
		return nil, errors.New("autorefresh: refresher required")
	}
	if cfg.Ratio <= 0 || cfg.Ratio >= 1 {
		cfg.Ratio = 0.8
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Agent{cfg: cfg, ctx: ctx, cancel: cancel}, nil
}

// State returns the current state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// NextRefreshAt returns when the scheduled refresh fires, or zero.
func (a *Agent) NextRefreshAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateScheduled {
		return time.Time{}
	}
	return a.refreshAt
}

// Start schedules the first proactive refresh for a token issued at
// issuedAt and expiring at expiresAt. A token that is already expired
// leaves the agent idle.
func (a *Agent) Start(issuedAt, expiresAt time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateClosed {
		return
	}
	if !a.scheduleLocked(issuedAt, expiresAt) {
		a.state = StateIdle
		a.cfg.Logger.Warn("not scheduling refresh for expired token",
			zap.Time("issued_at", issuedAt), zap.Time("expires_at", expiresAt))
	}
}

// scheduleLocked arms the timer and reports whether the token was usable.
func (a *Agent) scheduleLocked(issuedAt, expiresAt time.Time) bool {
	a.stopTimerLocked()

	now := a.cfg.Now()
	if !expiresAt.After(issuedAt) || !expiresAt.After(now) {
		return false
	}

	lifetime := expiresAt.Sub(issuedAt)
	a.refreshAt = issuedAt.Add(time.Duration(float64(lifetime) * a.cfg.Ratio))
	delay := a.refreshAt.Sub(now)
	if delay < a.cfg.MinDelay {
		delay = a.cfg.MinDelay
		a.refreshAt = now.Add(delay)
	}

	a.state = StateScheduled
	a.timer = time.AfterFunc(delay, a.fire)
	return true
}

func (a *Agent) fire() {
	a.mu.Lock()
	scheduled := a.state == StateScheduled
	a.mu.Unlock()
	if !scheduled {
		return
	}
	if err := a.Refresh(a.ctx); err != nil {
		a.cfg.Logger.Debug("scheduled refresh failed", zap.Error(err))
	}
}

func (a *Agent) stopTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.refreshAt = time.Time{}
}

// Refresh runs one refresh, or joins the one already in flight. A rejected
// session moves the agent to StateLoggedOut; transient failures leave it
// idle so a later call can retry.
func (a *Agent) Refresh(ctx context.Context) error {
	a.mu.Lock()
	switch a.state {
	case StateLoggedOut:
		a.mu.Unlock()
		return ErrLoggedOut
	case StateClosed:
		a.mu.Unlock()
		return ErrClosed
	}
	a.mu.Unlock()

	_, err, _ := a.group.Do("refresh", func() (interface{}, error) {
		return nil, a.refreshOnce(ctx)
	})
	return err
}

func (a *Agent) refreshOnce(ctx context.Context) error {
	a.mu.Lock()
	if a.state == StateLoggedOut || a.state == StateClosed {
		a.mu.Unlock()
		return ErrLoggedOut
	}
	a.stopTimerLocked()
	a.state = StateRefreshing
	a.mu.Unlock()

	res, err := a.cfg.Refresher.Refresh(ctx)

	a.mu.Lock()
	if a.state == StateClosed {
		a.mu.Unlock()
		return ErrClosed
	}
	if err == nil {
		if !a.scheduleLocked(res.IssuedAt, res.ExpiresAt) {
			a.state = StateIdle
			a.mu.Unlock()
			a.cfg.Logger.Warn("refresh returned an expired token",
				zap.Time("issued_at", res.IssuedAt), zap.Time("expires_at", res.ExpiresAt))
			return ErrBadExpiry
		}
		a.mu.Unlock()
		return nil
	}
	if isTransient(err) {
		a.state = StateIdle
		a.mu.Unlock()
		a.cfg.Logger.Warn("refresh failed, session kept", zap.Error(err))
		return err
	}
	a.state = StateLoggedOut
	a.mu.Unlock()

	a.cfg.Logger.Info("refresh rejected, logging out", zap.Error(err))
	if c, ok := a.cfg.Refresher.(clearer); ok {
		c.Clear()
	}
	if a.cfg.OnLoggedOut != nil {
		a.cfg.OnLoggedOut(err)
	}
	return err
}

// Do runs fn and retries it once when the server reports a stale
// deployment, after calling OnStaleDeployment.
func (a *Agent) Do(ctx context.Context, fn func(context.Context) error) error {
	err := fn(ctx)
	if !errors.Is(err, ErrStaleDeployment) {
		return err
	}
	if a.cfg.OnStaleDeployment != nil {
		a.cfg.OnStaleDeployment()
	}
	return fn(ctx)
}

// Close stops the timer. No refresh fires after Close returns.
func (a *Agent) Close() {
	a.mu.Lock()
	a.stopTimerLocked()
	a.state = StateClosed
	a.mu.Unlock()
	a.cancel()
}
