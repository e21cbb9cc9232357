package goSession

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/store"
	"github.com/MrEthical07/goSession/store/redisstore"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. Builder instances are configured during
// initialization and used for exactly one Build call.
type Builder struct {
	config Config
	store  store.Store
	redis  redis.UniversalClient

	directory     UserDirectory
	authenticator Authenticator
	auditSink     AuditSink
	logger        *zap.Logger
	clock         func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the refresh record store. When unset, Build uses a Redis
// store over the WithRedis client, or an in-memory store outside production
// mode.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithRedis sets the client used for refresh throttling and, when no store
// is configured, for refresh records.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserDirectory(d UserDirectory) *Builder {
	b.directory = d
	return b
}

func (b *Builder) WithAuthenticator(a Authenticator) *Builder {
	b.authenticator = a
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// -------- TOKEN CODEC --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
	})
	if err != nil {
		return nil, err
	}

	// -------- REFRESH STORE --------
	st := b.store
	if st == nil {
		switch {
		case b.redis != nil:
			st = redisstore.NewStore(b.redis, cfg.Refresh.RedisPrefix, cfg.Refresh.StoreRetention)
		case cfg.Security.ProductionMode:
			return nil, errors.New("ProductionMode requires a durable refresh store")
		default:
			logger.Warn("goSession: no refresh store configured, using in-memory store")
			st = store.NewMemoryStore()
		}
	}

	engine := &Engine{
		config:        cfg,
		jwtManager:    jm,
		store:         st,
		directory:     b.directory,
		authenticator: b.authenticator,
		logger:        logger,
		now:           b.clock,
		metrics:       NewMetrics(cfg.Metrics),
	}
	if engine.now == nil {
		engine.now = time.Now
	}

	// -------- RATE LIMITER --------
	if b.redis != nil {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			Prefix:                  cfg.Refresh.RedisPrefix,
			EnableRefreshThrottle:   cfg.Security.EnableRefreshThrottle,
			MaxRefreshAttempts:      cfg.Security.MaxRefreshAttempts,
			RefreshCooldownDuration: cfg.Security.RefreshCooldownDuration,
			EnableLoginThrottle:     cfg.Security.EnableLoginThrottle,
			MaxLoginAttempts:        cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration:   cfg.Security.LoginCooldownDuration,
		})
	} else if cfg.Security.EnableRefreshThrottle || cfg.Security.EnableLoginThrottle {
		logger.Warn("goSession: throttling enabled without redis client, limiter disabled")
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	engine.flows = engine.buildFlowDeps()

	b.built = true

	return engine, nil
}

func (e *Engine) buildFlowDeps() flows.Deps {
	issueAccess := func(subject string, now time.Time) (string, time.Time, error) {
		return e.jwtManager.Issue(jwt.KindAccess, subject, now)
	}
	issueRefresh := func(subject string, now time.Time) (string, time.Time, error) {
		return e.jwtManager.Issue(jwt.KindRefresh, subject, now)
	}
	verifyRefresh := func(token string, now time.Time) (*jwt.Claims, error) {
		return e.jwtManager.VerifyKind(token, jwt.KindRefresh, now)
	}

	deps := flows.Deps{
		Issue: flows.IssueDeps{
			IssueAccess:  issueAccess,
			IssueRefresh: issueRefresh,
			Store:        e.store,
		},
		Login: flows.LoginDeps{
			InvalidCredentials: ErrInvalidCredentials,
			Warn:               e.warn,
		},
		Refresh: flows.RefreshDeps{
			VerifyRefresh: verifyRefresh,
			IssueAccess:   issueAccess,
			IssueRefresh:  issueRefresh,
			NewRecordID:   uuid.NewString,
			ClientKey:     throttleKeyFromContext,
			Store:         e.store,
			Warn:          e.warn,
		},
		Probe: flows.ProbeDeps{
			VerifyRefresh: verifyRefresh,
			Store:         e.store,
		},
		Revoke: flows.RevokeDeps{
			Store: e.store,
			Warn:  e.warn,
		},
	}

	if e.authenticator != nil {
		deps.Login.Authenticate = e.authenticator.Authenticate
	}
	if e.rateLimiter != nil {
		deps.Login.RateLimiter = e.rateLimiter
		deps.Refresh.RateLimiter = e.rateLimiter
	}
	if e.directory != nil {
		deps.Revoke.ResolveTeam = func(ctx context.Context, userID string) (string, error) {
			user, err := e.directory.GetUserWithTeam(ctx, userID)
			if err != nil {
				return "", err
			}
			return user.TeamID, nil
		}
	}
	return deps
}
