package main

import (
	"context"
	"database/sql"
	"fmt"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/envconfig"
	"github.com/MrEthical07/goSession/store/pgstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// backend is the storage wiring for one STORE_BACKEND value.
type backend struct {
	redis   redis.UniversalClient
	db      *sql.DB
	closers []func()
}

// apply wires the backend into builder. Audit events always go to the
// log and, with postgres, to auth_audit_log as well.
func (b *backend) apply(builder *goSession.Builder, logger *zap.Logger) {
	sinks := goSession.MultiSink{goSession.NewZapAuditSink(logger.Named("audit"))}
	if b.redis != nil {
		builder.WithRedis(b.redis)
	}
	if b.db != nil {
		builder.WithStore(pgstore.New(b.db))
		sinks = append(sinks, pgstore.NewAuditSink(b.db, logger))
	}
	builder.WithAuditSink(sinks)
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, s envconfig.Settings, logger *zap.Logger) (*backend, error) {
	b := &backend{}
	switch s.StoreBackend {
	case envconfig.BackendMemory:
		logger.Warn("using in-memory refresh store; sessions are lost on restart")
	case envconfig.BackendMemRedis:
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start miniredis: %w", err)
		}
		b.closers = append(b.closers, mr.Close)
		b.redis = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		b.closers = append(b.closers, func() { _ = b.redis.Close() })
		logger.Info("using embedded miniredis", zap.String("addr", mr.Addr()))
	case envconfig.BackendRedis:
		b.redis = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{s.RedisAddr}})
		b.closers = append(b.closers, func() { _ = b.redis.Close() })
		if err := b.redis.Ping(ctx).Err(); err != nil {
			b.Close()
			return nil, fmt.Errorf("redis ping %s: %w", s.RedisAddr, err)
		}
		logger.Info("using redis", zap.String("addr", s.RedisAddr))
	case envconfig.BackendPostgres:
		db, err := pgstore.Open(ctx, s.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.db = db
		b.closers = append(b.closers, func() { _ = db.Close() })
		if err := pgstore.RunMigrations(ctx, db); err != nil {
			b.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("using postgres")
	default:
		return nil, fmt.Errorf("unknown store backend %q", s.StoreBackend)
	}
	return b, nil
}
