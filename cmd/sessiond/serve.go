package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/directory"
	"github.com/MrEthical07/goSession/httpapi"
	"github.com/MrEthical07/goSession/internal/envconfig"
	"github.com/MrEthical07/goSession/internal/logging"
	"github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/password"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides SESSIOND_ADDR)")
	return cmd
}

func serve(ctx context.Context, opts *options, addrOverride string) error {
	settings, err := envconfig.Load(opts.envFile, nil)
	if err != nil {
		return err
	}
	if addrOverride != "" {
		settings.Addr = addrOverride
	}

	logger, err := logging.New(settings.LogLevel, settings.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	be, err := openBackend(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	users, err := newDirectory(settings.DemoUsers)
	if err != nil {
		return err
	}
	if users.Len() == 0 {
		logger.Warn("DEMO_USERS is empty; login will reject every credential")
	}

	builder := goSession.New().
		WithConfig(settings.Session).
		WithLogger(logger.Named("gosession")).
		WithAuthenticator(users).
		WithUserDirectory(users)
	be.apply(builder, logger)

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	shutdownMetrics, err := initOTelMetrics(ctx, settings.OTel, engine, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), settings.GracefulTimeout)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			logger.Warn("otel metrics shutdown failed", zap.Error(err))
		}
	}()

	proxies, err := httpapi.ParseTrustedProxies(settings.TrustedProxies)
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(httpapi.Dependencies{
		Engine:         engine,
		Logger:         logger,
		BuildID:        settings.BuildID,
		Metrics:        prometheus.NewPrometheusExporter(engine).Handler(),
		Pages:          newPages(settings.Session),
		OnRefreshable:  refreshingPage(settings.Session.Guard.SignInPath),
		TrustedProxies: proxies,
	})

	server := &http.Server{
		Addr:         settings.Addr,
		Handler:      router,
		ReadTimeout:  settings.ReadTimeout,
		WriteTimeout: settings.WriteTimeout,
		IdleTimeout:  settings.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", settings.Addr), zap.String("store", settings.StoreBackend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server shutdown completed")
	return nil
}

func newDirectory(seeds string) (*directory.Directory, error) {
	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return nil, err
	}
	users, err := directory.New(hasher)
	if err != nil {
		return nil, err
	}
	parsed, err := directory.ParseSeeds(seeds)
	if err != nil {
		return nil, err
	}
	if err := users.Load(parsed); err != nil {
		return nil, err
	}
	return users, nil
}
