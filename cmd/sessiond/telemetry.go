package main

import (
	"context"
	"errors"
	"fmt"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/envconfig"
	otelexport "github.com/MrEthical07/goSession/metrics/export/otel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/zap"
)

type shutdownFunc func(context.Context) error

// initOTelMetrics pushes engine metrics over OTLP/gRPC when enabled. The
// Prometheus endpoint keeps working either way.
func initOTelMetrics(ctx context.Context, cfg envconfig.OTelSettings, engine *goSession.Engine, logger *zap.Logger) (shutdownFunc, error) {
	if !cfg.Enabled {
		logger.Info("otel metrics disabled")
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	mp, err := newMeterProvider(ctx, cfg, sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.ExportInterval)))
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, err
	}
	otel.SetMeterProvider(mp)

	engineMetrics, err := otelexport.NewOTelExporter(mp.Meter("github.com/MrEthical07/goSession"), engine)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, fmt.Errorf("register engine metrics: %w", err)
	}

	logger.Info("otel metrics initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.Duration("interval", cfg.ExportInterval))
	return func(ctx context.Context) error {
		return errors.Join(engineMetrics.Close(), mp.Shutdown(ctx))
	}, nil
}

func newMeterProvider(ctx context.Context, cfg envconfig.OTelSettings, reader sdkmetric.Reader) (*sdkmetric.MeterProvider, error) {
	attrs := []attribute.KeyValue{attribute.String("service.name", cfg.ServiceName)}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", cfg.Environment))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	), nil
}
