package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"

	"github.com/novacrm/auth-service/internal/infra/config"
)

const (
	serviceVersion     = "1.0.0"
	exportTimeout      = 10 * time.Second
	tracerStopDeadline = 10 * time.Second
)

// Provider bundles the metrics registry every collector registers on and, when enabled,
// the OpenTelemetry tracer provider.
type Provider struct {
	registry *prometheus.Registry
	tracer   *sdktrace.TracerProvider
	logger   *zap.Logger
}

// Option adjusts how Attach wires tracing.
type Option func(*options)

type options struct {
	exporter sdktrace.SpanExporter
}

// WithSpanExporter replaces the OTLP/HTTP exporter, typically with an in-memory one.
func WithSpanExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.exporter = exp }
}

// Attach builds a registry pre-populated with runtime collectors and starts tracing if
// cfg.Telemetry.Enabled is set. The tracer provider and W3C propagators are installed
// globally so the HTTP tracing middleware picks them up.
func Attach(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, opts ...Option) (*Provider, error) {
	if cfg == nil {
		return nil, errors.New("telemetry: config is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}

	p := &Provider{registry: registry, logger: logger}
	if !cfg.Telemetry.Enabled {
		return p, nil
	}

	tracer, err := startTracing(ctx, cfg, o.exporter)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	p.tracer = tracer

	otel.SetTracerProvider(tracer)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing enabled",
		zap.String("otlp_endpoint", cfg.Telemetry.OTLPEndpoint),
		zap.Float64("sampling_rate", cfg.Telemetry.SamplingRate),
	)

	return p, nil
}

func startTracing(ctx context.Context, cfg *config.AppConfig, exporter sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	if exporter == nil {
		exp, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.Telemetry.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
			otlptracehttp.WithTimeout(exportTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		exporter = exp
	}

	name := cfg.Telemetry.ServiceName
	if name == "" {
		name = cfg.App.Name
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(name),
		semconv.ServiceVersion(serviceVersion),
		semconv.DeploymentEnvironment(cfg.App.Env),
	))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Telemetry.SamplingRate))),
	), nil
}

// Registry is where application collectors are registered and scraped from.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

// TracingEnabled reports whether spans are exported.
func (p *Provider) TracingEnabled() bool {
	return p != nil && p.tracer != nil
}

// Shutdown flushes pending spans and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tracer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, tracerStopDeadline)
	defer cancel()

	p.logger.Info("stopping tracer provider")
	if err := p.tracer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	return nil
}
