package telemetry

import (
	"context"
	"strings"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap/zaptest"

	"github.com/novacrm/auth-service/internal/infra/config"
)

func TestAttachWithoutTracing(t *testing.T) {
	p, err := Attach(context.Background(), &config.AppConfig{}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Attach returned error: %v", err)
	}
	if p.TracingEnabled() {
		t.Fatal("tracing should be disabled")
	}

	families, err := p.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather returned error: %v", err)
	}

	var sawRuntime bool
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "go_") {
			sawRuntime = true
			break
		}
	}
	if !sawRuntime {
		t.Fatal("expected go runtime collectors on the registry")
	}

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
}

func TestAttachRejectsNilConfig(t *testing.T) {
	if _, err := Attach(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

type capturingExporter struct {
	mu    sync.Mutex
	spans []sdktrace.ReadOnlySpan
}

func (e *capturingExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spans = append(e.spans, spans...)
	return nil
}

func (e *capturingExporter) Shutdown(context.Context) error { return nil }

func TestAttachWithTracingExportsOnShutdown(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	cfg := &config.AppConfig{
		App:       config.AppSettings{Name: "auth-service", Env: "test"},
		Telemetry: config.TelemetrySettings{Enabled: true, SamplingRate: 1},
	}
	exporter := &capturingExporter{}

	p, err := Attach(context.Background(), cfg, zaptest.NewLogger(t), WithSpanExporter(exporter))
	if err != nil {
		t.Fatalf("Attach returned error: %v", err)
	}
	if !p.TracingEnabled() {
		t.Fatal("tracing should be enabled")
	}

	_, span := otel.Tracer("test").Start(context.Background(), "login")
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}

	if len(exporter.spans) != 1 {
		t.Fatalf("expected 1 exported span, got %d", len(exporter.spans))
	}
	got := exporter.spans[0]
	if got.Name() != "login" {
		t.Fatalf("unexpected span name %q", got.Name())
	}

	var service string
	for _, attr := range got.Resource().Attributes() {
		if attr.Key == semconv.ServiceNameKey {
			service = attr.Value.AsString()
		}
	}
	if service != "auth-service" {
		t.Fatalf("expected service name to fall back to the app name, got %q", service)
	}
}
