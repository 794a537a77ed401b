package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"retail-analytics/internal/config"
)

const instrumentationName = "retail-analytics"

// Tracing owns the process-wide tracer provider. When tracing is disabled the
// global provider is a no-op and Shutdown does nothing.
type Tracing struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// SetupTracing installs the global tracer provider and propagators. Spans
// are printed to w by the stdout exporter; a nil w means stderr.
func SetupTracing(cfg config.TelemetryConfig, w io.Writer, logger *slog.Logger) (*Tracing, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.TracingEnabled {
		np := noop.NewTracerProvider()
		otel.SetTracerProvider(np)
		return &Tracing{tracer: np.Tracer(instrumentationName)}, nil
	}

	if w == nil {
		w = os.Stderr
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	return newTracing(cfg.ServiceName, sdktrace.WithBatcher(exporter), logger), nil
}

func newTracing(serviceName string, opt sdktrace.TracerProviderOption, logger *slog.Logger) *Tracing {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)

	tp := sdktrace.NewTracerProvider(opt, sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	if logger != nil {
		logger.Info("tracing initialized", "service", serviceName)
	}
	return &Tracing{provider: tp, tracer: tp.Tracer(instrumentationName)}
}

func (t *Tracing) Tracer() trace.Tracer {
	return t.tracer
}

// Shutdown flushes pending spans.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
