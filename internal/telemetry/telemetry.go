// Package telemetry sets up the process-wide OpenTelemetry trace pipeline
// the security gate's decision spans (internal/audit) are recorded into,
// wiring go.opentelemetry.io/otel/sdk and an OTLP-HTTP exporter; when
// telemetry is disabled the process keeps the package's default no-op
// tracer, so every internal/audit span is a correctly-shaped but
// harmless call.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/nextlevelbuilder/agenthost/internal/config"
)

// Shutdown flushes and stops the tracer provider, if one was installed.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Setup installs a global TracerProvider from cfg. If telemetry is
// disabled, Setup is a no-op and the package-default (no-op) tracer
// continues to answer otel.Tracer calls.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (Shutdown, error) {
	if !cfg.Enabled {
		return noop, nil
	}

	var opts []otlptracehttp.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return noop, fmt.Errorf("telemetry: build otlp exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "agenthost"
	}
	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", serviceName)))
	if err != nil {
		return noop, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
