// Package telemetry installs the global OpenTelemetry trace and meter
// providers.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"

	"github.com/nikhilbhutani/dialoguecast/internal/config"
)

// Shutdown flushes and stops the installed providers.
type Shutdown func(context.Context) error

// Setup installs trace and meter providers. The returned handler serves
// Prometheus metrics and is nil when the exporter could not be created.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (Shutdown, http.Handler, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry resource: %w", err)
	}

	tp, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry tracer: %w", err)
	}
	if tp != nil {
		otel.SetTracerProvider(tp)
	}

	mp, handler := newMeterProvider(res)
	otel.SetMeterProvider(mp)

	shutdown := func(ctx context.Context) error {
		var errs []error
		if err := mp.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if tp != nil {
			if err := tp.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	return shutdown, handler, nil
}

// newTracerProvider returns nil when tracing is disabled.
func newTracerProvider(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exporter := strings.ToLower(strings.TrimSpace(cfg.Exporter))
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	if endpoint != "" && (exporter == "" || exporter == "none") {
		exporter = "otlp"
	}

	var exp sdktrace.SpanExporter
	switch exporter {
	case "", "none":
		slog.Debug("tracing disabled")
		return nil, nil
	case "otlp":
		if endpoint == "" {
			return nil, errors.New("otlp exporter requires OTEL_EXPORTER_OTLP_ENDPOINT")
		}
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		e, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		exp = e
	case "stdout":
		e, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		exp = e
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}

	slog.Info("tracing initialized", "exporter", exporter, "endpoint", endpoint)
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}

func newMeterProvider(res *resource.Resource) (*sdkmetric.MeterProvider, http.Handler) {
	promExporter, err := prometheus.New()
	if err != nil {
		slog.Warn("prometheus exporter unavailable", "error", err)
		return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res)), nil
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithResource(res),
	), promhttp.Handler()
}
