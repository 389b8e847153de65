// Package otel provides OpenTelemetry tracer provider initialization and management.
package otel

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mrzor/procwatch/internal/config"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// InitProvider initializes the OpenTelemetry tracer provider for the given
// monitoring session. The session ID becomes the service instance ID so
// spans from concurrent runs stay distinguishable.
//
// Uses OTLP/HTTP. The HTTP client honors HTTP_PROXY, HTTPS_PROXY and
// NO_PROXY through Go's standard net/http transport.
func InitProvider(cfg *config.OTELConfig, sessionID string) (*sdktrace.TracerProvider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	endpoint := cfg.Endpoint()
	log.Printf("exporting spans to %s (service %s)", endpoint, cfg.ServiceName)

	opts := []otlptracehttp.Option{
		otlptracehttp.WithTimeout(10 * time.Second),
	}
	if strings.Contains(endpoint, "://") {
		// Full URL per the OTLP env var convention; scheme decides TLS.
		opts = append(opts, otlptracehttp.WithEndpointURL(endpoint))
	} else {
		opts = append(opts,
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		)
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	resourceAttrs := []resource.Option{
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceInstanceID(sessionID),
		),
	}

	// Add custom resource attributes from environment
	customAttrs := cfg.ParseResourceAttributes()
	if len(customAttrs) > 0 {
		resourceAttrs = append(resourceAttrs, resource.WithAttributes(customAttrs...))
	}

	res, err := resource.New(ctx, resourceAttrs...)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	return tp, nil
}

// ShutdownProvider gracefully shuts down the tracer provider, flushing any remaining spans.
func ShutdownProvider(tp *sdktrace.TracerProvider, ctx context.Context) error {
	if tp == nil {
		return nil
	}

	if err := tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}

	return nil
}
