package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel/attribute"
)

// OTELConfig holds OpenTelemetry configuration from environment variables.
type OTELConfig struct {
	ServiceName        string `env:"OTEL_SERVICE_NAME" envDefault:"procwatch"`
	ResourceAttributes string `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:""`
	ExporterEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	TracesEndpoint     string `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT" envDefault:""`
}

// ParseOTELConfig parses OTEL configuration from environment variables.
func ParseOTELConfig() (*OTELConfig, error) {
	var cfg OTELConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse OTEL config: %w", err)
	}
	return &cfg, nil
}

// Enabled reports whether span export is configured at all. Without an
// endpoint the final report stays on the console only.
func (c *OTELConfig) Enabled() bool {
	return c.Endpoint() != ""
}

// Endpoint returns the endpoint for traces.
// Priority: OTEL_EXPORTER_OTLP_TRACES_ENDPOINT > OTEL_EXPORTER_OTLP_ENDPOINT.
func (c *OTELConfig) Endpoint() string {
	if c.TracesEndpoint != "" {
		return c.TracesEndpoint
	}
	return c.ExporterEndpoint
}

// ParseResourceAttributes parses the OTEL_RESOURCE_ATTRIBUTES string.
// Format: key1=value1,key2=value2
func (c *OTELConfig) ParseResourceAttributes() []attribute.KeyValue {
	if c.ResourceAttributes == "" {
		return nil
	}

	var attrs []attribute.KeyValue
	for _, pair := range strings.Split(c.ResourceAttributes, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key != "" {
			attrs = append(attrs, attribute.String(key, strings.TrimSpace(value)))
		}
	}
	return attrs
}
