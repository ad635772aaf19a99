package infrastructure

import (
	"context"
	"fmt"

	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	promclient "github.com/prometheus/client_golang/prometheus"
)

// Telemetry bundles the meter the miner records into and the prometheus
// registry the transport exposes on /metrics.
type Telemetry struct {
	Meter    metric.Meter
	Registry *promclient.Registry
	provider *sdkmetric.MeterProvider
}

// InitTelemetry builds a meter provider that exports through the
// prometheus bridge, so otel-instrumented counters show up on the
// scrape endpoint without a separate push pipeline.
func InitTelemetry() (*Telemetry, error) {
	registry := promclient.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	return &Telemetry{
		Meter:    provider.Meter("corrmine"),
		Registry: registry,
		provider: provider,
	}, nil
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
