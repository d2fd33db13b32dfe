// Package telemetry installs the OpenTelemetry metric pipeline. Metrics
// recorded through the global meter are exported via the prometheus
// bridge and show up on the /metrics endpoint.
package telemetry

import (
	"fmt"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// newResource describes the service.
// Standalone rather than resource.Default() to avoid schema URL
// conflicts across semconv versions.
func newResource(serviceName string) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)
}

// NewMeterProvider creates a MeterProvider whose metrics are gathered
// by the given prometheus registerer.
func NewMeterProvider(serviceName string, reg promclient.Registerer) (*metric.MeterProvider, error) {
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}
	return metric.NewMeterProvider(
		metric.WithResource(newResource(serviceName)),
		metric.WithReader(exporter),
	), nil
}

// SetupMetrics installs a prometheus-backed MeterProvider as the global
// otel provider, feeding the default registry served by /metrics. The
// returned provider should be shut down on exit.
func SetupMetrics(serviceName string) (*metric.MeterProvider, error) {
	mp, err := NewMeterProvider(serviceName, promclient.DefaultRegisterer)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(mp)
	return mp, nil
}
