// Package telemetry sets up OpenTelemetry exporters for the runner.
package telemetry

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"go.bbrapi.dev/runner/pkg/version"
)

// ServiceName is reported as service.name.
const ServiceName = "bbr-runner"

// Config configures the exporters. Standard OTEL_* environment variables
// are honored as well.
type Config struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Endpoint string `yaml:"endpoint" json:"endpoint"` // OTLP endpoint, empty uses the OTEL_EXPORTER_OTLP_ENDPOINT default
	Insecure bool   `yaml:"insecure" json:"insecure"`
	Metrics  bool   `yaml:"metrics" json:"metrics"`
	Traces   bool   `yaml:"traces" json:"traces"`
}

// DefaultConfig exports nothing until enabled.
var DefaultConfig = Config{
	Enabled: false,
	Metrics: true,
	Traces:  true,
}

// Init configures the global providers. The returned cleanup flushes and
// stops the exporters.
func Init(ctx context.Context, cfg Config) (cleanup func(), err error) {
	if !cfg.Enabled || (!cfg.Metrics && !cfg.Traces) {
		return func() {}, nil
	}
	opts := []otelconfig.Option{
		otelconfig.WithServiceName(ServiceName),
		otelconfig.WithServiceVersion(version.String()),
		otelconfig.WithMetricsEnabled(cfg.Metrics),
		otelconfig.WithTracesEnabled(cfg.Traces),
		otelconfig.WithExporterInsecure(cfg.Insecure),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, otelconfig.WithExporterEndpoint(cfg.Endpoint))
	}
	shutdown, err := otelconfig.ConfigureOpenTelemetry(opts...)
	if err != nil {
		return nil, fmt.Errorf("error configuring OpenTelemetry: %w", err)
	}
	logr.FromContextOrDiscard(ctx).Info("telemetry enabled",
		"endpoint", cfg.Endpoint, "metrics", cfg.Metrics, "traces", cfg.Traces)
	return shutdown, nil
}

var meter = otel.Meter("runner")

// ObserveServers reports the number of connected game servers and loaded
// modules each time metrics are collected.
func ObserveServers(servers func() int, modules func() int) error {
	srv, err := meter.Int64ObservableGauge("runner.servers.connected",
		metric.WithDescription("Game servers connected to the runner"))
	if err != nil {
		return err
	}
	mods, err := meter.Int64ObservableGauge("runner.modules.loaded",
		metric.WithDescription("Modules of the current generation"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(srv, int64(servers()))
		o.ObserveInt64(mods, int64(modules()))
		return nil
	}, srv, mods)
	return err
}
