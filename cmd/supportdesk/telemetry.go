package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph/observability"
)

// telemetry holds the process-wide OpenTelemetry providers.
type telemetry struct {
	metrics  observability.MetricsRecorder
	handler  http.Handler
	tracing  bool
	shutdown []func(context.Context) error
}

// initTelemetry installs a Prometheus-backed meter provider when metrics is
// set and a stdout span exporter writing to traceOut when it is non-nil.
func initTelemetry(metrics bool, traceOut io.Writer) (*telemetry, error) {
	t := &telemetry{metrics: observability.NoopMetrics{}}

	if metrics {
		registry := prometheus.NewRegistry()
		exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
		otel.SetMeterProvider(mp)
		t.shutdown = append(t.shutdown, mp.Shutdown)
		t.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		recorder, err := observability.NewProviderRecorder(mp)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("create metrics recorder: %w", err), t.Shutdown(context.Background()))
		}
		t.metrics = recorder
	}

	if traceOut != nil {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(traceOut), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, errors.Join(fmt.Errorf("create trace exporter: %w", err), t.Shutdown(context.Background()))
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		otel.SetTracerProvider(tp)
		t.shutdown = append(t.shutdown, tp.Shutdown)
		t.tracing = true
	}

	return t, nil
}

// Shutdown flushes and stops every provider.
func (t *telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}
