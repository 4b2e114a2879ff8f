package config

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/bookhaven/book-lending-go/lending/postgresengine"
	"github.com/bookhaven/book-lending-go/oteladapters"
	"github.com/bookhaven/book-lending-go/promadapters"
)

const (
	otelServiceName      = "lending-service"
	metricExportInterval = 15 * time.Second
	providerStopTimeout  = 5 * time.Second
)

// OTelProviders holds the OpenTelemetry providers behind the store's
// observability options when telemetry is exported over OTLP.
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
}

// NewOTelProviders creates tracer and meter providers that export over
// OTLP gRPC to the given collector endpoint, and installs them as the
// global OpenTelemetry providers.
func NewOTelProviders(ctx context.Context, endpoint string) (*OTelProviders, error) {
	res, resErr := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(otelServiceName)),
	)
	if resErr != nil {
		return nil, resErr
	}

	traceExporter, traceErr := otlptracegrpc.New(
		ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if traceErr != nil {
		return nil, traceErr
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricExporter, metricErr := otlpmetricgrpc.New(
		ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if metricErr != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, metricErr
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(metricExportInterval))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &OTelProviders{
		TracerProvider: tracerProvider,
		MeterProvider:  meterProvider,
	}, nil
}

// StoreOptions returns the store observability options bridged through
// the OpenTelemetry adapters: contextual logging with trace correlation,
// metrics, and one span per store operation.
func (p *OTelProviders) StoreOptions() []postgresengine.Option {
	return []postgresengine.Option{
		postgresengine.WithContextualLogger(oteladapters.NewSlogBridgeLogger(otelServiceName)),
		postgresengine.WithMetrics(oteladapters.NewMetricsCollector(p.MeterProvider.Meter(otelServiceName))),
		postgresengine.WithTracing(oteladapters.NewTracingCollector(p.TracerProvider.Tracer(otelServiceName))),
	}
}

// Shutdown flushes and stops both providers.
func (p *OTelProviders) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), providerStopTimeout)
	defer cancel()

	return errors.Join(
		p.TracerProvider.Shutdown(ctx),
		p.MeterProvider.Shutdown(ctx),
	)
}

// PrometheusStoreOptions returns the store observability options for the
// default setup: metrics on the given Prometheus registerer, scraped via
// the /metrics endpoint.
func PrometheusStoreOptions(registerer prometheus.Registerer) []postgresengine.Option {
	return []postgresengine.Option{
		postgresengine.WithMetrics(promadapters.NewMetricsCollector(registerer)),
	}
}
