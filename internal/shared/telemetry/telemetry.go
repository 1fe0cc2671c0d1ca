// Package telemetry wires OpenTelemetry for budgetwatch: Prometheus metrics
// on /metrics and, when enabled, OTLP traces of daily runs and HTTP calls.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultServiceName is reported when no service name is configured.
const DefaultServiceName = "budgetwatch"

// Resource attribute keys specific to budgetwatch.
const (
	ProviderEnvKey     = attribute.Key("budgetwatch.provider.environment")
	SchedulerTZKey     = attribute.Key("budgetwatch.scheduler.timezone")
	SchedulerCronKey   = attribute.Key("budgetwatch.scheduler.schedule")
	SchedulerEnableKey = attribute.Key("budgetwatch.scheduler.enabled")
)

type Config struct {
	ServiceName string
	// Environment is the Plaid environment, reported as deployment.environment.
	Environment string
	// Timezone and Schedule describe the daily run this process drives.
	Timezone         string
	Schedule         string
	SchedulerEnabled bool
	OTLPEndpoint     string
	// Traces turns on OTLP trace export. Metrics are always collected.
	Traces bool
}

// provider calls dominate job and request latency, so buckets reach 30s
var latencyBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Init sets up OpenTelemetry with Prometheus metrics and, when enabled,
// OTLP trace export. Returns a shutdown function that must be called on
// application exit.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error

	shutdown = func(ctx context.Context) error {
		var errs []error
		for i := len(shutdownFuncs) - 1; i >= 0; i-- {
			errs = append(errs, shutdownFuncs[i](ctx))
		}
		if err := errors.Join(errs...); err != nil {
			return fmt.Errorf("telemetry shutdown: %w", err)
		}
		return nil
	}

	res, err := NewResource(ctx, cfg)
	if err != nil {
		return shutdown, err
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return shutdown, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithView(Views()...),
	)
	otel.SetMeterProvider(meterProvider)
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)

	if cfg.Traces {
		traceExporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return shutdown, fmt.Errorf("failed to create trace exporter: %w", err)
		}

		tracerProvider := sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(traceExporter,
				sdktrace.WithBatchTimeout(5*time.Second),
			),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		)
		otel.SetTracerProvider(tracerProvider)
		shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Printf("OpenTelemetry initialized (service=%s, env=%s, tz=%s, traces=%t)",
		serviceName(cfg), cfg.Environment, cfg.Timezone, cfg.Traces)

	return shutdown, nil
}

// NewResource describes this budgetwatch process: service identity, the
// provider environment it talks to and the schedule it runs on.
func NewResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName(cfg)),
		semconv.ServiceInstanceID(uuid.NewString()),
		SchedulerEnableKey.Bool(cfg.SchedulerEnabled),
	}
	if cfg.Environment != "" {
		attrs = append(attrs,
			semconv.DeploymentEnvironment(cfg.Environment),
			ProviderEnvKey.String(cfg.Environment),
		)
	}
	if cfg.Timezone != "" {
		attrs = append(attrs, SchedulerTZKey.String(cfg.Timezone))
	}
	if cfg.Schedule != "" {
		attrs = append(attrs, SchedulerCronKey.String(cfg.Schedule))
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(attrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// Views sets latency buckets for batch jobs and HTTP requests.
func Views() []sdkmetric.View {
	histogram := sdkmetric.Stream{
		Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: latencyBuckets},
	}
	return []sdkmetric.View{
		sdkmetric.NewView(sdkmetric.Instrument{Name: "batch.job.duration"}, histogram),
		sdkmetric.NewView(sdkmetric.Instrument{Name: "http.server.request.duration"}, histogram),
	}
}

func serviceName(cfg Config) string {
	if cfg.ServiceName == "" {
		return DefaultServiceName
	}
	return cfg.ServiceName
}

// MetricsHandler serves the Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
