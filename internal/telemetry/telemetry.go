// Package telemetry wires the agent's OpenTelemetry export. Telemetry is
// opt-in: field devices usually run with it disabled and only the global
// no-op providers are installed.
package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// metricInterval is deliberately long: agents run on battery-constrained
// devices and a chatty exporter defeats the point of a background service.
const metricInterval = 60 * time.Second

// Config holds configuration for the agent's telemetry export.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// AgentID identifies this device in the collector. Generated when empty.
	AgentID string

	// OTLPEndpoint is the collector address, host:port.
	OTLPEndpoint string

	Enabled bool
}

// Agent is the initialized telemetry pipeline.
type Agent struct {
	// AgentID is the instance id reported to the collector.
	AgentID string

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// Init sets up the global OpenTelemetry providers. With telemetry disabled
// it returns an Agent whose Shutdown is a no-op, and instrument lookups all
// over the codebase resolve to no-op implementations.
func Init(ctx context.Context, cfg Config) (*Agent, error) {
	if cfg.AgentID == "" {
		cfg.AgentID = uuid.NewString()
	}
	if !cfg.Enabled {
		return &Agent{AgentID: cfg.AgentID}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.ServiceInstanceID(cfg.AgentID),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, err
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(metricInterval),
		)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Agent{
		AgentID:        cfg.AgentID,
		tracerProvider: tracerProvider,
		meterProvider:  meterProvider,
	}, nil
}

// Shutdown flushes and stops the export pipeline.
func (a *Agent) Shutdown(ctx context.Context) error {
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			return err
		}
	}
	if a.meterProvider != nil {
		return a.meterProvider.Shutdown(ctx)
	}
	return nil
}
