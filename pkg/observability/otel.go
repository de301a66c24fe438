package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// TracerName is the instrumentation scope used for ledger and store spans
const TracerName = "github.com/pricebulk/pricebulk"

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	Enabled        bool
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	Insecure       bool
	SampleRatio    float64
}

// OTelProviders holds OpenTelemetry providers for shutdown
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
}

// Tracer returns the application tracer, or a no-op tracer when tracing is disabled
func (p *OTelProviders) Tracer() trace.Tracer {
	if p == nil || p.TracerProvider == nil {
		return noop.NewTracerProvider().Tracer(TracerName)
	}
	return p.TracerProvider.Tracer(TracerName)
}

// InitOTel initializes the OpenTelemetry tracer provider. It returns nil providers
// when tracing is disabled.
func InitOTel(ctx context.Context, cfg OTelConfig, logger *logrus.Logger) (*OTelProviders, error) {
	if !cfg.Enabled {
		logger.Info("OpenTelemetry is disabled")
		return nil, nil
	}

	logger.Infof("Initializing OpenTelemetry with endpoint: %s", cfg.Endpoint)

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	grpcOpts := []grpc.DialOption{}
	if cfg.Insecure {
		grpcOpts = append(grpcOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	tracerProvider, err := initTracerProvider(ctx, cfg, res, grpcOpts, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer provider: %w", err)
	}

	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("OpenTelemetry initialized successfully")

	return &OTelProviders{TracerProvider: tracerProvider}, nil
}

func initTracerProvider(ctx context.Context, cfg OTelConfig, res *resource.Resource, grpcOpts []grpc.DialOption, logger *logrus.Logger) (*sdktrace.TracerProvider, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithDialOption(grpcOpts...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
		),
		sdktrace.WithSampler(sampler),
	)

	logger.Info("Tracer provider initialized")
	return tp, nil
}

// ShutdownOTel flushes and shuts down the tracer provider
func ShutdownOTel(ctx context.Context, providers *OTelProviders, logger *logrus.Logger) error {
	if providers == nil || providers.TracerProvider == nil {
		return nil
	}

	logger.Info("Shutting down OpenTelemetry providers")

	if err := providers.TracerProvider.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Failed to shutdown tracer provider")
		return fmt.Errorf("tracer provider shutdown: %w", err)
	}

	logger.Info("OpenTelemetry shutdown complete")
	return nil
}
