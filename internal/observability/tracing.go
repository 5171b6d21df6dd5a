package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/pod-mover-simulator/internal/config"
	"github.com/signalsfoundry/pod-mover-simulator/internal/logging"
)

const defaultOTLPEndpoint = "localhost:4317"

// RunResource identifies the simulation run whose spans are exported. Its
// fields become resource attributes.
type RunResource struct {
	RunID            string
	Seed             uint64
	Pods             int
	AdvancedPlanning bool
	SpawnRate        float64
	Scenario         string
}

// RunResourceFrom describes the run cfg configures.
func RunResourceFrom(cfg config.Config) RunResource {
	return RunResource{
		RunID:            cfg.Run.ID,
		Seed:             cfg.Run.Seed,
		Pods:             cfg.Run.Pods,
		AdvancedPlanning: cfg.Sim.AdvancedPlanning,
		SpawnRate:        cfg.Sim.SpawnRate,
		Scenario:         cfg.Run.Scenario,
	}
}

func (r RunResource) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int64("podsim.seed", int64(r.Seed)),
		attribute.Int("podsim.pods", r.Pods),
		attribute.Bool("podsim.advanced_planning", r.AdvancedPlanning),
		attribute.Float64("podsim.spawn_rate", r.SpawnRate),
		attribute.String("podsim.scenario", lo.Ternary(r.Scenario == "", "builtin", r.Scenario)),
	}
	if r.RunID != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(r.RunID))
	}
	return attrs
}

func newResource(ctx context.Context, cfg config.TracingConfig, run RunResource) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceNamespace("podsim"),
		),
		resource.WithAttributes(run.attributes()...),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return res, nil
}

// InitTracing installs the global tracer provider for one run. With
// tracing disabled a noop provider is installed so spans cost nothing. The
// returned function flushes and stops the exporter.
func InitTracing(ctx context.Context, cfg config.TracingConfig, run RunResource, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Debug(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newExporter(ctx, cfg, os.Stdout)
	if err != nil {
		return nil, err
	}
	tp, err := installTracing(ctx, cfg, run, exp)
	if err != nil {
		return nil, err
	}
	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.String("run_id", run.RunID),
		logging.Float("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

// installTracing builds a provider around exp and makes it global.
func installTracing(ctx context.Context, cfg config.TracingConfig, run RunResource, exp sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	res, err := newResource(ctx, cfg, run)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, nil
}

func newExporter(ctx context.Context, cfg config.TracingConfig, stdout io.Writer) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout", "":
		return stdouttrace.New(
			stdouttrace.WithWriter(stdout),
			stdouttrace.WithoutTimestamps(),
		)
	case "otlp":
		endpoint := lo.Ternary(cfg.Endpoint == "", defaultOTLPEndpoint, cfg.Endpoint)
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
}

// ShutdownWithTimeout flushes pending spans, giving up after five seconds.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
