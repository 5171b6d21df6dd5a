package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/signalsfoundry/pod-mover-simulator/internal/config"
)

func TestInitTracingDisabledInstallsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{}, RunResource{}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Fatalf("disabled tracing produced a recording span")
	}
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, nil)
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	cfg := config.TracingConfig{Enabled: true, Exporter: "zipkin", ServiceName: "podsim", SampleRatio: 1}
	if _, err := InitTracing(context.Background(), cfg, RunResource{}, nil); err == nil {
		t.Fatalf("expected error for unknown exporter")
	}
}

func TestStdoutExporterWritesSpans(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	exp, err := newExporter(ctx, config.TracingConfig{Exporter: "stdout"}, &buf)
	if err != nil {
		t.Fatalf("newExporter: %v", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	_, span := tp.Tracer("test").Start(ctx, "pod.replan")
	span.End()
	if err := tp.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "pod.replan") {
		t.Fatalf("stdout exporter wrote %q", buf.String())
	}
}

func TestSpansCarryRunResource(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })
	ctx := context.Background()
	exp := tracetest.NewInMemoryExporter()
	cfg := config.Default().Tracing
	cfg.Enabled = true
	run := RunResource{RunID: "run-1", Seed: 42, Pods: 5, AdvancedPlanning: true, SpawnRate: 0.02}

	tp, err := installTracing(ctx, cfg, run, exp)
	if err != nil {
		t.Fatalf("installTracing: %v", err)
	}
	_, span := otel.Tracer("test").Start(ctx, "pod.replan")
	span.End()
	if err := tp.ForceFlush(ctx); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported %d spans, want 1", len(spans))
	}
	set := spans[0].Resource.Set()
	want := []attribute.KeyValue{
		attribute.String("service.name", "pod-mover-simulator"),
		attribute.String("service.instance.id", "run-1"),
		attribute.Int64("podsim.seed", 42),
		attribute.Int64("podsim.pods", 5),
		attribute.Bool("podsim.advanced_planning", true),
		attribute.String("podsim.scenario", "builtin"),
	}
	for _, kv := range want {
		got, ok := set.Value(kv.Key)
		if !ok || got != kv.Value {
			t.Fatalf("resource %s = %v (present %v), want %v", kv.Key, got.Emit(), ok, kv.Value.Emit())
		}
	}
	if err := tp.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestRunResourceFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Run.ID = "abc"
	cfg.Run.Scenario = "city.json"
	cfg.Sim.AdvancedPlanning = true
	got := RunResourceFrom(cfg)
	if got.RunID != "abc" || got.Seed != cfg.Run.Seed || got.Pods != cfg.Run.Pods || !got.AdvancedPlanning || got.Scenario != "city.json" {
		t.Fatalf("RunResourceFrom = %+v", got)
	}
}
