package core

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/pod-mover-simulator/model"
)

const tracerName = "github.com/signalsfoundry/pod-mover-simulator/core"

// startPodSpan starts a span for a pod-level operation such as a replanning
// round. It uses the global provider, so it is a no-op until tracing is
// initialised.
func startPodSpan(ctx context.Context, name string, pod model.PodID, at model.StationID, extra ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs := make([]attribute.KeyValue, 0, len(extra)+2)
	attrs = append(attrs,
		attribute.Int("pod.id", int(pod)),
		attribute.Int("pod.station", int(at)),
	)
	attrs = append(attrs, extra...)
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}
