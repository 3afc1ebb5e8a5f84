package toolevent

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentsim/core"
	"github.com/hupe1980/agentsim/trace"
)

// Span attribute keys specific to tool events.
const (
	AttrHandle = attribute.Key("agentsim.tool.handle")
	AttrPhased = attribute.Key("agentsim.tool.phased")
)

// OTelSink exports closed tool events as spans. Open records are skipped, so
// a phased event yields exactly one span once it is finished.
type OTelSink struct {
	tracer oteltrace.Tracer
}

// NewOTelSink creates a sink starting spans on tracer.
func NewOTelSink(tracer oteltrace.Tracer) *OTelSink {
	return &OTelSink{tracer: tracer}
}

// Append implements Sink.
func (s *OTelSink) Append(ev core.ToolEvent) {
	if ev.Phase != core.ToolEventClosed {
		return
	}

	attrs := []attribute.KeyValue{
		trace.AttrRunIndex.Int(ev.RunIndex),
		AttrPhased.Bool(ev.Phased()),
	}
	if ev.Handle != "" {
		attrs = append(attrs, AttrHandle.String(ev.Handle))
	}
	if ev.InputSummary != "" {
		attrs = append(attrs, trace.AttrInputs.String(ev.InputSummary))
	}
	if ev.Output != "" {
		attrs = append(attrs, trace.AttrOutput.String(ev.Output))
	}

	_, span := s.tracer.Start(context.Background(), ev.ToolName,
		oteltrace.WithTimestamp(ev.StartedAt),
		oteltrace.WithAttributes(attrs...),
	)

	end := ev.StartedAt
	if ev.FinishedAt != nil {
		end = *ev.FinishedAt
	}
	trace.EndSpan(span, ev.Error, end)
}
