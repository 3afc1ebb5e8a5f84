package trace

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentsim/core"
)

// OTelConfig selects the OpenTelemetry exporter.
type OTelConfig struct {
	// Enabled turns span export on. When false SetupOTel returns the global
	// no-op tracer.
	Enabled bool

	// ServiceName defaults to "agentsim".
	ServiceName string

	// Endpoint is an OTLP gRPC collector address. Empty exports spans as
	// JSON to Writer.
	Endpoint string

	// Writer receives stdout-exporter output. Defaults to os.Stderr so that
	// stdout stays free for reports.
	Writer io.Writer
}

// OTelRuntime stores the initialized tracer and its shutdown hook.
type OTelRuntime struct {
	Tracer   oteltrace.Tracer
	Enabled  bool
	Shutdown func(context.Context) error
}

// SetupOTel initializes an OpenTelemetry tracer provider when cfg.Enabled
// is set and registers it globally. Shutdown flushes pending spans.
func SetupOTel(ctx context.Context, cfg OTelConfig) (OTelRuntime, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "agentsim"
	}

	noop := OTelRuntime{
		Tracer:   otel.Tracer(serviceName),
		Shutdown: func(context.Context) error { return nil },
	}
	if !cfg.Enabled {
		return noop, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
		),
	)
	if err != nil {
		return OTelRuntime{}, fmt.Errorf("otel resource: %w", err)
	}

	var exp sdktrace.SpanExporter
	if cfg.Endpoint != "" {
		exp, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return OTelRuntime{}, fmt.Errorf("otel otlp exporter: %w", err)
		}
	} else {
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}
		exp, err = stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return OTelRuntime{}, fmt.Errorf("otel stdout exporter: %w", err)
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return OTelRuntime{
		Tracer:   tp.Tracer(serviceName),
		Enabled:  true,
		Shutdown: tp.Shutdown,
	}, nil
}

// Span attribute keys shared by the trace and tool event exporters.
const (
	AttrEventID   = attribute.Key("agentsim.event_id")
	AttrRunIndex  = attribute.Key("agentsim.run_index")
	AttrInputs    = attribute.Key("agentsim.inputs")
	AttrOutput    = attribute.Key("agentsim.output")
	AttrErrorKind = attribute.Key("agentsim.error.kind")
)

// OTelSink exports every TraceEvent as one span. Span start and end times
// are taken from the event, so spans are emitted after the call returned.
type OTelSink struct {
	tracer oteltrace.Tracer
}

// NewOTelSink creates a sink starting spans on tracer.
func NewOTelSink(tracer oteltrace.Tracer) *OTelSink {
	return &OTelSink{tracer: tracer}
}

// Append implements Sink.
func (s *OTelSink) Append(ev core.TraceEvent) {
	attrs := []attribute.KeyValue{
		AttrEventID.String(ev.ID),
		AttrRunIndex.Int(ev.RunIndex),
	}
	if len(ev.Inputs) > 0 {
		attrs = append(attrs, AttrInputs.String(string(ev.Inputs)))
	}
	if len(ev.Output) > 0 {
		attrs = append(attrs, AttrOutput.String(string(ev.Output)))
	}

	_, span := s.tracer.Start(context.Background(), ev.FunctionName,
		oteltrace.WithTimestamp(ev.StartedAt),
		oteltrace.WithAttributes(attrs...),
	)
	EndSpan(span, ev.Error, ev.StartedAt.Add(ev.Duration))
}

// EndSpan marks span failed when desc is set and ends it at the given time.
func EndSpan(span oteltrace.Span, desc *core.ErrorDescriptor, end time.Time) {
	if desc != nil {
		span.SetAttributes(AttrErrorKind.String(desc.Kind))
		span.SetStatus(codes.Error, desc.Message)
	}
	span.End(oteltrace.WithTimestamp(end))
}
