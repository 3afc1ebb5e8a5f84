package toolevent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hupe1980/agentsim/core"
	"github.com/hupe1980/agentsim/trace"
)

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestOTelSink_OneSpanPerClosedEvent(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	mem := NewMemorySink()
	rec := New(func(o *Options) { o.Sink = MultiSink{mem, NewOTelSink(tp.Tracer("test"))} })
	ctx := core.WithRun(context.Background(), core.RunInfo{RunIndex: 1})

	h := rec.Start(ctx, "database_query", "SELECT 1")
	assert.Empty(t, sr.Ended(), "open records produce no span")

	require.NoError(t, rec.Finish(h, "1 row"))
	rec.RecordError(ctx, "weather_api", "location: NYC", errors.New("timeout"))
	rec.Start(ctx, "never_finished", "")

	ended := sr.Ended()
	require.Len(t, ended, 2)

	query := ended[0]
	assert.Equal(t, "database_query", query.Name())
	closed := mem.Events()[1]
	require.NotNil(t, closed.FinishedAt)
	assert.True(t, query.StartTime().Equal(closed.StartedAt))
	assert.True(t, query.EndTime().Equal(*closed.FinishedAt))

	handle, ok := spanAttr(query, AttrHandle)
	require.True(t, ok)
	assert.Equal(t, string(h), handle.AsString())

	phased, ok := spanAttr(query, AttrPhased)
	require.True(t, ok)
	assert.True(t, phased.AsBool())

	runIndex, ok := spanAttr(query, trace.AttrRunIndex)
	require.True(t, ok)
	assert.Equal(t, int64(1), runIndex.AsInt64())

	output, ok := spanAttr(query, trace.AttrOutput)
	require.True(t, ok)
	assert.Equal(t, "1 row", output.AsString())

	weather := ended[1]
	assert.Equal(t, "weather_api", weather.Name())
	assert.Equal(t, codes.Error, weather.Status().Code)
	assert.Equal(t, "timeout", weather.Status().Description)
	_, ok = spanAttr(weather, AttrHandle)
	assert.False(t, ok)
}
