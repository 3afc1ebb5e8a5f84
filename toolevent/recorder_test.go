package toolevent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/hupe1980/agentsim/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder() (*Recorder, *MemorySink) {
	sink := NewMemorySink()
	return New(func(o *Options) { o.Sink = sink }), sink
}

func TestRecorder_OneShot(t *testing.T) {
	rec, sink := newTestRecorder()
	ctx := core.WithRun(context.Background(), core.RunInfo{RunIndex: 1})

	rec.Record(ctx, "weather_api", "location: NYC", "temperature: 72F")
	rec.RecordError(ctx, "api_call", "request", errors.New("timeout"))

	events := sink.Events()
	require.Len(t, events, 2)

	assert.Equal(t, "weather_api", events[0].ToolName)
	assert.Equal(t, "temperature: 72F", events[0].Output)
	assert.Equal(t, core.ToolEventClosed, events[0].Phase)
	assert.Empty(t, events[0].Handle)
	require.NotNil(t, events[0].FinishedAt)
	assert.Equal(t, 1, events[0].RunIndex)

	require.NotNil(t, events[1].Error)
	assert.Equal(t, "timeout", events[1].Error.Message)
	assert.Empty(t, events[1].Output)
}

func TestRecorder_StartFinish(t *testing.T) {
	rec, sink := newTestRecorder()
	ctx := core.WithRun(context.Background(), core.RunInfo{RunIndex: 0})

	h := rec.Start(ctx, "database_query", "SELECT * FROM users")
	assert.NotEmpty(t, h)
	assert.Len(t, rec.OpenHandles(0), 1)

	require.NoError(t, rec.Finish(h, "1000 rows returned"))
	assert.Empty(t, rec.OpenHandles(0))

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, core.ToolEventOpen, events[0].Phase)
	assert.Nil(t, events[0].FinishedAt)
	assert.Equal(t, core.ToolEventClosed, events[1].Phase)
	assert.Equal(t, string(h), events[1].Handle)
	assert.Equal(t, "1000 rows returned", events[1].Output)
	assert.Equal(t, "SELECT * FROM users", events[1].InputSummary)
	require.NotNil(t, events[1].FinishedAt)
	assert.False(t, events[1].FinishedAt.Before(events[1].StartedAt))
}

func TestRecorder_FinishTwiceIsProtocolError(t *testing.T) {
	rec, sink := newTestRecorder()
	h := rec.Start(context.Background(), "db", "q")

	require.NoError(t, rec.Finish(h, "ok"))

	err := rec.Finish(h, "again")
	var pe *core.ToolEventProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, string(h), pe.Handle)
	assert.ErrorIs(t, err, core.ErrHandleClosed)

	assert.Equal(t, 2, sink.Len(), "a rejected finish must not emit an event")
}

func TestRecorder_FinishUnknownHandle(t *testing.T) {
	rec, _ := newTestRecorder()

	err := rec.FinishError("does-not-exist", errors.New("x"))
	var pe *core.ToolEventProtocolError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, core.ErrUnknownHandle)
}

func TestRecorder_FinishError(t *testing.T) {
	rec, sink := newTestRecorder()
	h := rec.Start(context.Background(), "db", "q")

	require.NoError(t, rec.FinishError(h, errors.New("connection reset")))
	closed := sink.Events()[1]
	require.NotNil(t, closed.Error)
	assert.Equal(t, "connection reset", closed.Error.Message)
}

func TestRecorder_ConcurrentRuns(t *testing.T) {
	rec, sink := newTestRecorder()

	var wg sync.WaitGroup
	for run := 0; run < 20; run++ {
		wg.Add(1)
		go func(run int) {
			defer wg.Done()
			ctx := core.WithRun(context.Background(), core.RunInfo{RunIndex: run})
			h := rec.Start(ctx, "search", "q")
			rec.Record(ctx, "cache", "k", "hit")
			assert.NoError(t, rec.Finish(h, "done"))
		}(run)
	}
	wg.Wait()

	assert.Equal(t, 60, sink.Len())
	assert.Zero(t, rec.OpenCount())
	for _, events := range sink.ByRun() {
		assert.Len(t, events, 3)
	}
}

func TestContextHelpers(t *testing.T) {
	// Without a recorder every helper is a no-op.
	ctx := context.Background()
	Record(ctx, "t", "i", "o")
	assert.Empty(t, Start(ctx, "t", "i"))
	assert.NoError(t, Finish(ctx, "", "o"))

	rec, sink := newTestRecorder()
	ctx = WithRecorder(ctx, rec)
	assert.Same(t, rec, FromContext(ctx))

	h := Start(ctx, "search", "golang")
	require.NoError(t, Finish(ctx, h, "3 results"))
	RecordError(ctx, "fetch", "url", errors.New("404"))
	assert.Equal(t, 3, sink.Len())

	h2 := Start(ctx, "search", "again")
	require.NoError(t, FinishError(ctx, h2, errors.New("cancelled")))
	assert.Error(t, FinishError(ctx, h2, errors.New("cancelled")))
}

func TestJSONLSink(t *testing.T) {
	var buf bytes.Buffer
	rec := New(func(o *Options) { o.Sink = NewJSONLSink(&buf) })

	rec.Record(context.Background(), "weather_api", "NYC", "72F")

	line := strings.TrimSpace(buf.String())
	var ev core.ToolEvent
	require.NoError(t, json.Unmarshal([]byte(line), &ev))
	assert.Equal(t, "weather_api", ev.ToolName)
	assert.Contains(t, line, `"output_summary":"72F"`)
}
