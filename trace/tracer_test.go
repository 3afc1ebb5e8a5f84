package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/agentsim/core"
	"github.com/hupe1980/agentsim/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracer() (*Tracer, *MemorySink) {
	sink := NewMemorySink()
	return New(func(o *Options) { o.Sink = sink }), sink
}

func TestPure_AddOne(t *testing.T) {
	tr, sink := newTestTracer()
	inc := Pure(context.Background(), tr, "inc", func(x int) int { return x + 1 })

	assert.Equal(t, 3, inc(2))

	events := sink.Events()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "inc", ev.FunctionName)
	assert.JSONEq(t, "2", string(ev.Inputs))
	assert.JSONEq(t, "3", string(ev.Output))
	assert.Nil(t, ev.Error)
	assert.GreaterOrEqual(t, ev.Duration, time.Duration(0))
	assert.Equal(t, core.NoRun, ev.RunIndex)
}

func TestFunc_ErrorPropagatesUnchanged(t *testing.T) {
	tr, sink := newTestTracer()
	sentinel := errors.New("lookup failed")
	lookup := Func(tr, "lookup", func(_ context.Context, key string) (string, error) {
		return "", sentinel
	})

	ctx := core.WithRun(context.Background(), core.RunInfo{RunIndex: 4})
	out, err := lookup(ctx, "k")
	assert.Empty(t, out)
	assert.Same(t, sentinel, err)

	events := sink.Events()
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Error)
	assert.Equal(t, "lookup failed", events[0].Error.Message)
	assert.Nil(t, events[0].Output)
	assert.Equal(t, 4, events[0].RunIndex)
}

func TestFunc2_RecordsBothInputs(t *testing.T) {
	tr, sink := newTestTracer()
	add := Func2(tr, "add", func(_ context.Context, a, b int) (int, error) { return a + b, nil })

	sum, err := add(context.Background(), 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, sum)
	assert.JSONEq(t, "[2,3]", string(sink.Events()[0].Inputs))
}

func TestFunc_PanicIsRecordedAndRepanics(t *testing.T) {
	tr, sink := newTestTracer()
	boom := Func(tr, "boom", func(context.Context, int) (int, error) { panic("kaboom") })

	assert.PanicsWithValue(t, "kaboom", func() { _, _ = boom(context.Background(), 1) })

	events := sink.Events()
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Error)
	assert.Equal(t, core.KindPanic, events[0].Error.Kind)
}

func TestFunc_NonSerializableInputsAreSummarized(t *testing.T) {
	tr, sink := newTestTracer()
	send := Func(tr, "send", func(_ context.Context, ch chan int) (int, error) { return cap(ch), nil })

	n, err := send(context.Background(), make(chan int, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var s summary
	require.NoError(t, json.Unmarshal(sink.Events()[0].Inputs, &s))
	assert.Equal(t, "chan int", s.Type)
}

func TestAgent_TracesChat(t *testing.T) {
	tr, sink := newTestTracer()
	echo := core.AgentFunc(func(_ context.Context, prompt string, _ map[string]any) (string, error) {
		return "echo: " + prompt, nil
	})
	traced := Agent(tr, "Agent.chat", echo)

	reply, err := traced.Chat(context.Background(), "hi", map[string]any{"turn_index": 0})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", reply)

	ev := sink.Events()[0]
	assert.Equal(t, "Agent.chat", ev.FunctionName)
	assert.JSONEq(t, `{"prompt":"hi","options":{"turn_index":0}}`, string(ev.Inputs))
	assert.JSONEq(t, `"echo: hi"`, string(ev.Output))
}

func TestTracer_ConcurrentInvocations(t *testing.T) {
	tr, sink := newTestTracer()
	double := Func(tr, "double", func(_ context.Context, x int) (int, error) { return 2 * x, nil })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(run int) {
			defer wg.Done()
			ctx := core.WithRun(context.Background(), core.RunInfo{RunIndex: run})
			_, _ = double(ctx, run)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, sink.Len())
	byRun := sink.ByRun()
	assert.Len(t, byRun, 50)
	for run, events := range byRun {
		require.Len(t, events, 1)
		assert.JSONEq(t, string(mustJSON(t, 2*run)), string(events[0].Output))
	}
}

func TestModel_EmitsOneEventWhenStreamEnds(t *testing.T) {
	tr, sink := newTestTracer()
	mock := model.NewMockModel("mock", "test")
	mock.AddResponse("hi", "hello")

	traced := Model(tr, "model.generate", mock)
	req := model.Request{Stream: true, Contents: []core.Content{core.NewTextContent(core.ContentRoleUser, "hi")}}

	resp, err := model.Collect(context.Background(), traced, req)
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content.Text())

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Nil(t, events[0].Error)
	assert.Contains(t, string(events[0].Output), `"text":"hello"`)
	assert.Equal(t, "mock", traced.Info().Name)
}

func TestModel_RecordsStreamError(t *testing.T) {
	tr, sink := newTestTracer()
	mock := model.NewMockModel("mock", "test")
	mock.QueueError(errors.New("quota exceeded"))

	_, err := model.Collect(context.Background(), Model(tr, "model.generate", mock), model.Request{})
	assert.EqualError(t, err, "quota exceeded")

	events := sink.Events()
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Error)
	assert.Equal(t, "quota exceeded", events[0].Error.Message)
}

func TestModel_CancelledContextMatchesUnwrappedModel(t *testing.T) {
	tr, sink := newTestTracer()
	mock := model.NewMockModel("mock", "test")
	traced := Model(tr, "model.generate", mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := model.Request{Contents: []core.Content{core.NewTextContent(core.ContentRoleUser, "hi")}}
	const calls = 100
	for i := 0; i < calls; i++ {
		raw, rawErr := model.Collect(ctx, mock, req)
		wrapped, err := model.Collect(ctx, traced, req)

		require.Equal(t, rawErr, err)
		require.Equal(t, raw.Content.Text(), wrapped.Content.Text())
	}

	events := sink.Events()
	require.Len(t, events, calls)
	for _, ev := range events {
		assert.Nil(t, ev.Error)
	}
}

func TestJSONLSink_StreamsLines(t *testing.T) {
	var buf bytes.Buffer
	jsonl := NewJSONLSink(&buf)
	mem := NewMemorySink()
	tr := New(func(o *Options) { o.Sink = MultiSink{mem, jsonl} })

	inc := Pure(context.Background(), tr, "inc", func(x int) int { return x + 1 })
	inc(1)
	inc(2)

	require.NoError(t, jsonl.Err())
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var ev core.TraceEvent
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &ev))
	assert.Equal(t, "inc", ev.FunctionName)
	assert.JSONEq(t, "3", string(ev.Output))
	assert.Equal(t, 2, mem.Len())
}

func TestTracer_ClockNeverYieldsNegativeDuration(t *testing.T) {
	sink := NewMemorySink()
	calls := 0
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := New(func(o *Options) {
		o.Sink = sink
		o.Clock = func() time.Time {
			calls++
			return base.Add(-time.Duration(calls) * time.Second)
		}
	})

	Pure(context.Background(), tr, "f", func(x int) int { return x })(1)
	assert.Equal(t, time.Duration(0), sink.Events()[0].Duration)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
