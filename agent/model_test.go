package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentsim/core"
	"github.com/hupe1980/agentsim/logging"
	"github.com/hupe1980/agentsim/model"
	"github.com/hupe1980/agentsim/tool"
	"github.com/hupe1980/agentsim/toolevent"
	"github.com/hupe1980/agentsim/trace"
)

// mockLLM is a testify mock returning one final response per call.
type mockLLM struct{ mock.Mock }

func (m *mockLLM) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	args := m.Called(ctx, req)

	respCh := make(chan model.Response, 1)
	errCh := make(chan error, 1)
	if err := args.Error(1); err != nil {
		errCh <- err
	} else {
		respCh <- args.Get(0).(model.Response)
	}
	close(respCh)
	close(errCh)

	return respCh, errCh
}

func (m *mockLLM) Info() model.Info { return model.Info{Name: "mock", Provider: "testify"} }

func textResponse(text string) model.Response {
	return model.Response{Content: core.NewTextContent(core.ContentRoleAssistant, text), FinishReason: "stop"}
}

func addTool() tool.Tool {
	return tool.NewFunctionTool("add", "Add two numbers", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})
}

func TestModelAgent_PlainReply(t *testing.T) {
	llm := model.NewMockModel("mock", "test")
	a := NewModelAgent(llm)

	reply, err := a.Chat(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: hello", reply)

	history := a.History()
	require.Len(t, history, 2)
	assert.Equal(t, core.ContentRoleUser, history[0].Role)
	assert.Equal(t, core.ContentRoleAssistant, history[1].Role)
	assert.Equal(t, 1, a.Steps())
}

func TestModelAgent_KeepsHistoryAcrossTurns(t *testing.T) {
	llm := model.NewMockModel("mock", "test")
	a := NewModelAgent(llm)

	_, err := a.Chat(context.Background(), "first", nil)
	require.NoError(t, err)
	_, err = a.Chat(context.Background(), "second", nil)
	require.NoError(t, err)

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Contents, 3)
	assert.Equal(t, "first", reqs[1].Contents[0].Text())
}

func TestModelAgent_RendersInstructionFromOptions(t *testing.T) {
	llm := model.NewMockModel("mock", "test")
	a := NewModelAgent(llm, func(o *Options) {
		o.Instruction = "Help with {{.context}}; goal: {{.goal}}"
	})

	_, err := a.Chat(context.Background(), "hi", map[string]any{
		core.OptionContext: "solar panels",
		core.OptionGoal:    "cite sources",
	})
	require.NoError(t, err)
	assert.Equal(t, "Help with solar panels; goal: cite sources", llm.Requests()[0].Instructions)
}

func TestModelAgent_BadInstructionTemplate(t *testing.T) {
	a := NewModelAgent(model.NewMockModel("mock", "test"), func(o *Options) {
		o.Instruction = "{{.context"
	})

	_, err := a.Chat(context.Background(), "hi", nil)
	assert.Error(t, err)
	assert.Empty(t, a.History())
}

func TestModelAgent_ToolLoopRecordsPhasedEvents(t *testing.T) {
	llm := model.NewMockModel("mock", "test")
	llm.QueueToolCall("call-1", "add", `{"a":2,"b":3}`)
	llm.QueueResponse(textResponse("2+3=5"))

	sink := toolevent.NewMemorySink()
	rec := toolevent.New(func(o *toolevent.Options) { o.Sink = sink })
	ctx := toolevent.WithRecorder(core.WithRun(context.Background(), core.RunInfo{RunIndex: 4}), rec)

	a := NewModelAgent(llm, func(o *Options) { o.Tools = []tool.Tool{addTool()} })
	reply, err := a.Chat(ctx, "what is 2+3?", nil)
	require.NoError(t, err)
	assert.Equal(t, "2+3=5", reply)
	assert.Equal(t, 2, a.Steps())

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, core.ToolEventOpen, events[0].Phase)
	assert.Equal(t, core.ToolEventClosed, events[1].Phase)
	assert.Equal(t, "add", events[1].ToolName)
	assert.Equal(t, "5", events[1].Output)
	assert.Equal(t, 4, events[1].RunIndex)
	assert.Zero(t, rec.OpenCount())

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[0].Tools, 1)
	toolMsg := reqs[1].Contents[2]
	assert.Equal(t, core.ContentRoleTool, toolMsg.Role)
	fr := toolMsg.Parts[0].(core.FunctionResponsePart).FunctionResponse
	assert.Equal(t, "call-1", fr.ID)
	assert.Equal(t, 5.0, fr.Response)
}

func TestModelAgent_ToolLogLinesCarryRun(t *testing.T) {
	llm := model.NewMockModel("mock", "test")
	llm.QueueToolCall("call-1", "add", `{"a":1,"b":1}`)
	llm.QueueResponse(textResponse("2"))

	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "json", Output: &buf})

	a := NewModelAgent(llm, func(o *Options) {
		o.Tools = []tool.Tool{addTool()}
		o.Logger = logger.WithComponent("agent")
	})
	ctx := core.WithRun(context.Background(), core.RunInfo{RunIndex: 3, RunID: "run-3"})
	_, err := a.Chat(ctx, "1+1?", nil)
	require.NoError(t, err)

	var found bool
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry["msg"] != "toolevent.closed" {
			continue
		}
		found = true
		assert.Equal(t, "add", entry["tool_name"])
		assert.Equal(t, 3.0, entry["run_index"])
		assert.Equal(t, "run-3", entry["run_id"])
	}
	assert.True(t, found, "tool call was not logged")
}

func TestModelAgent_ToolFailureIsReportedToModel(t *testing.T) {
	llm := model.NewMockModel("mock", "test")
	llm.QueueToolCall("call-1", "add", `{"a":2}`)
	llm.QueueToolCall("call-2", "missing", `{}`)
	llm.QueueResponse(textResponse("sorry"))

	sink := toolevent.NewMemorySink()
	rec := toolevent.New(func(o *toolevent.Options) { o.Sink = sink })
	ctx := toolevent.WithRecorder(context.Background(), rec)

	a := NewModelAgent(llm, func(o *Options) { o.Tools = []tool.Tool{addTool()} })
	reply, err := a.Chat(ctx, "add", nil)
	require.NoError(t, err)
	assert.Equal(t, "sorry", reply)

	events := sink.Events()
	require.Len(t, events, 4)
	require.NotNil(t, events[1].Error)
	assert.Contains(t, events[1].Error.Message, "VALIDATION_ERROR")
	require.NotNil(t, events[3].Error)
	assert.Contains(t, events[3].Error.Message, "NOT_FOUND")
}

func TestModelAgent_StepLimit(t *testing.T) {
	llm := model.NewMockModel("mock", "test")
	for i := 0; i < 5; i++ {
		llm.QueueToolCall("call", "add", `{"a":1,"b":1}`)
	}

	a := NewModelAgent(llm, func(o *Options) {
		o.Tools = []tool.Tool{addTool()}
		o.MaxSteps = 2
	})

	_, err := a.Chat(context.Background(), "loop", nil)
	assert.ErrorIs(t, err, core.ErrStepLimitExceeded)
	assert.Empty(t, a.History())
	assert.Len(t, llm.Requests(), 2)
}

func TestModelAgent_MaxStepsOption(t *testing.T) {
	llm := model.NewMockModel("mock", "test")
	llm.QueueToolCall("call", "add", `{"a":1,"b":1}`)

	a := NewModelAgent(llm, func(o *Options) { o.Tools = []tool.Tool{addTool()} })

	_, err := a.Chat(context.Background(), "loop", map[string]any{OptionMaxSteps: 1})
	assert.ErrorIs(t, err, core.ErrStepLimitExceeded)
}

func TestModelAgent_ModelErrorRollsBackHistory(t *testing.T) {
	llm := &mockLLM{}
	boom := errors.New("provider unavailable")
	llm.On("Generate", mock.Anything, mock.Anything).Return(model.Response{}, boom).Once()
	llm.On("Generate", mock.Anything, mock.Anything).Return(textResponse("recovered"), nil).Once()

	a := NewModelAgent(llm)

	_, err := a.Chat(context.Background(), "first", nil)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, a.History())

	reply, err := a.Chat(context.Background(), "second", nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", reply)
	llm.AssertNumberOfCalls(t, "Generate", 2)
}

func TestModelAgent_TemperatureOption(t *testing.T) {
	llm := &mockLLM{}
	llm.On("Generate", mock.Anything, mock.MatchedBy(func(req model.Request) bool {
		return req.Temperature != nil && *req.Temperature == 0.8
	})).Return(textResponse("ok"), nil)

	a := NewModelAgent(llm)
	_, err := a.Chat(context.Background(), "hi", map[string]any{OptionTemperature: 0.8})
	require.NoError(t, err)
	llm.AssertExpectations(t)
}

func TestModelAgent_TracesModelCalls(t *testing.T) {
	sink := trace.NewMemorySink()
	tracer := trace.New(func(o *trace.Options) { o.Sink = sink })
	ctx := trace.WithTracer(core.WithRun(context.Background(), core.RunInfo{RunIndex: 2}), tracer)

	a := NewModelAgent(model.NewMockModel("mock", "test"))
	_, err := a.Chat(ctx, "hi", nil)
	require.NoError(t, err)
	_, err = a.Chat(ctx, "again", nil)
	require.NoError(t, err)

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, DefaultModelTraceName, events[0].FunctionName)
	assert.Equal(t, 2, events[0].RunIndex)
}

func TestModelAgent_HistoryWindow(t *testing.T) {
	llm := model.NewMockModel("mock", "test")
	a := NewModelAgent(llm, func(o *Options) { o.MaxHistoryMessages = 1 })

	_, err := a.Chat(context.Background(), "one", nil)
	require.NoError(t, err)
	_, err = a.Chat(context.Background(), "two", nil)
	require.NoError(t, err)

	reqs := llm.Requests()
	require.Len(t, reqs[1].Contents, 1)
	assert.Equal(t, "two", reqs[1].Contents[0].Text())
	assert.Len(t, a.History(), 4)
}

func TestNewFactory(t *testing.T) {
	llm := model.NewMockModel("mock", "test")
	factory := NewFactory(StaticModel(llm), func(o *Options) { o.Instruction = "default" })

	ag, err := factory(context.Background(), map[string]any{
		OptionInstruction: "You are a research assistant.",
		OptionMaxSteps:    3,
		OptionTemperature: 0.8,
	})
	require.NoError(t, err)

	ma := ag.(*ModelAgent)
	assert.Equal(t, "You are a research assistant.", ma.opts.Instruction)
	assert.Equal(t, 3, ma.opts.MaxSteps)
	require.NotNil(t, ma.opts.Temperature)
	assert.Equal(t, 0.8, *ma.opts.Temperature)

	other, err := factory(context.Background(), nil)
	require.NoError(t, err)
	assert.NotSame(t, ma, other)
	assert.Equal(t, "default", other.(*ModelAgent).opts.Instruction)
}

func TestNewFactoryErrors(t *testing.T) {
	_, err := NewFactory(nil)(context.Background(), nil)
	assert.Error(t, err)

	boom := errors.New("no credentials")
	_, err = NewFactory(func(context.Context, map[string]any) (model.Model, error) {
		return nil, boom
	})(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
}
