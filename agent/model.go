package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/hupe1980/agentsim/core"
	"github.com/hupe1980/agentsim/internal/util"
	"github.com/hupe1980/agentsim/logging"
	"github.com/hupe1980/agentsim/model"
	"github.com/hupe1980/agentsim/tool"
	"github.com/hupe1980/agentsim/toolevent"
	"github.com/hupe1980/agentsim/trace"
)

// Chat option and factory parameter keys understood by ModelAgent.
const (
	OptionInstruction = "instruction"
	OptionMaxSteps    = "max_steps"
	OptionTemperature = "temperature"
)

// DefaultMaxSteps bounds the model steps of one chat call.
const DefaultMaxSteps = 8

// DefaultModelTraceName is the function name under which model calls are traced.
const DefaultModelTraceName = "Model.generate"

// Options configures a ModelAgent.
type Options struct {
	// Instruction is the system prompt. It is rendered as a text/template
	// against the chat options (context, goal, run_index, turn_index).
	Instruction string
	Tools       []tool.Tool
	// MaxSteps bounds model steps per chat call. Zero means DefaultMaxSteps.
	MaxSteps    int
	Temperature *float64
	// MaxHistoryMessages keeps only the most recent messages in each request.
	// Zero keeps the whole history.
	MaxHistoryMessages int
	// Stream requests partial responses from the model.
	Stream         bool
	ModelTraceName string
	Logger         logging.Logger
}

// ModelAgent answers chat prompts with a language model and executes the
// tools the model requests.
type ModelAgent struct {
	llm        model.Model
	traced     model.Model
	tracedBy   *trace.Tracer
	tools      *tool.Set
	opts       Options
	logger     logging.Logger
	mu         sync.Mutex
	history    []core.Content
	traceName  string
	stepsTaken int
}

// NewModelAgent creates an agent with its own empty history.
func NewModelAgent(llm model.Model, optFns ...func(o *Options)) *ModelAgent {
	opts := Options{
		Instruction:    "You are a helpful AI assistant.",
		MaxSteps:       DefaultMaxSteps,
		ModelTraceName: DefaultModelTraceName,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}

	if opts.ModelTraceName == "" {
		opts.ModelTraceName = DefaultModelTraceName
	}

	return &ModelAgent{
		llm:       llm,
		tools:     tool.NewSet(opts.Tools...),
		opts:      opts,
		logger:    logging.OrNoOp(opts.Logger),
		traceName: opts.ModelTraceName,
	}
}

// History returns a copy of the messages exchanged so far.
func (a *ModelAgent) History() []core.Content {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]core.Content, len(a.history))
	copy(out, a.history)
	return out
}

// Steps returns the total number of model steps taken across all chat calls.
func (a *ModelAgent) Steps() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.stepsTaken
}

// Chat implements core.Agent. The options may override the instruction,
// max_steps and temperature for this call. On failure the history is left
// as it was before the call.
func (a *ModelAgent) Chat(ctx context.Context, prompt string, opts map[string]any) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	instruction, err := a.instruction(opts)
	if err != nil {
		return "", err
	}

	maxSteps := a.opts.MaxSteps
	if n, ok := intOption(opts, OptionMaxSteps); ok && n > 0 {
		maxSteps = n
	}

	temperature := a.opts.Temperature
	if f, ok := floatOption(opts, OptionTemperature); ok {
		temperature = &f
	}

	llm := a.modelFor(ctx)
	limiter := core.NewStepLimiter(maxSteps)
	checkpoint := len(a.history)
	a.history = append(a.history, core.NewTextContent(core.ContentRoleUser, prompt))

	for {
		if err := limiter.Increment(); err != nil {
			a.history = a.history[:checkpoint]
			return "", err
		}
		a.stepsTaken++

		resp, err := model.Collect(ctx, llm, model.Request{
			Instructions: instruction,
			Contents:     a.window(),
			Tools:        a.tools.Definitions(),
			Stream:       a.opts.Stream,
			Temperature:  temperature,
		})
		if err != nil {
			a.history = a.history[:checkpoint]
			return "", fmt.Errorf("model step %d: %w", limiter.Count(), err)
		}

		content := resp.Content
		if content.Role == "" {
			content.Role = core.ContentRoleAssistant
		}
		a.history = append(a.history, content)

		calls := content.FunctionCalls()
		if len(calls) == 0 {
			return content.Text(), nil
		}

		a.history = append(a.history, a.executeTools(ctx, calls))
	}
}

func (a *ModelAgent) instruction(opts map[string]any) (string, error) {
	text := a.opts.Instruction
	if s, ok := opts[OptionInstruction].(string); ok && s != "" {
		text = s
	}

	rendered, err := util.RenderTemplate(text, opts)
	if err != nil {
		return "", fmt.Errorf("render instruction: %w", err)
	}
	return rendered, nil
}

// modelFor wraps the model with the tracer carried by ctx. The wrapper is
// cached since an agent only ever serves one run.
func (a *ModelAgent) modelFor(ctx context.Context) model.Model {
	t := trace.FromContext(ctx)
	if t == nil {
		return a.llm
	}
	if a.tracedBy != t {
		a.traced = trace.Model(t, a.traceName, a.llm)
		a.tracedBy = t
	}
	return a.traced
}

func (a *ModelAgent) window() []core.Content {
	if a.opts.MaxHistoryMessages <= 0 || len(a.history) <= a.opts.MaxHistoryMessages {
		return slices.Clone(a.history)
	}
	return slices.Clone(a.history[len(a.history)-a.opts.MaxHistoryMessages:])
}

// executeTools runs the requested calls in order. Each call is a phased
// tool event; failures are reported back to the model instead of ending
// the chat call.
func (a *ModelAgent) executeTools(ctx context.Context, calls []core.FunctionCall) core.Content {
	parts := make([]core.Part, 0, len(calls))

	for _, fc := range calls {
		h := toolevent.Start(ctx, fc.Name, fc.Arguments)

		resp := core.FunctionResponse{ID: fc.ID, Name: fc.Name}
		start := time.Now()
		result, err := a.callTool(ctx, fc)
		if err != nil {
			resp.Error = err.Error()
			if ferr := toolevent.FinishError(ctx, h, err); ferr != nil {
				a.logger.Warn("agent.tool.finish_failed", "tool", fc.Name, "error", ferr.Error())
			}
		} else {
			resp.Response = result
			if ferr := toolevent.Finish(ctx, h, stringify(result)); ferr != nil {
				a.logger.Warn("agent.tool.finish_failed", "tool", fc.Name, "error", ferr.Error())
			}
		}

		if sl, ok := a.logger.(*logging.SimLogger); ok {
			if run, ok := core.RunFromContext(ctx); ok {
				sl = sl.WithRun(run.RunIndex, run.RunID)
			}
			sl.LogToolEvent(fc.Name, time.Since(start), err)
		} else {
			a.logger.Debug("agent.tool.executed", "tool", fc.Name, "call_id", fc.ID, "failed", err != nil)
		}

		parts = append(parts, core.FunctionResponsePart{FunctionResponse: resp})
	}

	return core.Content{Role: core.ContentRoleTool, Parts: parts}
}

func (a *ModelAgent) callTool(ctx context.Context, fc core.FunctionCall) (result any, err error) {
	args := map[string]any{}
	if fc.Arguments != "" {
		if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
			return nil, tool.NewToolError(fc.Name, fmt.Sprintf("invalid arguments: %v", err), tool.CodeValidation)
		}
	}

	defer func() {
		if p := recover(); p != nil {
			err = tool.NewToolError(fc.Name, fmt.Sprintf("panic: %v", p), tool.CodeExecution)
		}
	}()

	return a.tools.Call(ctx, fc.Name, args)
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func intOption(opts map[string]any, key string) (int, bool) {
	switch v := opts[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

func floatOption(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}
