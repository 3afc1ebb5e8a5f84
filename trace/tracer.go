package trace

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/hupe1980/agentsim/core"
	"github.com/hupe1980/agentsim/logging"
)

// Options configures a Tracer.
type Options struct {
	// Sink receives every emitted event. Defaults to discarding.
	Sink Sink
	// Logger receives debug lines for each event and warnings for failures.
	Logger logging.Logger
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Tracer emits one core.TraceEvent per wrapped invocation. A Tracer is safe
// for concurrent use; the only shared state is its sink.
type Tracer struct {
	sink   Sink
	logger logging.Logger
	now    func() time.Time
}

// New creates a Tracer.
func New(optFns ...func(o *Options)) *Tracer {
	opts := Options{
		Sink:   discardSink{},
		Logger: logging.NoOpLogger{},
		Clock:  time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Sink == nil {
		opts.Sink = discardSink{}
	}

	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Tracer{
		sink:   opts.Sink,
		logger: logging.OrNoOp(opts.Logger),
		now:    opts.Clock,
	}
}

// call tracks one in-flight invocation.
type call struct {
	t        *Tracer
	ctx      context.Context
	name     string
	inputs   []byte
	start    time.Time
	finished bool
}

func (t *Tracer) begin(ctx context.Context, name string, inputs any) *call {
	return &call{t: t, ctx: ctx, name: name, inputs: snapshot(inputs), start: t.now()}
}

// end emits the event. Exactly one of output/err is meaningful.
func (c *call) end(output any, err error) {
	if c.finished {
		return
	}
	c.finished = true

	dur := c.t.now().Sub(c.start)
	if dur < 0 {
		dur = 0
	}

	ev := core.TraceEvent{
		ID:           core.NewID(),
		RunIndex:     core.RunIndexFromContext(c.ctx),
		FunctionName: c.name,
		Inputs:       c.inputs,
		StartedAt:    c.start,
		Duration:     dur,
	}

	if err != nil {
		ev.Error = core.Describe(err)
		c.t.logger.Warn("trace.call.failed", "function", c.name, "run_index", ev.RunIndex, "error", err.Error(), "duration", dur)
	} else {
		ev.Output = snapshot(output)
		c.t.logger.Debug("trace.call.completed", "function", c.name, "run_index", ev.RunIndex, "duration", dur)
	}

	c.t.sink.Append(ev)
}

// recoverAndRepanic records a panic as a failed event and re-raises the
// original value. It must be deferred directly.
func (c *call) recoverAndRepanic() {
	if r := recover(); r != nil {
		c.end(nil, &core.PanicError{Value: r, Stack: debug.Stack()})
		panic(r)
	}
}

// Func wraps a context-aware function of one argument.
func Func[In, Out any](t *Tracer, name string, fn func(context.Context, In) (Out, error)) func(context.Context, In) (Out, error) {
	return func(ctx context.Context, in In) (Out, error) {
		c := t.begin(ctx, name, in)
		defer c.recoverAndRepanic()

		out, err := fn(ctx, in)
		c.end(out, err)

		return out, err
	}
}

// Func2 wraps a context-aware function of two arguments. Inputs are recorded
// as a two-element array.
func Func2[A, B, Out any](t *Tracer, name string, fn func(context.Context, A, B) (Out, error)) func(context.Context, A, B) (Out, error) {
	return func(ctx context.Context, a A, b B) (Out, error) {
		c := t.begin(ctx, name, []any{a, b})
		defer c.recoverAndRepanic()

		out, err := fn(ctx, a, b)
		c.end(out, err)

		return out, err
	}
}

// Pure wraps a function without context or error. Events are attributed to
// ctx's run, which is fixed at wrap time.
func Pure[In, Out any](ctx context.Context, t *Tracer, name string, fn func(In) Out) func(In) Out {
	return func(in In) Out {
		c := t.begin(ctx, name, in)
		defer c.recoverAndRepanic()

		out := fn(in)
		c.end(out, nil)

		return out
	}
}

// tracedAgent instruments an agent's chat capability.
type tracedAgent struct {
	t     *Tracer
	name  string
	agent core.Agent
}

type chatInputs struct {
	Prompt  string         `json:"prompt"`
	Options map[string]any `json:"options,omitempty"`
}

// Agent wraps the chat capability of a so every Chat call is traced under name.
func Agent(t *Tracer, name string, a core.Agent) core.Agent {
	return &tracedAgent{t: t, name: name, agent: a}
}

func (a *tracedAgent) Chat(ctx context.Context, prompt string, opts map[string]any) (string, error) {
	c := a.t.begin(ctx, a.name, chatInputs{Prompt: prompt, Options: opts})
	defer c.recoverAndRepanic()

	reply, err := a.agent.Chat(ctx, prompt, opts)
	c.end(reply, err)

	return reply, err
}

// Unwrap returns the wrapped agent.
func (a *tracedAgent) Unwrap() core.Agent { return a.agent }
