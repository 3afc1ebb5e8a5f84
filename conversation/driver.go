package conversation

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/agentsim/core"
	"github.com/hupe1980/agentsim/logging"
	"github.com/hupe1980/agentsim/toolevent"
	"github.com/hupe1980/agentsim/trace"
)

// State is a phase of the per-run state machine.
type State string

const (
	StateInitializing State = "initializing"
	StateTurnLoop     State = "turn_loop"
	StateTerminating  State = "terminating"
	StateDone         State = "done"
)

// DefaultAgentTraceName is the function name under which agent chat calls
// are traced.
const DefaultAgentTraceName = "Agent.chat"

// Options configures a Driver.
type Options struct {
	Logger logging.Logger
	// Tracer instruments every agent chat call and is attached to the run
	// context for agents that trace their own calls. Nil disables tracing.
	Tracer *trace.Tracer
	// AgentTraceName overrides DefaultAgentTraceName.
	AgentTraceName string
	// Recorder is attached to the run context so agents can record tool
	// events through the toolevent package helpers.
	Recorder *toolevent.Recorder
	// ProbeNaturalEnd asks the persona once more after the last allowed turn
	// so a conversation the persona would have ended is reported as
	// natural_end instead of max_turns_reached. The probe utterance is never
	// sent to the agent.
	ProbeNaturalEnd bool
	// OnTransition is called on every state change.
	OnTransition func(runIndex int, from, to State)
	Clock        func() time.Time
}

// Driver runs conversations. A Driver holds no per-run state and may run
// many conversations concurrently.
type Driver struct {
	agents   core.AgentFactory
	personas core.PersonaFactory
	opts     Options
	logger   logging.Logger
}

// NewDriver creates a driver constructing agents and personas through the
// given factories, once per run.
func NewDriver(agents core.AgentFactory, personas core.PersonaFactory, optFns ...func(o *Options)) *Driver {
	opts := Options{
		Logger:          logging.NoOpLogger{},
		AgentTraceName:  DefaultAgentTraceName,
		ProbeNaturalEnd: true,
		Clock:           time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	if opts.AgentTraceName == "" {
		opts.AgentTraceName = DefaultAgentTraceName
	}

	return &Driver{
		agents:   agents,
		personas: personas,
		opts:     opts,
		logger:   logging.OrNoOp(opts.Logger),
	}
}

// Request describes one run.
type Request struct {
	Run    core.RunInfo
	Config core.SimulationConfig
	// Stop is the cooperative cancellation signal checked at every turn
	// boundary. When nil, ctx.Done() is used.
	Stop <-chan struct{}
}

// run holds the state exclusively owned by one conversation.
type run struct {
	d          *Driver
	ctx        context.Context
	req        Request
	stop       <-chan struct{}
	state      State
	transcript *core.Transcript
	agent      core.Agent
	persona    core.Persona
}

// Run executes one conversation and returns its frozen transcript.
func (d *Driver) Run(ctx context.Context, req Request) core.Transcript {
	ctx = core.WithRun(ctx, req.Run)
	if d.opts.Recorder != nil {
		ctx = toolevent.WithRecorder(ctx, d.opts.Recorder)
	}
	if d.opts.Tracer != nil {
		ctx = trace.WithTracer(ctx, d.opts.Tracer)
	}

	stop := req.Stop
	if stop == nil {
		stop = ctx.Done()
	}

	r := &run{
		d:          d,
		ctx:        ctx,
		req:        req,
		stop:       stop,
		state:      StateInitializing,
		transcript: core.NewTranscript(req.Run.RunIndex),
	}

	r.execute()

	return r.transcript.Snapshot()
}

func (r *run) execute() {
	defer func() {
		if p := recover(); p != nil {
			err := &core.PanicError{Value: p, Stack: debug.Stack()}
			r.d.logger.Error("conversation.panic", "run_index", r.req.Run.RunIndex, "state", string(r.state), "recover", p)
			r.terminate(core.TerminalError, err)
		}
		r.transition(StateDone)
	}()

	if r.d.opts.OnTransition != nil {
		r.d.opts.OnTransition(r.req.Run.RunIndex, "", StateInitializing)
	}

	if err := r.initialize(); err != nil {
		r.terminate(core.TerminalError, err)
		return
	}

	r.transition(StateTurnLoop)
	reason, err := r.loop()
	r.terminate(reason, err)
}

func (r *run) transition(to State) {
	from := r.state
	if from == to {
		return
	}
	r.state = to
	r.d.logger.Debug("conversation.state", "run_index", r.req.Run.RunIndex, "from", string(from), "to", string(to))
	if r.d.opts.OnTransition != nil {
		r.d.opts.OnTransition(r.req.Run.RunIndex, from, to)
	}
}

func (r *run) terminate(reason core.TerminalReason, err error) {
	r.transition(StateTerminating)
	r.transcript.TerminalReason = reason
	if err != nil {
		r.transcript.Error = core.Describe(err)
		r.d.logger.Warn("conversation.terminated", "run_index", r.req.Run.RunIndex, "terminal_reason", string(reason), "error", err.Error())
		return
	}
	r.d.logger.Debug("conversation.terminated", "run_index", r.req.Run.RunIndex, "terminal_reason", string(reason))
}

func (r *run) initialize() error {
	idx := r.req.Run.RunIndex

	agent, err := guard(func() (core.Agent, error) { return r.d.agents(r.ctx, r.req.Config.AgentParameters()) })
	if err == nil && agent == nil {
		err = fmt.Errorf("agent factory returned nil agent")
	}
	if err != nil {
		return &core.AgentError{RunIndex: idx, TurnIndex: core.SetupTurn, Err: err}
	}

	persona, err := guard(func() (core.Persona, error) { return r.d.personas(r.ctx, idx) })
	if err == nil && persona == nil {
		err = fmt.Errorf("persona factory returned nil persona")
	}
	if err != nil {
		return &core.PersonaError{RunIndex: idx, TurnIndex: core.SetupTurn, Err: err}
	}

	if r.d.opts.Tracer != nil {
		agent = trace.Agent(r.d.opts.Tracer, r.d.opts.AgentTraceName, agent)
	}

	r.agent = agent
	r.persona = persona

	return nil
}

func (r *run) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

func (r *run) loop() (core.TerminalReason, error) {
	idx := r.req.Run.RunIndex
	cfg := r.req.Config

	for turn := 0; turn < cfg.MaxTurns; turn++ {
		if r.stopped() {
			return core.TerminalError, fmt.Errorf("%w: stopped before turn %d", core.ErrCancelled, turn)
		}

		utterance, err := r.nextUtterance(turn)
		if err != nil {
			return core.TerminalError, &core.PersonaError{RunIndex: idx, TurnIndex: turn, Err: err}
		}
		if utterance.End {
			return core.TerminalNaturalEnd, nil
		}

		personaTurn := core.Turn{TurnIndex: turn, Role: core.RolePersona, Content: utterance.Text, Timestamp: r.d.opts.Clock()}

		reply, err := r.chat(turn, utterance.Text)
		if err != nil {
			return core.TerminalError, &core.AgentError{RunIndex: idx, TurnIndex: turn, Err: err}
		}

		r.transcript.Append(personaTurn)
		r.transcript.Append(core.Turn{TurnIndex: turn, Role: core.RoleAgent, Content: reply, Timestamp: r.d.opts.Clock()})
	}

	if r.d.opts.ProbeNaturalEnd && !r.stopped() {
		utterance, err := r.nextUtterance(cfg.MaxTurns)
		if err != nil {
			r.d.logger.Warn("conversation.probe.failed", "run_index", idx, "error", err.Error())
			return core.TerminalMaxTurns, nil
		}
		if utterance.End {
			return core.TerminalNaturalEnd, nil
		}
	}

	return core.TerminalMaxTurns, nil
}

func (r *run) nextUtterance(turn int) (core.Utterance, error) {
	cfg := r.req.Config
	req := core.PersonaRequest{
		RunIndex:   r.req.Run.RunIndex,
		TurnIndex:  turn,
		Context:    cfg.Context,
		Goal:       cfg.Goal,
		Parameters: cfg.PersonaParameters,
		Transcript: r.transcript.Snapshot(),
	}

	return guard(func() (core.Utterance, error) { return r.persona.Next(r.ctx, req) })
}

func (r *run) chat(turn int, prompt string) (string, error) {
	cfg := r.req.Config
	opts := map[string]any{
		core.OptionContext:   cfg.Context,
		core.OptionGoal:      cfg.Goal,
		core.OptionRunIndex:  r.req.Run.RunIndex,
		core.OptionTurnIndex: turn,
	}

	start := time.Now()
	reply, err := guard(func() (string, error) { return r.agent.Chat(r.ctx, prompt, opts) })
	if sl, ok := r.d.logger.(*logging.SimLogger); ok {
		sl.WithRun(r.req.Run.RunIndex, r.req.Run.RunID).LogAgentCall(turn, time.Since(start), err)
	} else if err != nil {
		r.d.logger.Warn("conversation.turn.agent_error", "run_index", r.req.Run.RunIndex, "turn_index", turn, "error", err.Error())
	}

	return reply, err
}

// guard converts a panic raised by collaborator code into an error.
func guard[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &core.PanicError{Value: p, Stack: debug.Stack()}
		}
	}()
	return fn()
}
