// Package agentsim runs multi-turn conversation simulations against an agent
// under test and collects a trace of everything that happened.
//
// Most applications:
//  1. Create a Simulator via New() with an agent factory and a persona factory
//  2. Call Run with a core.SimulationConfig
//  3. Inspect or serialize the returned core.SimulationReport
//
// The façade delegates scheduling to the scheduler package. Each run gets a
// fresh agent, a persona policy and its own transcript; trace and tool events
// are attributed to runs through the context passed to the agent.
package agentsim

import (
	"context"
	"fmt"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/agentsim/agent"
	"github.com/hupe1980/agentsim/config"
	"github.com/hupe1980/agentsim/core"
	"github.com/hupe1980/agentsim/logging"
	"github.com/hupe1980/agentsim/model"
	"github.com/hupe1980/agentsim/model/anthropic"
	"github.com/hupe1980/agentsim/model/openai"
	"github.com/hupe1980/agentsim/scheduler"
	"github.com/hupe1980/agentsim/tool"
	"github.com/hupe1980/agentsim/toolevent"
	"github.com/hupe1980/agentsim/trace"
)

// Options configures the Simulator instance.
type Options struct {
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// TraceSink and ToolSink additionally receive events as they are
	// emitted, for example JSONL sinks streaming to files.
	TraceSink trace.Sink
	ToolSink  toolevent.Sink

	// Observer is notified when runs are admitted and finished.
	Observer scheduler.Observer

	// GracePeriod bounds how long in-flight runs continue after the context
	// passed to Run is cancelled. Zero waits for all of them.
	GracePeriod time.Duration
}

// Simulator is the high-level façade over the scheduler.
type Simulator struct {
	opts      Options
	scheduler *scheduler.Scheduler
	shutdown  func(context.Context) error
}

// New creates a Simulator building one agent and one persona per run.
func New(agents core.AgentFactory, personas core.PersonaFactory, optFns ...func(o *Options)) *Simulator {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := scheduler.New(agents, personas, func(o *scheduler.Options) {
		o.Logger = opts.Logger
		o.TraceSink = opts.TraceSink
		o.ToolSink = opts.ToolSink
		o.GracePeriod = opts.GracePeriod
		if opts.Observer != nil {
			o.Observer = opts.Observer
		}
	})

	return &Simulator{opts: opts, scheduler: s}
}

// Run executes cfg.NumSimulations conversations. Only an invalid cfg is
// returned as an error (a *core.ConfigError); every run failure is recorded
// in the report instead.
func (s *Simulator) Run(ctx context.Context, cfg core.SimulationConfig) (core.SimulationReport, error) {
	return s.scheduler.Run(ctx, cfg)
}

// Close flushes and stops the span exporter set up by NewFromConfig. It is a
// no-op for simulators created with New.
func (s *Simulator) Close(ctx context.Context) error {
	if s.shutdown == nil {
		return nil
	}
	return s.shutdown(ctx)
}

// ModelFromConfig creates the model selected by cfg. A missing credential
// fails fast with config.ErrMissingCredential.
func ModelFromConfig(cfg *config.Config) (model.Model, error) {
	key, err := cfg.APIKey()
	if err != nil {
		return nil, err
	}

	switch cfg.Model.Provider {
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			o.APIKey = key
			if cfg.Model.Name != "" {
				o.Model = cfg.Model.Name
			}
			if cfg.Model.Temperature != nil {
				o.Temperature = *cfg.Model.Temperature
			}
			if cfg.Model.MaxTokens > 0 {
				o.MaxCompletionTokens = cfg.Model.MaxTokens
			}
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = key
			if cfg.Model.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Model.Name)
			}
			if cfg.Model.Temperature != nil {
				o.Temperature = *cfg.Model.Temperature
			}
			if cfg.Model.MaxTokens > 0 {
				o.MaxTokens = cfg.Model.MaxTokens
			}
		}), nil
	case config.ProviderMock:
		name := cfg.Model.Name
		if name == "" {
			name = "mock"
		}
		return model.NewMockModel(name, config.ProviderMock), nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Model.Provider)
	}
}

// NewFromConfig wires a Simulator whose runs each get a fresh agent.ModelAgent
// with the given tools, backed by the configured provider. The model is
// created once and shared by all runs; per-run agent settings come from the
// "agent" entry of the persona parameters. optFns are applied after the
// configured logger and grace period. When tracing is enabled, trace and
// tool events are additionally exported as OpenTelemetry spans; call Close to
// flush them.
func NewFromConfig(cfg *config.Config, personas core.PersonaFactory, tools []tool.Tool, optFns ...func(o *Options)) (*Simulator, error) {
	llm, err := ModelFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}

	agents := agent.NewFactory(agent.StaticModel(llm), func(o *agent.Options) {
		o.Tools = tools
		o.Temperature = cfg.Model.Temperature
		o.Logger = logger.WithComponent("agent")
	})

	fns := append([]func(o *Options){func(o *Options) {
		o.Logger = logger.WithComponent("scheduler")
		o.GracePeriod = cfg.Simulation.GracePeriod
	}}, optFns...)

	otelRuntime, err := trace.SetupOTel(context.Background(), trace.OTelConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Endpoint:    cfg.Tracing.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	if otelRuntime.Enabled {
		traceSpans := trace.NewOTelSink(otelRuntime.Tracer)
		toolSpans := toolevent.NewOTelSink(otelRuntime.Tracer)
		fns = append(fns, func(o *Options) {
			o.TraceSink = trace.MultiSink{o.TraceSink, traceSpans}
			o.ToolSink = toolevent.MultiSink{o.ToolSink, toolSpans}
		})
	}

	sim := New(agents, personas, fns...)
	sim.shutdown = otelRuntime.Shutdown
	return sim, nil
}
