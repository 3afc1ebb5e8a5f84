package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/agentsim/conversation"
	"github.com/hupe1980/agentsim/core"
	"github.com/hupe1980/agentsim/logging"
	"github.com/hupe1980/agentsim/report"
	"github.com/hupe1980/agentsim/toolevent"
	"github.com/hupe1980/agentsim/trace"
	"golang.org/x/sync/semaphore"
)

// Options configures a Scheduler using the functional options pattern.
//
// Example:
//
//	s := scheduler.New(agents, personas, func(o *scheduler.Options) {
//	    o.Logger = logger
//	    o.GracePeriod = 30 * time.Second
//	})
type Options struct {
	// Logger provides structured logging. Defaults to NoOp.
	Logger logging.Logger

	// TraceSink additionally receives every trace event as it is emitted
	// (for example a trace.JSONLSink streaming to a file). The report is
	// always built from an in-memory copy.
	TraceSink trace.Sink

	// ToolSink additionally receives every tool event as it is emitted.
	ToolSink toolevent.Sink

	// Observer is notified when runs are admitted and finished.
	Observer Observer

	// GracePeriod bounds how long in-flight runs may continue after the
	// caller's context is cancelled. Zero waits for all in-flight runs;
	// runs still executing when a positive grace period expires are
	// abandoned and reported as not completed.
	GracePeriod time.Duration

	// AgentTraceName is the function name used to trace agent chat calls.
	AgentTraceName string

	// ProbeNaturalEnd is forwarded to the conversation driver.
	ProbeNaturalEnd bool

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Scheduler runs simulations. It is stateless between Run calls and safe to
// reuse; each Run gets its own event sinks and admission gate.
//
// Concurrency model:
//   - One goroutine per admitted run, bounded by ConcurrencyLimit through a
//     weighted semaphore acquired before the goroutine is spawned
//   - Run indexes are assigned in dispatch order 0..NumSimulations-1
//   - The trace and tool event sinks are the only state shared between runs
//   - Cancellation of the caller's context stops admission and is checked by
//     every in-flight run at its next turn boundary
type Scheduler struct {
	agents   core.AgentFactory
	personas core.PersonaFactory
	opts     Options
	logger   logging.Logger
}

// New creates a Scheduler. agents is invoked once per run to build a fresh
// agent; personas is invoked once per run to obtain its persona policy.
func New(agents core.AgentFactory, personas core.PersonaFactory, optFns ...func(o *Options)) *Scheduler {
	opts := Options{
		Logger:          logging.NoOpLogger{},
		Observer:        noopObserver{},
		AgentTraceName:  conversation.DefaultAgentTraceName,
		ProbeNaturalEnd: true,
		Clock:           time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}

	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Scheduler{
		agents:   agents,
		personas: personas,
		opts:     opts,
		logger:   logging.OrNoOp(opts.Logger),
	}
}

// Run validates cfg, executes NumSimulations conversations with at most
// ConcurrencyLimit running at any instant, and returns the aggregated report.
// The only error returned is a *core.ConfigError, raised before any agent
// is constructed.
func (s *Scheduler) Run(ctx context.Context, cfg core.SimulationConfig) (core.SimulationReport, error) {
	if err := cfg.Validate(); err != nil {
		s.logger.Error("scheduler.config.invalid", "error", err.Error())
		return core.SimulationReport{}, err
	}

	cfg = cfg.Clone()
	startedAt := s.opts.Clock()

	traces := trace.NewMemorySink()
	tools := toolevent.NewMemorySink()

	tracer := trace.New(func(o *trace.Options) {
		o.Sink = trace.MultiSink{traces, s.opts.TraceSink}
		o.Logger = s.opts.Logger
	})
	recorder := toolevent.New(func(o *toolevent.Options) {
		o.Sink = toolevent.MultiSink{tools, s.opts.ToolSink}
		o.Logger = s.opts.Logger
	})

	driver := conversation.NewDriver(s.agents, s.personas, func(o *conversation.Options) {
		o.Logger = s.opts.Logger
		o.Tracer = tracer
		o.Recorder = recorder
		o.AgentTraceName = s.opts.AgentTraceName
		o.ProbeNaturalEnd = s.opts.ProbeNaturalEnd
		o.Clock = s.opts.Clock
	})

	s.logger.Info("scheduler.started",
		"num_simulations", cfg.NumSimulations,
		"max_turns", cfg.MaxTurns,
		"concurrency_limit", cfg.ConcurrencyLimit,
	)

	// In-flight runs keep working after the caller cancels; workCtx is only
	// cancelled when the grace period expires.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	gate := semaphore.NewWeighted(int64(cfg.ConcurrencyLimit))
	results := make(chan core.RunResult, cfg.NumSimulations)

	var wg sync.WaitGroup

	dispatched := 0
	for i := 0; i < cfg.NumSimulations; i++ {
		if ctx.Err() != nil {
			break
		}
		if err := gate.Acquire(ctx, 1); err != nil {
			break
		}

		handle := core.NewRunHandle(i)
		handle.MarkRunning(s.opts.Clock())
		s.logger.Debug("scheduler.run.admitted", "run_index", i, "run_id", handle.RunID)
		s.opts.Observer.RunAdmitted(*handle)

		dispatched++
		wg.Add(1)

		go func(h *core.RunHandle) {
			defer wg.Done()
			defer gate.Release(1)

			transcript := driver.Run(workCtx, conversation.Request{
				Run:    h.Info(),
				Config: cfg,
				Stop:   ctx.Done(),
			})

			h.MarkFinished(core.RunCompleted, s.opts.Clock())
			result := core.RunResult{Handle: *h, Transcript: transcript}
			s.logFinished(result)
			s.opts.Observer.RunFinished(result)

			results <- result
		}(handle)
	}

	if dispatched < cfg.NumSimulations {
		s.logger.Warn("scheduler.admission.stopped",
			"dispatched", dispatched,
			"not_dispatched", cfg.NumSimulations-dispatched,
			"reason", core.Describe(context.Cause(ctx)).String(),
		)
	}

	s.wait(ctx, &wg, cancelWork)

	collected := make([]core.RunResult, 0, dispatched)
	for done := false; !done; {
		select {
		case res := <-results:
			collected = append(collected, res)
		default:
			done = true
		}
	}

	rep := report.Build(report.Input{
		Config:      cfg,
		Results:     collected,
		TraceEvents: traces.Events(),
		ToolEvents:  tools.Events(),
		StartedAt:   startedAt,
		FinishedAt:  s.opts.Clock(),
	})

	s.logger.Info("scheduler.finished",
		"completed", rep.Summary.Completed,
		"failed", rep.Summary.Failed,
		"unclosed_tool_events", rep.Summary.UnclosedToolEvents,
		"duration", rep.Duration(),
	)

	return rep, nil
}

// wait blocks until every dispatched run has finished, or until the grace
// period after cancellation has expired.
func (s *Scheduler) wait(ctx context.Context, wg *sync.WaitGroup, cancelWork context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	if s.opts.GracePeriod <= 0 {
		<-done
		return
	}

	timer := time.NewTimer(s.opts.GracePeriod)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		s.logger.Warn("scheduler.grace_period.expired", "grace_period", s.opts.GracePeriod)
		cancelWork()
	}
}

func (s *Scheduler) logFinished(result core.RunResult) {
	h := result.Handle
	var dur time.Duration
	if h.StartedAt != nil && h.FinishedAt != nil {
		dur = h.FinishedAt.Sub(*h.StartedAt)
	}

	if sl, ok := s.logger.(*logging.SimLogger); ok {
		sl.WithRun(h.RunIndex, h.RunID).LogRunFinished(string(h.Status), string(result.Transcript.TerminalReason), len(result.Transcript.Turns), dur)
		return
	}

	s.logger.Info("scheduler.run.finished",
		"run_index", h.RunIndex,
		"status", string(h.Status),
		"terminal_reason", string(result.Transcript.TerminalReason),
		"turns", len(result.Transcript.Turns),
		"duration", dur,
	)
}
