package toolevent

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/agentsim/core"
	"github.com/hupe1980/agentsim/logging"
)

// Handle identifies an open phased tool event.
type Handle string

// Options configures a Recorder.
type Options struct {
	Sink   Sink
	Logger logging.Logger
	Clock  func() time.Time
}

// Recorder emits tool events to its sink and tracks open handles.
// It is safe for concurrent use across runs.
type Recorder struct {
	sink   Sink
	logger logging.Logger
	now    func() time.Time

	mu     sync.Mutex
	open   map[Handle]core.ToolEvent
	closed map[Handle]struct{}
}

// New creates a Recorder.
func New(optFns ...func(o *Options)) *Recorder {
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

	return &Recorder{
		sink:   opts.Sink,
		logger: logging.OrNoOp(opts.Logger),
		now:    opts.Clock,
		open:   map[Handle]core.ToolEvent{},
		closed: map[Handle]struct{}{},
	}
}

// Record emits one closed event for a successful one-shot operation.
func (r *Recorder) Record(ctx context.Context, toolName, input, output string) {
	r.record(ctx, toolName, input, output, nil)
}

// RecordError emits one closed event for a failed one-shot operation.
func (r *Recorder) RecordError(ctx context.Context, toolName, input string, err error) {
	r.record(ctx, toolName, input, "", err)
}

func (r *Recorder) record(ctx context.Context, toolName, input, output string, err error) {
	now := r.now()
	ev := core.ToolEvent{
		RunIndex:     core.RunIndexFromContext(ctx),
		ToolName:     toolName,
		InputSummary: input,
		Output:       output,
		Error:        core.Describe(err),
		Phase:        core.ToolEventClosed,
		StartedAt:    now,
		FinishedAt:   &now,
	}

	r.sink.Append(ev)
	r.logger.Debug("toolevent.recorded", "tool_name", toolName, "run_index", ev.RunIndex, "success", err == nil)
}

// Start emits an open event and returns its handle.
func (r *Recorder) Start(ctx context.Context, toolName, input string) Handle {
	h := Handle(core.NewID())
	ev := core.ToolEvent{
		RunIndex:     core.RunIndexFromContext(ctx),
		ToolName:     toolName,
		InputSummary: input,
		Handle:       string(h),
		Phase:        core.ToolEventOpen,
		StartedAt:    r.now(),
	}

	r.mu.Lock()
	r.open[h] = ev
	r.mu.Unlock()

	r.sink.Append(ev)
	r.logger.Debug("toolevent.started", "tool_name", toolName, "run_index", ev.RunIndex, "handle", string(h))

	return h
}

// Finish closes the event identified by h with a success summary.
func (r *Recorder) Finish(h Handle, output string) error {
	return r.finish(h, output, nil)
}

// FinishError closes the event identified by h with an error.
func (r *Recorder) FinishError(h Handle, err error) error {
	return r.finish(h, "", err)
}

func (r *Recorder) finish(h Handle, output string, cause error) error {
	r.mu.Lock()
	ev, ok := r.open[h]
	if !ok {
		_, wasClosed := r.closed[h]
		r.mu.Unlock()

		reason := core.ErrUnknownHandle
		if wasClosed {
			reason = core.ErrHandleClosed
		}
		err := &core.ToolEventProtocolError{Handle: string(h), Err: reason}
		r.logger.Warn("toolevent.finish.protocol_error", "handle", string(h), "error", err.Error())
		return err
	}
	delete(r.open, h)
	r.closed[h] = struct{}{}
	r.mu.Unlock()

	finished := r.now()
	ev.Phase = core.ToolEventClosed
	ev.Output = output
	ev.Error = core.Describe(cause)
	ev.FinishedAt = &finished

	r.sink.Append(ev)
	r.logger.Debug("toolevent.finished", "tool_name", ev.ToolName, "run_index", ev.RunIndex, "handle", string(h), "duration", ev.Duration(), "success", cause == nil)

	return nil
}

// OpenHandles returns the open events of runIndex ordered by start time.
// Pass core.NoRun to inspect events recorded outside of any run.
func (r *Recorder) OpenHandles(runIndex int) []core.ToolEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []core.ToolEvent
	for _, ev := range r.open {
		if ev.RunIndex == runIndex {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })

	return out
}

// OpenCount returns the number of open handles across all runs.
func (r *Recorder) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.open)
}
