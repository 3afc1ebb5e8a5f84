package core

import (
	"context"

	"github.com/google/uuid"
)

// NewID generates a new unique identifier for runs, trace events and
// tool-event handles.
func NewID() string { return uuid.NewString() }

// RunInfo identifies the simulation run a piece of work belongs to. It is
// carried through context.Context so tracers and recorders can attribute
// events without process-wide state.
type RunInfo struct {
	RunIndex int
	RunID    string
}

type runInfoKey struct{}

// NoRun is the run index reported for events emitted outside of any run.
const NoRun = -1

// WithRun returns a child context carrying the given run identity.
func WithRun(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunFromContext returns the run identity attached to ctx, if any.
func RunFromContext(ctx context.Context) (RunInfo, bool) {
	if ctx == nil {
		return RunInfo{RunIndex: NoRun}, false
	}
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)
	if !ok {
		return RunInfo{RunIndex: NoRun}, false
	}
	return info, true
}

// RunIndexFromContext is a shorthand returning NoRun when ctx carries no run.
func RunIndexFromContext(ctx context.Context) int {
	info, _ := RunFromContext(ctx)
	return info.RunIndex
}
