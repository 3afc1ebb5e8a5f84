// Package trace records function-level call traces.
//
// A Tracer wraps functions so that every invocation emits exactly one
// core.TraceEvent (inputs, output or error, start time, duration) to an
// append-only Sink, without altering the wrapped function's results, errors
// or panics. Wrappers exist for plain functions (Pure), context-aware
// functions (Func, Func2), agent chat capabilities (Agent) and streaming
// model calls (Model), where the event is emitted once the stream ends.
//
// Events are attributed to the run carried by the call's context
// (see core.WithRun); calls outside a run are recorded with core.NoRun.
package trace
