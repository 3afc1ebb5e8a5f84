// Package toolevent records spans of external operations performed during a
// simulation run, independently of the call tracer.
//
// Two modes are supported:
//
//	rec.Record(ctx, "weather_api", "location: NYC", "temperature: 72F")
//
//	h := rec.Start(ctx, "database_query", "SELECT * FROM users")
//	// ... do work ...
//	err := rec.Finish(h, "1000 rows returned")
//
// Finish on an unknown or already closed handle returns a
// *core.ToolEventProtocolError; it never panics. The recorder does not catch
// failures itself: callers report them through RecordError / FinishError.
//
// A Recorder can be attached to a context (WithRecorder) so agent code can
// record events through the package-level helpers without global state.
package toolevent
