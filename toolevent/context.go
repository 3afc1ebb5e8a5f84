package toolevent

import "context"

type recorderKey struct{}

// WithRecorder returns a child context carrying r.
func WithRecorder(ctx context.Context, r *Recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, r)
}

// FromContext returns the recorder attached to ctx, or nil.
func FromContext(ctx context.Context) *Recorder {
	if ctx == nil {
		return nil
	}
	r, _ := ctx.Value(recorderKey{}).(*Recorder)
	return r
}

// Record emits a one-shot event through the recorder carried by ctx.
// Without a recorder it does nothing.
func Record(ctx context.Context, toolName, input, output string) {
	if r := FromContext(ctx); r != nil {
		r.Record(ctx, toolName, input, output)
	}
}

// RecordError emits a failed one-shot event through the recorder carried by ctx.
func RecordError(ctx context.Context, toolName, input string, err error) {
	if r := FromContext(ctx); r != nil {
		r.RecordError(ctx, toolName, input, err)
	}
}

// Start opens a phased event through the recorder carried by ctx. Without a
// recorder it returns the empty handle, which Finish accepts as a no-op.
func Start(ctx context.Context, toolName, input string) Handle {
	if r := FromContext(ctx); r != nil {
		return r.Start(ctx, toolName, input)
	}
	return ""
}

// Finish closes a phased event through the recorder carried by ctx.
func Finish(ctx context.Context, h Handle, output string) error {
	r := FromContext(ctx)
	if r == nil {
		return nil
	}
	return r.Finish(h, output)
}

// FinishError closes a phased event with an error through the recorder carried by ctx.
func FinishError(ctx context.Context, h Handle, err error) error {
	r := FromContext(ctx)
	if r == nil {
		return nil
	}
	return r.FinishError(h, err)
}
