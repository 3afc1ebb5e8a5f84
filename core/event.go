package core

import (
	"encoding/json"
	"time"
)

// TraceEvent records one invocation of an instrumented function. It is
// immutable once emitted.
type TraceEvent struct {
	ID           string           `json:"id"`
	RunIndex     int              `json:"run_index"`
	FunctionName string           `json:"function_name"`
	Inputs       json.RawMessage  `json:"inputs,omitempty"`
	Output       json.RawMessage  `json:"output,omitempty"`
	Error        *ErrorDescriptor `json:"error,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	Duration     time.Duration    `json:"duration"`
}

// Failed reports whether the traced call returned an error or panicked.
func (e TraceEvent) Failed() bool { return e.Error != nil }

// ToolEventPhase distinguishes the open and closed records of a phased tool event.
type ToolEventPhase string

const (
	// ToolEventOpen is emitted by Start; FinishedAt is nil.
	ToolEventOpen ToolEventPhase = "open"
	// ToolEventClosed is emitted by Record and Finish.
	ToolEventClosed ToolEventPhase = "closed"
)

// ToolEvent records an external operation performed during a run. One-shot
// events carry no handle. Phased events are emitted twice with the same
// handle: once open and once closed.
type ToolEvent struct {
	RunIndex     int              `json:"run_index"`
	ToolName     string           `json:"tool_name"`
	InputSummary string           `json:"input_summary,omitempty"`
	Output       string           `json:"output_summary,omitempty"`
	Error        *ErrorDescriptor `json:"error,omitempty"`
	Handle       string           `json:"handle,omitempty"`
	Phase        ToolEventPhase   `json:"phase"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   *time.Time       `json:"finished_at,omitempty"`
}

// Phased reports whether the event belongs to a start/finish pair.
func (e ToolEvent) Phased() bool { return e.Handle != "" }

// Duration returns the elapsed time of a closed event and zero otherwise.
func (e ToolEvent) Duration() time.Duration {
	if e.FinishedAt == nil {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}
