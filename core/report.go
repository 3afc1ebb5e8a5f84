package core

import (
	"sort"
	"time"
)

// ReasonNotCompleted is the RunReport.Reason of runs that produced no result
// and of phased tool events that were never finished.
const ReasonNotCompleted = "not_completed"

// RunReport is the per-run entry of a SimulationReport.
type RunReport struct {
	RunIndex int       `json:"run_index"`
	RunID    string    `json:"run_id,omitempty"`
	Status   RunStatus `json:"status"`
	// Reason is set for failed runs (ReasonNotCompleted).
	Reason     string      `json:"reason,omitempty"`
	Transcript *Transcript `json:"transcript,omitempty"`
	// TraceEvents are ordered by start time.
	TraceEvents []TraceEvent `json:"trace_events"`
	// ToolEvents are in emission order. Phased events appear twice.
	ToolEvents []ToolEvent `json:"tool_events"`
	// UnclosedToolEvents lists open records whose handle was never finished.
	UnclosedToolEvents []ToolEvent       `json:"unclosed_tool_events,omitempty"`
	Error              *ErrorDescriptor `json:"error,omitempty"`
	StartedAt          *time.Time       `json:"started_at,omitempty"`
	FinishedAt         *time.Time       `json:"finished_at,omitempty"`
}

// TerminalReason returns the transcript's terminal reason, or "" for runs
// without a transcript.
func (r RunReport) TerminalReason() TerminalReason {
	if r.Transcript == nil {
		return ""
	}
	return r.Transcript.TerminalReason
}

// ReportSummary aggregates counts across all runs.
type ReportSummary struct {
	Requested          int                    `json:"requested"`
	Completed          int                    `json:"completed"`
	Failed             int                    `json:"failed"`
	TerminalReasons    map[TerminalReason]int `json:"terminal_reasons"`
	TraceEvents        int                    `json:"trace_events"`
	FailedTraceEvents  int                    `json:"failed_trace_events"`
	ToolEvents         int                    `json:"tool_events"`
	UnclosedToolEvents int                    `json:"unclosed_tool_events"`
}

// SimulationReport enumerates every requested run with an explicit status.
type SimulationReport struct {
	Config     SimulationConfig  `json:"config"`
	Runs       map[int]RunReport `json:"runs"`
	Summary    ReportSummary     `json:"summary"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Run returns the entry for runIndex.
func (r SimulationReport) Run(runIndex int) (RunReport, bool) {
	rr, ok := r.Runs[runIndex]
	return rr, ok
}

// RunIndexes returns the run indexes of the report in ascending order.
func (r SimulationReport) RunIndexes() []int {
	idx := make([]int, 0, len(r.Runs))
	for i := range r.Runs {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// Duration is the wall time of the scheduling run.
func (r SimulationReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
