// Package report aggregates per-run results and captured events into a
// core.SimulationReport. Build is a pure function: it performs no I/O and
// tolerates partial input, reporting every missing run as failed with reason
// not_completed.
package report

import (
	"encoding/json"
	"io"
	"sort"
	"time"

	"github.com/hupe1980/agentsim/core"
)

// Input is everything collected during one scheduling run.
type Input struct {
	Config      core.SimulationConfig
	Results     []core.RunResult
	TraceEvents []core.TraceEvent
	ToolEvents  []core.ToolEvent
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Build merges results and events into a report keyed by run index. Every
// index in [0, NumSimulations) is present. Events attributed to indexes
// outside that range are dropped.
func Build(in Input) core.SimulationReport {
	n := in.Config.NumSimulations
	if n < 0 {
		n = 0
	}

	traces := map[int][]core.TraceEvent{}
	for _, ev := range in.TraceEvents {
		traces[ev.RunIndex] = append(traces[ev.RunIndex], ev)
	}
	tools := map[int][]core.ToolEvent{}
	for _, ev := range in.ToolEvents {
		tools[ev.RunIndex] = append(tools[ev.RunIndex], ev)
	}

	results := make(map[int]core.RunResult, len(in.Results))
	for _, res := range in.Results {
		if _, dup := results[res.Handle.RunIndex]; !dup {
			results[res.Handle.RunIndex] = res
		}
	}

	rep := core.SimulationReport{
		Config:     in.Config,
		Runs:       make(map[int]core.RunReport, n),
		StartedAt:  in.StartedAt,
		FinishedAt: in.FinishedAt,
	}

	for i := 0; i < n; i++ {
		rr := core.RunReport{
			RunIndex:    i,
			TraceEvents: sortedTraces(traces[i]),
			ToolEvents:  copyTools(tools[i]),
		}
		rr.UnclosedToolEvents = unclosed(rr.ToolEvents)

		if res, ok := results[i]; ok {
			tr := res.Transcript
			rr.RunID = res.Handle.RunID
			rr.Status = res.Handle.Status
			rr.Transcript = &tr
			rr.Error = tr.Error
			rr.StartedAt = res.Handle.StartedAt
			rr.FinishedAt = res.Handle.FinishedAt
		} else {
			rr.Status = core.RunFailed
			rr.Reason = core.ReasonNotCompleted
			rr.Error = core.Describe(&core.NotCompletedError{RunIndex: i})
		}

		rep.Runs[i] = rr
	}

	rep.Summary = Summarize(rep)

	return rep
}

// Summarize computes aggregate counts over the runs of rep.
func Summarize(rep core.SimulationReport) core.ReportSummary {
	s := core.ReportSummary{
		Requested:       len(rep.Runs),
		TerminalReasons: map[core.TerminalReason]int{},
	}

	for _, rr := range rep.Runs {
		switch rr.Status {
		case core.RunCompleted:
			s.Completed++
		case core.RunFailed:
			s.Failed++
		}
		if reason := rr.TerminalReason(); reason != "" {
			s.TerminalReasons[reason]++
		}
		s.TraceEvents += len(rr.TraceEvents)
		for _, ev := range rr.TraceEvents {
			if ev.Failed() {
				s.FailedTraceEvents++
			}
		}
		s.ToolEvents += len(rr.ToolEvents)
		s.UnclosedToolEvents += len(rr.UnclosedToolEvents)
	}

	return s
}

func sortedTraces(events []core.TraceEvent) []core.TraceEvent {
	out := make([]core.TraceEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func copyTools(events []core.ToolEvent) []core.ToolEvent {
	out := make([]core.ToolEvent, len(events))
	copy(out, events)
	return out
}

// unclosed returns the open records whose handle never received a closed
// record, in emission order.
func unclosed(events []core.ToolEvent) []core.ToolEvent {
	closed := map[string]bool{}
	for _, ev := range events {
		if ev.Phased() && ev.Phase == core.ToolEventClosed {
			closed[ev.Handle] = true
		}
	}

	var out []core.ToolEvent
	for _, ev := range events {
		if ev.Phased() && ev.Phase == core.ToolEventOpen && !closed[ev.Handle] {
			out = append(out, ev)
		}
	}
	return out
}

// WriteJSON writes rep as indented JSON.
func WriteJSON(w io.Writer, rep core.SimulationReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
