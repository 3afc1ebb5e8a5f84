package trace

import (
	"io"
	"sort"

	"github.com/hupe1980/agentsim/core"
	"github.com/hupe1980/agentsim/internal/eventlog"
)

// Sink receives trace events. Implementations must support concurrent
// Append calls without loss or duplication.
type Sink interface {
	Append(ev core.TraceEvent)
}

// MemorySink keeps events in memory in append order.
type MemorySink struct {
	log *eventlog.Memory[core.TraceEvent]
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{log: eventlog.NewMemory[core.TraceEvent]()}
}

// Append implements Sink.
func (s *MemorySink) Append(ev core.TraceEvent) { s.log.Append(ev) }

// Events returns a copy of all recorded events.
func (s *MemorySink) Events() []core.TraceEvent { return s.log.Items() }

// Len returns the number of recorded events.
func (s *MemorySink) Len() int { return s.log.Len() }

// ByRun groups events by run index, each group ordered by start time.
func (s *MemorySink) ByRun() map[int][]core.TraceEvent {
	out := eventlog.GroupBy(s.log.Items(), func(ev core.TraceEvent) int { return ev.RunIndex })
	for _, group := range out {
		sort.SliceStable(group, func(i, j int) bool { return group[i].StartedAt.Before(group[j].StartedAt) })
	}
	return out
}

// JSONLSink streams events as JSON lines to a writer. The first write error
// is kept and later events are dropped; see Err.
type JSONLSink struct {
	*eventlog.JSONL[core.TraceEvent]
}

// NewJSONLSink creates a sink writing one JSON object per line to w.
func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{JSONL: eventlog.NewJSONL[core.TraceEvent](w)}
}

// MultiSink fans events out to several sinks in order.
type MultiSink []Sink

// Append implements Sink.
func (m MultiSink) Append(ev core.TraceEvent) {
	for _, s := range m {
		if s != nil {
			s.Append(ev)
		}
	}
}

type discardSink struct{}

func (discardSink) Append(core.TraceEvent) {}
