package toolevent

import (
	"io"

	"github.com/hupe1980/agentsim/core"
	"github.com/hupe1980/agentsim/internal/eventlog"
)

// Sink receives tool events. Implementations must support concurrent Append.
type Sink interface {
	Append(ev core.ToolEvent)
}

// MemorySink keeps events in memory in emission order.
type MemorySink struct {
	log *eventlog.Memory[core.ToolEvent]
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{log: eventlog.NewMemory[core.ToolEvent]()}
}

// Append implements Sink.
func (s *MemorySink) Append(ev core.ToolEvent) { s.log.Append(ev) }

// Events returns a copy of all recorded events.
func (s *MemorySink) Events() []core.ToolEvent { return s.log.Items() }

// Len returns the number of recorded events.
func (s *MemorySink) Len() int { return s.log.Len() }

// ByRun groups events by run index in emission order.
func (s *MemorySink) ByRun() map[int][]core.ToolEvent {
	return eventlog.GroupBy(s.log.Items(), func(ev core.ToolEvent) int { return ev.RunIndex })
}

// JSONLSink streams events as JSON lines.
type JSONLSink struct {
	*eventlog.JSONL[core.ToolEvent]
}

// NewJSONLSink creates a sink writing one JSON object per line to w.
func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{JSONL: eventlog.NewJSONL[core.ToolEvent](w)}
}

// MultiSink fans events out to several sinks in order.
type MultiSink []Sink

// Append implements Sink.
func (m MultiSink) Append(ev core.ToolEvent) {
	for _, s := range m {
		if s != nil {
			s.Append(ev)
		}
	}
}

type discardSink struct{}

func (discardSink) Append(core.ToolEvent) {}
