package core

import "time"

// Role identifies the speaker of a Turn.
type Role string

const (
	// RolePersona marks an utterance produced by the persona policy.
	RolePersona Role = "persona"
	// RoleAgent marks a reply produced by the agent under test.
	RoleAgent Role = "agent"
)

// TerminalReason explains why a run's turn loop ended.
type TerminalReason string

const (
	// TerminalMaxTurns means the turn budget was exhausted.
	TerminalMaxTurns TerminalReason = "max_turns_reached"
	// TerminalNaturalEnd means the persona signalled the end of the conversation.
	TerminalNaturalEnd TerminalReason = "natural_end"
	// TerminalError means the run stopped because of a captured failure.
	TerminalError TerminalReason = "error"
)

// Turn is one utterance of a transcript. The persona utterance and the agent
// reply of the same exchange share a TurnIndex; within a transcript turns are
// ordered by TurnIndex with the persona turn first.
type Turn struct {
	TurnIndex int       `json:"turn_index"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript is the ordered conversation of a single run.
type Transcript struct {
	RunIndex       int              `json:"run_index"`
	Turns          []Turn           `json:"turns"`
	TerminalReason TerminalReason   `json:"terminal_reason,omitempty"`
	Error          *ErrorDescriptor `json:"error,omitempty"`
}

// NewTranscript creates an empty transcript owned by the given run.
func NewTranscript(runIndex int) *Transcript {
	return &Transcript{RunIndex: runIndex, Turns: []Turn{}}
}

// Append adds a turn at the end of the transcript.
func (t *Transcript) Append(turn Turn) {
	t.Turns = append(t.Turns, turn)
}

// Snapshot returns a copy of the transcript whose Turns slice does not alias
// the original. Persona policies receive snapshots so they cannot mutate the
// driver's transcript.
func (t *Transcript) Snapshot() Transcript {
	out := *t
	out.Turns = make([]Turn, len(t.Turns))
	copy(out.Turns, t.Turns)
	return out
}

// CountRole returns how many turns were spoken by role.
func (t Transcript) CountRole(role Role) int {
	n := 0
	for _, turn := range t.Turns {
		if turn.Role == role {
			n++
		}
	}
	return n
}

// LastAgentReply returns the most recent agent turn, if any.
func (t Transcript) LastAgentReply() (Turn, bool) {
	for i := len(t.Turns) - 1; i >= 0; i-- {
		if t.Turns[i].Role == RoleAgent {
			return t.Turns[i], true
		}
	}
	return Turn{}, false
}
