package core

import "context"

// PersonaRequest is everything a persona policy sees when asked for the next
// user utterance.
type PersonaRequest struct {
	RunIndex   int
	TurnIndex  int
	Context    string
	Goal       string
	Parameters map[string]any
	// Transcript is a snapshot; mutating it has no effect on the run.
	Transcript Transcript
}

// Utterance is the persona's answer: either text to send to the agent or a
// signal that the conversation is over.
type Utterance struct {
	Text string
	End  bool
}

// EndConversation is the Utterance signalling a natural end.
var EndConversation = Utterance{End: true}

// Persona produces user-side utterances and decides when a conversation ends.
type Persona interface {
	Next(ctx context.Context, req PersonaRequest) (Utterance, error)
}

// PersonaFunc adapts a plain function to the Persona interface.
type PersonaFunc func(ctx context.Context, req PersonaRequest) (Utterance, error)

// Next implements Persona.
func (f PersonaFunc) Next(ctx context.Context, req PersonaRequest) (Utterance, error) {
	return f(ctx, req)
}

// PersonaFactory returns the persona driving the given run. Personas holding
// per-run state must return a fresh instance per call.
type PersonaFactory func(ctx context.Context, runIndex int) (Persona, error)

// StaticPersona returns a PersonaFactory that hands the same stateless
// persona to every run.
func StaticPersona(p Persona) PersonaFactory {
	return func(context.Context, int) (Persona, error) { return p, nil }
}
