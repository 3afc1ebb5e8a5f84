package core

import "context"

// Chat option keys set by the conversation driver on every agent call.
const (
	OptionContext   = "context"
	OptionGoal      = "goal"
	OptionRunIndex  = "run_index"
	OptionTurnIndex = "turn_index"
)

// Agent is the conversational capability under test. A fresh instance is
// created for every run and is never shared across runs.
type Agent interface {
	Chat(ctx context.Context, prompt string, opts map[string]any) (string, error)
}

// AgentFunc adapts a plain function to the Agent interface.
type AgentFunc func(ctx context.Context, prompt string, opts map[string]any) (string, error)

// Chat implements Agent.
func (f AgentFunc) Chat(ctx context.Context, prompt string, opts map[string]any) (string, error) {
	return f(ctx, prompt, opts)
}

// AgentFactory constructs a fresh agent for one run. params is the
// agent-setup subset of the persona parameters (see SimulationConfig.AgentParameters).
type AgentFactory func(ctx context.Context, params map[string]any) (Agent, error)
