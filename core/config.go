package core

import "fmt"

// SimulationConfig is the immutable input of a scheduling run.
type SimulationConfig struct {
	// NumSimulations is the number of independent runs to dispatch.
	NumSimulations int `json:"num_simulations" yaml:"num_simulations"`
	// MaxTurns bounds the persona/agent turn pairs of each run.
	MaxTurns int `json:"max_turns" yaml:"max_turns"`
	// ConcurrencyLimit bounds how many runs execute at the same time.
	ConcurrencyLimit int `json:"concurrency_limit" yaml:"concurrency_limit"`
	// PersonaParameters is handed to the persona policy (and, under the
	// AgentParametersKey entry, to the agent factory).
	PersonaParameters map[string]any `json:"persona_parameters,omitempty" yaml:"persona_parameters,omitempty"`
	// Context describes the situation the persona is simulating.
	Context string `json:"context,omitempty" yaml:"context,omitempty"`
	// Goal states what the simulated conversation should verify.
	Goal string `json:"goal,omitempty" yaml:"goal,omitempty"`
}

// AgentParametersKey is the PersonaParameters entry forwarded to the agent
// factory when constructing a fresh agent for a run.
const AgentParametersKey = "agent"

// Validate checks the invariants required before any run is dispatched.
// The returned error is always a *ConfigError.
func (c SimulationConfig) Validate() error {
	if c.NumSimulations < 1 {
		return &ConfigError{Field: "num_simulations", Message: fmt.Sprintf("must be >= 1, got %d", c.NumSimulations)}
	}
	if c.MaxTurns < 1 {
		return &ConfigError{Field: "max_turns", Message: fmt.Sprintf("must be >= 1, got %d", c.MaxTurns)}
	}
	if c.ConcurrencyLimit < 1 {
		return &ConfigError{Field: "concurrency_limit", Message: fmt.Sprintf("must be >= 1, got %d", c.ConcurrencyLimit)}
	}
	if c.ConcurrencyLimit > c.NumSimulations {
		return &ConfigError{Field: "concurrency_limit", Message: fmt.Sprintf("must be <= num_simulations (%d), got %d", c.NumSimulations, c.ConcurrencyLimit)}
	}
	return nil
}

// AgentParameters returns the agent-setup subset of PersonaParameters.
// The returned map is a copy and safe for the caller to mutate.
func (c SimulationConfig) AgentParameters() map[string]any {
	out := map[string]any{}
	raw, ok := c.PersonaParameters[AgentParametersKey].(map[string]any)
	if !ok {
		return out
	}
	for k, v := range raw {
		out[k] = v
	}
	return out
}

// Clone returns a copy whose parameter map can be shared read-only between
// concurrent runs without aliasing the caller's map.
func (c SimulationConfig) Clone() SimulationConfig {
	out := c
	if c.PersonaParameters != nil {
		out.PersonaParameters = make(map[string]any, len(c.PersonaParameters))
		for k, v := range c.PersonaParameters {
			out.PersonaParameters[k] = v
		}
	}
	return out
}
