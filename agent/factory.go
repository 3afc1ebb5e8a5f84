package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentsim/core"
	"github.com/hupe1980/agentsim/model"
)

// ModelFactory returns the model used by the agent of one run. params is the
// agent-setup subset of the persona parameters.
type ModelFactory func(ctx context.Context, params map[string]any) (model.Model, error)

// StaticModel returns a ModelFactory that shares m between all runs. m must
// be safe for concurrent use.
func StaticModel(m model.Model) ModelFactory {
	return func(context.Context, map[string]any) (model.Model, error) { return m, nil }
}

// NewFactory returns a core.AgentFactory building a fresh ModelAgent per
// run. The instruction, max_steps and temperature parameters override the
// configured options for that run.
func NewFactory(models ModelFactory, optFns ...func(o *Options)) core.AgentFactory {
	return func(ctx context.Context, params map[string]any) (core.Agent, error) {
		if models == nil {
			return nil, fmt.Errorf("agent factory: no model factory configured")
		}

		llm, err := models(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("create model: %w", err)
		}

		fns := append([]func(o *Options){}, optFns...)
		fns = append(fns, func(o *Options) {
			if s, ok := params[OptionInstruction].(string); ok && s != "" {
				o.Instruction = s
			}
			if n, ok := intOption(params, OptionMaxSteps); ok && n > 0 {
				o.MaxSteps = n
			}
			if f, ok := floatOption(params, OptionTemperature); ok {
				o.Temperature = &f
			}
		})

		return NewModelAgent(llm, fns...), nil
	}
}
