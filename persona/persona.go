// Package persona provides reference persona policies that need no remote
// service. They are useful for smoke runs, examples and tests; realistic
// utterance generation is left to external persona implementations of
// core.Persona.
package persona

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentsim/core"
	"github.com/hupe1980/agentsim/internal/util"
)

// ScriptParameter is the persona_parameters entry read by FromParameters.
const ScriptParameter = "script"

// Scripted replies with its lines in order and ends the conversation once
// they are exhausted. It derives its position from the transcript, so one
// value can serve any number of concurrent runs.
type Scripted struct {
	Lines []string
}

// NewScripted returns a PersonaFactory serving the given lines to every run.
func NewScripted(lines ...string) core.PersonaFactory {
	return core.StaticPersona(Scripted{Lines: lines})
}

// Next implements core.Persona.
func (s Scripted) Next(_ context.Context, req core.PersonaRequest) (core.Utterance, error) {
	spoken := req.Transcript.CountRole(core.RolePersona)
	if spoken >= len(s.Lines) {
		return core.EndConversation, nil
	}
	return core.Utterance{Text: s.Lines[spoken]}, nil
}

// FromParameters builds a scripted persona from the "script" entry of the
// run's persona parameters. Lines are text/templates rendered with
// .context, .goal, .turn_index, .run_index and .params.
func FromParameters() core.PersonaFactory {
	return core.StaticPersona(core.PersonaFunc(func(ctx context.Context, req core.PersonaRequest) (core.Utterance, error) {
		lines, err := scriptLines(req.Parameters[ScriptParameter])
		if err != nil {
			return core.Utterance{}, err
		}

		u, err := Scripted{Lines: lines}.Next(ctx, req)
		if err != nil || u.End {
			return u, err
		}

		u.Text, err = util.RenderTemplate(u.Text, map[string]any{
			"context":    req.Context,
			"goal":       req.Goal,
			"turn_index": req.TurnIndex,
			"run_index":  req.RunIndex,
			"params":     req.Parameters,
		})
		if err != nil {
			return core.Utterance{}, fmt.Errorf("render persona line %d: %w", req.TurnIndex, err)
		}

		return u, nil
	}))
}

func scriptLines(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("persona parameter %q is missing", ScriptParameter)
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("persona parameter %q: item %d is %T, want string", ScriptParameter, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("persona parameter %q is %T, want list of strings", ScriptParameter, raw)
	}
}

// Limit wraps p so the conversation ends after maxUtterances persona turns.
func Limit(p core.Persona, maxUtterances int) core.Persona {
	return core.PersonaFunc(func(ctx context.Context, req core.PersonaRequest) (core.Utterance, error) {
		if req.Transcript.CountRole(core.RolePersona) >= maxUtterances {
			return core.EndConversation, nil
		}
		return p.Next(ctx, req)
	})
}
