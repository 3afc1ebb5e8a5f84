package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/agentsim/core"
)

// Gauge tracks a current value and the maximum it ever reached.
type Gauge struct {
	cur atomic.Int64
	max atomic.Int64
}

// Inc increments the gauge and updates the high-water mark.
func (g *Gauge) Inc() {
	v := g.cur.Add(1)
	for {
		m := g.max.Load()
		if v <= m || g.max.CompareAndSwap(m, v) {
			return
		}
	}
}

// Dec decrements the gauge.
func (g *Gauge) Dec() { g.cur.Add(-1) }

// Current returns the current value.
func (g *Gauge) Current() int64 { return g.cur.Load() }

// Max returns the highest value observed.
func (g *Gauge) Max() int64 { return g.max.Load() }

// AgentFactory builds fake agents and counts how many were created.
type AgentFactory struct {
	// Reply computes the agent's answer. Defaults to "reply to: <prompt>".
	Reply func(prompt string, opts map[string]any) string
	// FailOnCall makes the n-th Chat call (1-based) of every agent fail.
	FailOnCall int
	// PanicOnCall makes the n-th Chat call (1-based) of every agent panic.
	PanicOnCall int
	// FailRun restricts failure injection to one run index (-1 = all runs).
	FailRun int
	// Delay is slept inside every Chat call, honouring ctx.
	Delay time.Duration
	// Err is returned by the factory itself.
	Err error
	// Active counts chat calls in flight across all agents.
	Active Gauge

	created atomic.Int64
	mu      sync.Mutex
	params  []map[string]any
}

// NewAgentFactory returns a factory with failure injection disabled.
func NewAgentFactory() *AgentFactory {
	return &AgentFactory{FailRun: -1}
}

// Created returns the number of agents constructed so far.
func (f *AgentFactory) Created() int { return int(f.created.Load()) }

// Params returns the parameter maps passed to the factory.
func (f *AgentFactory) Params() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.params...)
}

// Factory returns the core.AgentFactory.
func (f *AgentFactory) Factory() core.AgentFactory {
	return func(ctx context.Context, params map[string]any) (core.Agent, error) {
		if f.Err != nil {
			return nil, f.Err
		}
		f.created.Add(1)
		f.mu.Lock()
		f.params = append(f.params, params)
		f.mu.Unlock()
		return &fakeAgent{f: f}, nil
	}
}

type fakeAgent struct {
	f     *AgentFactory
	calls int
}

func (a *fakeAgent) Chat(ctx context.Context, prompt string, opts map[string]any) (string, error) {
	a.f.Active.Inc()
	defer a.f.Active.Dec()

	a.calls++
	injected := a.f.FailRun < 0 || core.RunIndexFromContext(ctx) == a.f.FailRun

	if a.f.Delay > 0 {
		select {
		case <-time.After(a.f.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if injected && a.calls == a.f.PanicOnCall {
		panic(fmt.Sprintf("agent panic on call %d", a.calls))
	}
	if injected && a.calls == a.f.FailOnCall {
		return "", fmt.Errorf("provider error on call %d", a.calls)
	}

	if a.f.Reply != nil {
		return a.f.Reply(prompt, opts), nil
	}
	return "reply to: " + prompt, nil
}

// PersonaFactory builds scripted personas that reply Replies times and then
// end the conversation. It counts personas and utterances.
type PersonaFactory struct {
	Replies int
	// FailOnTurn makes the persona fail at this turn index (-1 disables).
	FailOnTurn int

	created    atomic.Int64
	utterances atomic.Int64
}

// NewPersonaFactory returns a persona factory replying n times.
func NewPersonaFactory(n int) *PersonaFactory {
	return &PersonaFactory{Replies: n, FailOnTurn: -1}
}

// Created returns the number of personas constructed so far.
func (f *PersonaFactory) Created() int { return int(f.created.Load()) }

// Utterances returns how many non-ending utterances were produced.
func (f *PersonaFactory) Utterances() int { return int(f.utterances.Load()) }

// Factory returns the core.PersonaFactory.
func (f *PersonaFactory) Factory() core.PersonaFactory {
	return func(context.Context, int) (core.Persona, error) {
		f.created.Add(1)
		return core.PersonaFunc(func(_ context.Context, req core.PersonaRequest) (core.Utterance, error) {
			if req.TurnIndex == f.FailOnTurn {
				return core.Utterance{}, fmt.Errorf("persona unavailable at turn %d", req.TurnIndex)
			}
			spoken := req.Transcript.CountRole(core.RolePersona)
			if spoken >= f.Replies {
				return core.EndConversation, nil
			}
			f.utterances.Add(1)
			return core.Utterance{Text: fmt.Sprintf("run %d question %d", req.RunIndex, spoken+1)}, nil
		}), nil
	}
}
