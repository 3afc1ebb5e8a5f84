// Package agent provides ModelAgent, a conversational agent backed by a
// model.Model that can call tools while answering a chat turn.
//
// A ModelAgent keeps the conversation history of exactly one simulation
// run. Use NewFactory to obtain a core.AgentFactory that builds a fresh
// agent for every run.
//
// Every model step is bounded by a core.StepLimiter. Tool calls requested
// by the model are recorded as phased tool events through the recorder
// attached to the call context, and model calls are traced when the context
// carries a trace.Tracer.
package agent
