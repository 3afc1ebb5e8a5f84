// Package core provides the foundational domain types and collaborator
// contracts used by agentsim. It defines:
//
//   - SimulationConfig (immutable input of a scheduling run)
//   - RunHandle / RunResult (per-run lifecycle and outcome)
//   - Turn / Transcript (the ordered conversation of one run)
//   - TraceEvent / ToolEvent (the execution trace captured during runs)
//   - SimulationReport (the aggregated, serializable output)
//   - Agent / Persona contracts and their per-run factories
//   - The error taxonomy shared by scheduler, driver and recorders
//
// The package intentionally keeps implementation concerns (scheduling,
// tracing, concrete agents) out of scope, exposing small interfaces so that
// the scheduler can drive any chat-capable agent under any persona policy.
package core
