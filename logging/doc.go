// Package logging provides a minimal logging interface and adapters for agentsim.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the scheduler, driver, tracer and recorder use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - SimLogger with run-scoped context and simulation specific helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	sched := scheduler.New(agentFactory, personaFactory, func(o *scheduler.Options) {
//		o.Logger = logger
//	})
package logging
