// Package testutil contains fakes and gauges used across tests to drive the
// scheduler and driver without real models: agent factories with failure
// injection, scripted persona factories and concurrency gauges. They are not
// intended for production usage.
package testutil
