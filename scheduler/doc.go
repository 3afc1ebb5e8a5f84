// Package scheduler fans a SimulationConfig out into independent
// conversation runs with bounded concurrency and aggregates their outcomes
// into a single core.SimulationReport.
//
// Only configuration errors are returned from Run. Every other failure is
// captured on the affected run's report entry, so the report always lists
// every requested run index with an explicit status.
package scheduler
