package core

import "time"

// RunStatus is the lifecycle state of a single simulation run.
type RunStatus string

const (
	// RunPending marks a run that has been assigned an index but not admitted.
	RunPending RunStatus = "pending"
	// RunRunning marks a run holding an admission slot.
	RunRunning RunStatus = "running"
	// RunCompleted marks a run whose driver returned a transcript. Runs whose
	// conversation ended with an error are still completed.
	RunCompleted RunStatus = "completed"
	// RunFailed marks a run that produced no transcript (for example because
	// it was never admitted before cancellation).
	RunFailed RunStatus = "failed"
)

// RunHandle tracks the lifecycle of one dispatched run. It is created by the
// scheduler and only mutated by the scheduler and the owning driver.
type RunHandle struct {
	RunIndex   int        `json:"run_index"`
	RunID      string     `json:"run_id"`
	Status     RunStatus  `json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewRunHandle creates a pending handle for the given run index.
func NewRunHandle(runIndex int) *RunHandle {
	return &RunHandle{RunIndex: runIndex, RunID: NewID(), Status: RunPending}
}

// MarkRunning records admission of the run.
func (h *RunHandle) MarkRunning(at time.Time) {
	h.Status = RunRunning
	h.StartedAt = &at
}

// MarkFinished records the final status of the run.
func (h *RunHandle) MarkFinished(status RunStatus, at time.Time) {
	h.Status = status
	h.FinishedAt = &at
}

// Info returns the identity of the run for context propagation.
func (h *RunHandle) Info() RunInfo {
	return RunInfo{RunIndex: h.RunIndex, RunID: h.RunID}
}

// RunResult is what a driver hands back to the scheduler once a run is done.
// Ownership of the transcript transfers to the aggregator (read-only).
type RunResult struct {
	Handle     RunHandle  `json:"handle"`
	Transcript Transcript `json:"transcript"`
}
