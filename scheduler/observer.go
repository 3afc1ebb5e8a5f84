package scheduler

import "github.com/hupe1980/agentsim/core"

// Observer receives lifecycle callbacks for every run. Callbacks are invoked
// from the goroutine owning the run and must be safe for concurrent use.
// RunFinished is called while the run still holds its admission slot.
type Observer interface {
	RunAdmitted(handle core.RunHandle)
	RunFinished(result core.RunResult)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnAdmitted func(handle core.RunHandle)
	OnFinished func(result core.RunResult)
}

// RunAdmitted implements Observer.
func (o ObserverFuncs) RunAdmitted(handle core.RunHandle) {
	if o.OnAdmitted != nil {
		o.OnAdmitted(handle)
	}
}

// RunFinished implements Observer.
func (o ObserverFuncs) RunFinished(result core.RunResult) {
	if o.OnFinished != nil {
		o.OnFinished(result)
	}
}

type noopObserver struct{}

func (noopObserver) RunAdmitted(core.RunHandle) {}
func (noopObserver) RunFinished(core.RunResult) {}
