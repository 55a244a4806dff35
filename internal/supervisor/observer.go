package supervisor

import "github.com/charliek/minerd/internal/domain"

// Observer is notified of loop events. Calls are made synchronously from the
// supervisor goroutine and must not block.
type Observer interface {
	StateChanged(from, to domain.State)
	WorkerStarted(run domain.RunInfo)
	WorkerExited(run domain.RunInfo)
	SpawnFailed(err error)
	UpdateChecked(updated bool, err error)
}

// NopObserver implements Observer with no-ops; embed it to handle a subset.
type NopObserver struct{}

func (NopObserver) StateChanged(domain.State, domain.State) {}
func (NopObserver) WorkerStarted(domain.RunInfo)            {}
func (NopObserver) WorkerExited(domain.RunInfo)             {}
func (NopObserver) SpawnFailed(error)                       {}
func (NopObserver) UpdateChecked(bool, error)               {}

type observers []Observer

func (o observers) StateChanged(from, to domain.State) {
	for _, obs := range o {
		obs.StateChanged(from, to)
	}
}

func (o observers) WorkerStarted(run domain.RunInfo) {
	for _, obs := range o {
		obs.WorkerStarted(run)
	}
}

func (o observers) WorkerExited(run domain.RunInfo) {
	for _, obs := range o {
		obs.WorkerExited(run)
	}
}

func (o observers) SpawnFailed(err error) {
	for _, obs := range o {
		obs.SpawnFailed(err)
	}
}

func (o observers) UpdateChecked(updated bool, err error) {
	for _, obs := range o {
		obs.UpdateChecked(updated, err)
	}
}
