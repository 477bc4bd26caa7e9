package runner

import "github.com/bgricker/matrixrun/internal/report"

// Observer receives progress while instances run. Instances run concurrently,
// so implementations must be safe for concurrent use.
type Observer interface {
	InstanceStarted(inst Instance)
	StepFinished(inst Instance, step report.StepResult)
	InstanceFinished(inst Instance, result report.InstanceResult)
}

// Observers fans events out to each observer in order.
type Observers []Observer

func (o Observers) InstanceStarted(inst Instance) {
	for _, obs := range o {
		obs.InstanceStarted(inst)
	}
}

func (o Observers) StepFinished(inst Instance, step report.StepResult) {
	for _, obs := range o {
		obs.StepFinished(inst, step)
	}
}

func (o Observers) InstanceFinished(inst Instance, result report.InstanceResult) {
	for _, obs := range o {
		obs.InstanceFinished(inst, result)
	}
}
