package output

import (
	"github.com/bgricker/matrixrun/internal/provider"
	"github.com/bgricker/matrixrun/internal/report"
	"github.com/bgricker/matrixrun/internal/runner"
	"github.com/bgricker/matrixrun/internal/trigger"
)

// ListReport describes what a run would execute without running anything.
type ListReport struct {
	Provider  string         `json:"provider"`
	Event     *trigger.Event `json:"event,omitempty"`
	Workflows []ListWorkflow `json:"workflows"`
	Warnings  []string       `json:"warnings,omitempty"`
}

// ListWorkflow is one workflow and the instances planned for it.
type ListWorkflow struct {
	Path      string         `json:"path"`
	Name      string         `json:"name"`
	Triggered bool           `json:"triggered"`
	Reason    string         `json:"reason,omitempty"`
	Instances []ListInstance `json:"instances,omitempty"`
}

// ListInstance is one planned job instance.
type ListInstance struct {
	ID        string               `json:"id"`
	Job       string               `json:"job"`
	Name      string               `json:"name"`
	Matrix    []report.MatrixValue `json:"matrix,omitempty"`
	TimeoutMS int64                `json:"timeout_ms"`
	Steps     []string             `json:"steps"`
}

// BuildList groups planned instances under their workflows. Workflows missing
// from decisions are reported as triggered.
func BuildList(providerName string, ev *trigger.Event, workflows []provider.Workflow, decisions map[string]trigger.Decision, instances []runner.Instance, warnings []string) ListReport {
	list := ListReport{Provider: providerName, Event: ev, Warnings: warnings}
	index := make(map[string]int, len(workflows))
	for _, wf := range workflows {
		entry := ListWorkflow{Path: wf.Path, Name: wf.Name, Triggered: true}
		if d, ok := decisions[wf.Path]; ok {
			entry.Triggered = d.Run
			entry.Reason = d.Reason
		}
		index[wf.Path] = len(list.Workflows)
		list.Workflows = append(list.Workflows, entry)
	}
	for _, inst := range instances {
		i, ok := index[inst.Workflow.Path]
		if !ok {
			continue
		}
		li := ListInstance{
			ID:        inst.ID,
			Job:       inst.Job.RawID,
			Name:      inst.Name,
			TimeoutMS: inst.Timeout.Milliseconds(),
			Steps:     make([]string, 0, len(inst.Job.Steps)),
		}
		for _, p := range inst.Assignment {
			li.Matrix = append(li.Matrix, report.MatrixValue{Axis: p.Axis, Value: p.Value})
		}
		for _, step := range inst.Job.Steps {
			li.Steps = append(li.Steps, step.Label())
		}
		list.Workflows[i].Instances = append(list.Workflows[i].Instances, li)
	}
	return list
}
