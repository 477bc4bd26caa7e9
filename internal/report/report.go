package report

import "time"

// Step statuses.
const (
	StepPassed    = "passed"
	StepFailed    = "failed"
	StepSkipped   = "skipped"
	StepTimedOut  = "timed_out"
	StepCancelled = "cancelled"
)

// Instance statuses.
const (
	InstanceSucceeded = "succeeded"
	InstanceFailed    = "failed"
	InstanceTimedOut  = "timed_out"
	InstanceCancelled = "cancelled"
	InstanceSkipped   = "skipped"
)

// Run statuses.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// StepResult captures the outcome of a single step.
type StepResult struct {
	InstanceID string        `json:"instance_id"`
	Index      int           `json:"index"`
	StepName   string        `json:"step_name"`
	StepRun    string        `json:"step_run,omitempty"`
	StepUses   string        `json:"step_uses,omitempty"`
	Status     string        `json:"status"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	Stdout     string        `json:"stdout,omitempty"`
	Stderr     string        `json:"stderr,omitempty"`
	ExitCode   int           `json:"exit_code"`
	Note       string        `json:"note,omitempty"`
	DryRun     bool          `json:"dry_run"`
}

// Label returns the name shown for the step.
func (s StepResult) Label() string {
	switch {
	case s.StepName != "":
		return s.StepName
	case s.StepRun != "":
		return s.StepRun
	default:
		return s.StepUses
	}
}

// MatrixValue is one axis assignment of an instance.
type MatrixValue struct {
	Axis  string `json:"axis"`
	Value string `json:"value"`
}

// InstanceResult captures the outcome of one job instance.
type InstanceResult struct {
	ID             string        `json:"id"`
	WorkflowPath   string        `json:"workflow_path"`
	WorkflowName   string        `json:"workflow_name"`
	JobID          string        `json:"job_id"`
	JobName        string        `json:"job_name"`
	Name           string        `json:"name"`
	Matrix         []MatrixValue `json:"matrix,omitempty"`
	Status         string        `json:"status"`
	FailedStep     int           `json:"failed_step,omitempty"`
	FailedStepName string        `json:"failed_step_name,omitempty"`
	Reason         string        `json:"reason,omitempty"`
	Timeout        time.Duration `json:"-"`
	TimeoutMS      int64         `json:"timeout_ms"`
	Duration       time.Duration `json:"-"`
	DurationMS     int64         `json:"duration_ms"`
	Steps          []StepResult  `json:"steps"`
	Warnings       []string      `json:"warnings,omitempty"`
}

// Ok reports whether the instance did not break the pipeline.
func (r InstanceResult) Ok() bool {
	return r.Status == InstanceSucceeded || r.Status == InstanceSkipped
}

// Summary aggregates pipeline execution results.
type Summary struct {
	TotalWorkflows int           `json:"total_workflows"`
	TotalJobs      int           `json:"total_jobs"`
	TotalInstances int           `json:"total_instances"`
	TotalSteps     int           `json:"total_steps"`
	Passed         int           `json:"passed"`
	Failed         int           `json:"failed"`
	TimedOut       int           `json:"timed_out"`
	Cancelled      int           `json:"cancelled"`
	Skipped        int           `json:"skipped"`
	Duration       time.Duration `json:"-"`
	DurationMS     int64         `json:"duration_ms"`
	ExitCode       int           `json:"exit_code"`
}

// Event describes what started a run.
type Event struct {
	Kind         string   `json:"kind"`
	Branch       string   `json:"branch,omitempty"`
	ChangedPaths []string `json:"changed_paths,omitempty"`
}

// Run is the complete record of one pipeline execution.
type Run struct {
	ID          string           `json:"id"`
	Event       Event            `json:"event"`
	Fingerprint string           `json:"fingerprint"`
	StartedAt   time.Time        `json:"started_at"`
	Status      string           `json:"status"`
	Instances   []InstanceResult `json:"instances"`
	Summary     Summary          `json:"summary"`
}

// Summarize counts instance outcomes into s. Passed/Failed/TimedOut/Cancelled/Skipped
// count instances, TotalSteps counts steps.
func Summarize(s Summary, instances []InstanceResult) Summary {
	s.TotalInstances = len(instances)
	s.TotalSteps = 0
	s.Passed, s.Failed, s.TimedOut, s.Cancelled, s.Skipped = 0, 0, 0, 0, 0
	s.ExitCode = 0
	for _, inst := range instances {
		s.TotalSteps += len(inst.Steps)
		switch inst.Status {
		case InstanceSucceeded:
			s.Passed++
		case InstanceFailed:
			s.Failed++
		case InstanceTimedOut:
			s.TimedOut++
		case InstanceCancelled:
			s.Cancelled++
		case InstanceSkipped:
			s.Skipped++
		}
		if !inst.Ok() {
			s.ExitCode = 1
		}
	}
	return s
}

// StatusFor maps a summary to a run status.
func StatusFor(s Summary) string {
	if s.ExitCode != 0 {
		return RunFailed
	}
	return RunSucceeded
}
