package provider

// Pipeline represents a parsed set of workflows from a provider.
type Pipeline struct {
	Provider  string     `json:"provider"`
	Workflows []Workflow `json:"workflows"`
	Warnings  []Warning  `json:"warnings"`
}

// Warning captures non-fatal issues encountered while parsing workflows.
type Warning struct {
	Workflow string `json:"workflow"`
	Job      string `json:"job"`
	Message  string `json:"message"`
}

// Event kinds a workflow may declare under `on:`.
const (
	EventPush             = "push"
	EventPullRequest      = "pull_request"
	EventWorkflowDispatch = "workflow_dispatch"
)

// Workflow mirrors a GitHub Actions workflow file.
type Workflow struct {
	Path     string            `json:"path"`
	Name     string            `json:"name"`
	Triggers []TriggerRule     `json:"triggers,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
	Defaults Defaults          `json:"defaults"`
	Jobs     []Job             `json:"jobs"`
}

// TriggerRule gates runs for one event kind by branch and changed-path globs.
type TriggerRule struct {
	Event          string   `json:"event"`
	Branches       []string `json:"branches,omitempty"`
	BranchesIgnore []string `json:"branches_ignore,omitempty"`
	Paths          []string `json:"paths,omitempty"`
	PathsIgnore    []string `json:"paths_ignore,omitempty"`
}

// Defaults capture shared configuration for jobs and steps.
type Defaults struct {
	RunShell         string `json:"run_shell,omitempty"`
	WorkingDirectory string `json:"working_directory,omitempty"`
}

// Job represents a GitHub Actions job with resolved steps.
type Job struct {
	Name           string            `json:"name"`
	RawID          string            `json:"id"`
	Env            map[string]string `json:"env,omitempty"`
	Defaults       Defaults          `json:"defaults"`
	Steps          []Step            `json:"steps"`
	Matrix         Matrix            `json:"matrix"`
	TimeoutMinutes int               `json:"timeout_minutes,omitempty"`
}

// Matrix declares the axes a job is expanded over.
type Matrix struct {
	Axes    []Axis              `json:"axes,omitempty"`
	Include []map[string]string `json:"include,omitempty"`
	Exclude []map[string]string `json:"exclude,omitempty"`
}

// Empty reports whether the matrix declares nothing.
func (m Matrix) Empty() bool {
	return len(m.Axes) == 0 && len(m.Include) == 0 && len(m.Exclude) == 0
}

// Axis is a named dimension with its values in declaration order.
type Axis struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Step represents an individual GitHub Actions workflow step.
type Step struct {
	Name             string            `json:"name"`
	Run              string            `json:"run,omitempty"`
	Uses             string            `json:"uses,omitempty"`
	With             map[string]string `json:"with,omitempty"`
	Shell            string            `json:"shell,omitempty"`
	WorkingDirectory string            `json:"working_directory,omitempty"`
	Env              map[string]string `json:"env,omitempty"`
	If               string            `json:"if,omitempty"`
}

// Label returns the name shown for the step, falling back to its command or action.
func (s Step) Label() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Run != "":
		return s.Run
	default:
		return s.Uses
	}
}
