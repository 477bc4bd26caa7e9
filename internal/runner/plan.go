package runner

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bgricker/matrixrun/internal/expr"
	"github.com/bgricker/matrixrun/internal/matrix"
	"github.com/bgricker/matrixrun/internal/provider"
)

// Instance is one job bound to one matrix assignment, with every step
// resolved against that assignment.
type Instance struct {
	ID         string
	Workflow   provider.Workflow
	Job        provider.Job
	Assignment matrix.Assignment
	Name       string
	Timeout    time.Duration
	Warnings   []string
}

// Plan expands every job of workflows into instances. Jobs without steps,
// invalid matrices and unparsable expressions fail the whole plan before
// anything runs.
func (r *Runner) Plan(workflows []provider.Workflow) ([]Instance, error) {
	var out []Instance
	for _, wf := range workflows {
		for _, job := range wf.Jobs {
			if len(job.Steps) == 0 {
				return nil, fmt.Errorf("%s: job %s: %w", wf.Path, job.RawID, ErrNoSteps)
			}
			assignments, err := matrix.Expand(job.Matrix)
			if err != nil {
				return nil, fmt.Errorf("%s: job %s: %w", wf.Path, job.RawID, err)
			}
			for _, a := range assignments {
				if !a.Matches(r.opts.Matrix) {
					continue
				}
				inst, err := r.resolve(wf, job, a)
				if err != nil {
					return nil, fmt.Errorf("%s: job %s: %w", wf.Path, job.RawID, err)
				}
				out = append(out, inst)
			}
		}
	}
	return out, nil
}

func (r *Runner) resolve(wf provider.Workflow, job provider.Job, a matrix.Assignment) (Instance, error) {
	values := a.Map()
	if values == nil {
		values = map[string]string{}
	}
	ctx := expr.Context{"matrix": values, "env": map[string]string{}}
	eval := expr.New(ctx)

	wfEnv, err := eval.InterpolateMap(wf.Env)
	if err != nil {
		return Instance{}, fmt.Errorf("env: %w", err)
	}
	jobEnv, err := eval.InterpolateMap(job.Env)
	if err != nil {
		return Instance{}, fmt.Errorf("env: %w", err)
	}
	for k, v := range wfEnv {
		ctx["env"][k] = v
	}
	for k, v := range jobEnv {
		ctx["env"][k] = v
	}

	name := job.Name
	if name == "" {
		name = job.RawID
	}
	templated := strings.Contains(name, "${{")
	if name, err = eval.Interpolate(name); err != nil {
		return Instance{}, fmt.Errorf("name: %w", err)
	}
	display := name
	if len(a) > 0 && !templated {
		display = fmt.Sprintf("%s (%s)", name, a.Label())
	}

	resolvedJob := job
	resolvedJob.Name = name
	resolvedJob.Env = jobEnv
	resolvedJob.Steps = make([]provider.Step, 0, len(job.Steps))
	for i, step := range job.Steps {
		resolved, err := resolveStep(eval, step)
		if err != nil {
			return Instance{}, fmt.Errorf("step %d: %w", i+1, err)
		}
		resolvedJob.Steps = append(resolvedJob.Steps, resolved)
	}

	resolvedWf := wf
	resolvedWf.Env = wfEnv

	timeout := r.opts.DefaultTimeout
	if job.TimeoutMinutes > 0 {
		timeout = time.Duration(job.TimeoutMinutes) * time.Minute
	}

	return Instance{
		ID:         instanceID(wf.Path, job.RawID, a),
		Workflow:   resolvedWf,
		Job:        resolvedJob,
		Assignment: a,
		Name:       display,
		Timeout:    timeout,
		Warnings:   eval.Warnings(),
	}, nil
}

func resolveStep(eval *expr.Evaluator, step provider.Step) (provider.Step, error) {
	var err error
	out := step
	if out.Name, err = eval.Interpolate(step.Name); err != nil {
		return out, fmt.Errorf("name: %w", err)
	}
	if out.Run, err = eval.Interpolate(step.Run); err != nil {
		return out, fmt.Errorf("run: %w", err)
	}
	if out.WorkingDirectory, err = eval.Interpolate(step.WorkingDirectory); err != nil {
		return out, fmt.Errorf("working-directory: %w", err)
	}
	if out.With, err = eval.InterpolateMap(step.With); err != nil {
		return out, fmt.Errorf("with: %w", err)
	}
	if out.Env, err = eval.InterpolateMap(step.Env); err != nil {
		return out, fmt.Errorf("env: %w", err)
	}
	return out, nil
}

// instanceID is stable across runs for the same workflow, job and assignment.
func instanceID(path, jobID string, a matrix.Assignment) string {
	var b strings.Builder
	b.WriteString(path)
	b.WriteByte(0)
	b.WriteString(jobID)
	for _, p := range a {
		b.WriteByte(0)
		b.WriteString(p.Axis)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	sum := blake3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:6])
}

// Fingerprint identifies a set of workflow definitions so history can tell
// whether two runs executed the same pipeline.
func Fingerprint(workflows []provider.Workflow) string {
	data, err := json.Marshal(workflows)
	if err != nil {
		return ""
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
