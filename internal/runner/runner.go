package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bgricker/matrixrun/internal/log"
	"github.com/bgricker/matrixrun/internal/provider"
	"github.com/bgricker/matrixrun/internal/report"
)

// ErrPipelineFailed is returned by callers when at least one instance failed,
// timed out or was cancelled.
var ErrPipelineFailed = errors.New("one or more job instances failed")

// ErrNoSteps reports a job that has nothing to execute.
var ErrNoSteps = errors.New("job has no steps")

const (
	// defaultJobTimeout matches the hosted runner default of 360 minutes.
	defaultJobTimeout = 360 * time.Minute

	// defaultGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	defaultGracePeriod = 5 * time.Second
)

// Options configure how the runner executes job instances.
type Options struct {
	Root               string
	Stdout             io.Writer
	Stderr             io.Writer
	Verbose            bool
	DryRun             bool
	TailLines          int
	Env                []string
	Now                func() time.Time
	AllowPrivileged    bool
	PrivilegedPatterns []string
	Parallelism        int
	DefaultTimeout     time.Duration
	GracePeriod        time.Duration
	Matrix             map[string]string
	Event              report.Event
	Actions            *ActionRegistry
	Observer           Observer
	Logger             *slog.Logger
	NewID              func() string
}

// Runner plans job instances and executes them.
type Runner struct {
	opts  Options
	outMu sync.Mutex
}

// New creates a runner with the supplied options.
func New(opts Options) *Runner {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.TailLines <= 0 {
		opts.TailLines = 20
	}
	if opts.Env == nil {
		opts.Env = os.Environ()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(opts.PrivilegedPatterns) == 0 {
		opts.PrivilegedPatterns = DefaultPrivilegedPatterns()
	}
	opts.PrivilegedPatterns = append([]string{}, opts.PrivilegedPatterns...)
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = defaultJobTimeout
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = defaultGracePeriod
	}
	if opts.Actions == nil {
		opts.Actions = DefaultActions()
	}
	if opts.Observer == nil {
		opts.Observer = Observers(nil)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithComponent("runner")
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	return &Runner{opts: opts}
}

// Run plans and executes workflows. Planning errors abort before any instance starts.
func (r *Runner) Run(ctx context.Context, workflows []provider.Workflow) (report.Run, error) {
	instances, err := r.Plan(workflows)
	if err != nil {
		return report.Run{}, err
	}
	return r.Execute(ctx, workflows, instances), nil
}

// Execute runs planned instances with at most Parallelism running at once.
// Each instance writes only its own result slot.
func (r *Runner) Execute(ctx context.Context, workflows []provider.Workflow, instances []Instance) report.Run {
	run := report.Run{
		ID:          r.opts.NewID(),
		Event:       r.opts.Event,
		Fingerprint: Fingerprint(workflows),
		StartedAt:   r.opts.Now(),
	}
	logger := r.opts.Logger.With(slog.String("run_id", run.ID))
	logger.Info("run started", "instances", len(instances), "parallelism", r.opts.Parallelism)

	results := make([]report.InstanceResult, len(instances))
	var g errgroup.Group
	g.SetLimit(r.opts.Parallelism)
	for i, inst := range instances {
		g.Go(func() error {
			results[i] = r.runInstance(ctx, inst, logger)
			return nil
		})
	}
	_ = g.Wait()

	summary := report.Summary{TotalWorkflows: len(workflows)}
	for _, wf := range workflows {
		summary.TotalJobs += len(wf.Jobs)
	}
	summary = report.Summarize(summary, results)
	summary.Duration = r.opts.Now().Sub(run.StartedAt)
	summary.DurationMS = summary.Duration.Milliseconds()

	run.Instances = results
	run.Summary = summary
	run.Status = report.StatusFor(summary)
	logger.Info("run finished", "status", run.Status, "duration", summary.Duration)
	return run
}

func (r *Runner) runInstance(ctx context.Context, inst Instance, runLogger *slog.Logger) report.InstanceResult {
	logger := log.WithInstance(runLogger, inst.ID).With(slog.String("instance", inst.Name))
	start := r.opts.Now()
	res := report.InstanceResult{
		ID:           inst.ID,
		WorkflowPath: inst.Workflow.Path,
		WorkflowName: inst.Workflow.Name,
		JobID:        inst.Job.RawID,
		JobName:      inst.Job.Name,
		Name:         inst.Name,
		Matrix:       matrixValues(inst),
		Status:       report.InstanceSucceeded,
		Timeout:      inst.Timeout,
		TimeoutMS:    inst.Timeout.Milliseconds(),
		Steps:        make([]report.StepResult, 0, len(inst.Job.Steps)),
		Warnings:     inst.Warnings,
	}
	r.opts.Observer.InstanceStarted(inst)
	logger.Info("instance started", "timeout", inst.Timeout)

	ictx, cancel := context.WithTimeout(ctx, inst.Timeout)
	defer cancel()

	stopped := false
	for i, step := range inst.Job.Steps {
		if !stopped && ictx.Err() != nil {
			r.markInterrupted(ctx, &res, i, step.Label())
			stopped = true
		}
		if stopped {
			res.Steps = append(res.Steps, skippedStep(inst, i, step, r.opts.DryRun))
			continue
		}

		sr := r.runStep(ictx, inst, i, step, logger)
		res.Steps = append(res.Steps, sr)
		r.opts.Observer.StepFinished(inst, sr)

		switch sr.Status {
		case report.StepFailed:
			res.Status = report.InstanceFailed
			res.FailedStep = i + 1
			res.FailedStepName = step.Label()
			res.Reason = failedReason(i+1, step.Label(), sr.ExitCode)
			stopped = true
		case report.StepTimedOut, report.StepCancelled:
			r.markInterrupted(ctx, &res, i, step.Label())
			stopped = true
		}
	}

	if r.opts.DryRun && res.Status == report.InstanceSucceeded {
		res.Status = report.InstanceSkipped
		res.Reason = "dry run"
	}

	res.Duration = r.opts.Now().Sub(start)
	res.DurationMS = res.Duration.Milliseconds()
	r.opts.Observer.InstanceFinished(inst, res)

	attrs := []any{"status", res.Status, "duration", res.Duration}
	if res.Reason != "" {
		attrs = append(attrs, "reason", res.Reason)
	}
	if res.Ok() {
		logger.Info("instance finished", attrs...)
	} else {
		logger.Warn("instance finished", attrs...)
	}
	return res
}

// markInterrupted records a deadline or parent cancellation hit at step index i.
// The parent context decides: a cancelled parent is a cancellation, otherwise
// the instance's own deadline expired.
func (r *Runner) markInterrupted(parent context.Context, res *report.InstanceResult, i int, label string) {
	if parent.Err() != nil {
		res.Status = report.InstanceCancelled
		res.Reason = fmt.Sprintf("cancelled during step %d (%s)", i+1, label)
		return
	}
	res.Status = report.InstanceTimedOut
	res.Reason = fmt.Sprintf("timed out after %s during step %d (%s)", res.Timeout, i+1, label)
}

func skippedStep(inst Instance, i int, step provider.Step, dryRun bool) report.StepResult {
	return report.StepResult{
		InstanceID: inst.ID,
		Index:      i + 1,
		StepName:   step.Name,
		StepRun:    step.Run,
		StepUses:   step.Uses,
		Status:     report.StepSkipped,
		DryRun:     dryRun,
	}
}

func failedReason(k int, label string, exitCode int) string {
	return fmt.Sprintf("failed at step %d (%s), exit code %d", k, label, exitCode)
}

func matrixValues(inst Instance) []report.MatrixValue {
	if len(inst.Assignment) == 0 {
		return nil
	}
	out := make([]report.MatrixValue, 0, len(inst.Assignment))
	for _, p := range inst.Assignment {
		out = append(out, report.MatrixValue{Axis: p.Axis, Value: p.Value})
	}
	return out
}
