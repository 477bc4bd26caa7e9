package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bgricker/matrixrun/internal/provider"
	"github.com/bgricker/matrixrun/internal/report"
)

func (r *Runner) runStep(ctx context.Context, inst Instance, i int, step provider.Step, logger *slog.Logger) (result report.StepResult) {
	result = report.StepResult{
		InstanceID: inst.ID,
		Index:      i + 1,
		StepName:   step.Name,
		StepRun:    step.Run,
		StepUses:   step.Uses,
		DryRun:     r.opts.DryRun,
	}

	if r.opts.DryRun {
		result.Status = report.StepSkipped
		return result
	}

	start := r.opts.Now()
	defer func() {
		result.Duration = r.opts.Now().Sub(start)
		result.DurationMS = result.Duration.Milliseconds()
	}()

	if step.Uses != "" {
		outcome := r.opts.Actions.Run(ctx, ActionRequest{Uses: step.Uses, With: step.With, Root: r.opts.Root})
		result.Status = outcome.Status
		result.Note = outcome.Note
		logger.Debug("action step", "uses", step.Uses, "status", outcome.Status, "note", outcome.Note)
		return result
	}

	if msg, skip := shouldSkipStep(step.Run, r.opts); skip {
		result.Status = report.StepSkipped
		result.Note = msg
		return result
	}

	err := r.execStep(ctx, inst, step, &result, logger)
	switch {
	case err == nil:
		result.Status = report.StepPassed
	case errors.Is(err, context.DeadlineExceeded):
		result.Status = report.StepTimedOut
	case errors.Is(err, context.Canceled):
		result.Status = report.StepCancelled
	default:
		result.Status = report.StepFailed
	}
	if result.Status != report.StepPassed {
		result.Stderr = tailLines(result.Stderr, r.opts.TailLines)
		result.Stdout = tailLines(result.Stdout, r.opts.TailLines)
	}
	return result
}

// execStep runs a shell step and enforces ctx itself: on expiry the step's
// process group gets SIGTERM, then SIGKILL once the grace period lapses.
func (r *Runner) execStep(ctx context.Context, inst Instance, step provider.Step, result *report.StepResult, logger *slog.Logger) error {
	wf, job := inst.Workflow, inst.Job
	env := mergeEnv(r.opts.Env, wf.Env, job.Env, step.Env)
	invocation, err := buildCommand(step, job, wf, env)
	if err != nil {
		result.Stderr = err.Error()
		result.ExitCode = 127
		return err
	}
	defer invocation.cleanup()
	cmdArgs := invocation.args

	workingDir, err := resolveWorkingDirectory(r.opts.Root, wf, job, step)
	if err != nil {
		result.Stderr = err.Error()
		result.ExitCode = 127
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)
	cmd.Dir = workingDir
	cmd.Env = env
	cmd.WaitDelay = r.opts.GracePeriod
	setProcessGroup(cmd)

	var stdoutBuf, stderrBuf bytes.Buffer
	var outLines, errLines *lineWriter
	if r.opts.Verbose {
		outLines = &lineWriter{mu: &r.outMu, out: r.opts.Stdout, prefix: inst.Name}
		errLines = &lineWriter{mu: &r.outMu, out: r.opts.Stderr, prefix: inst.Name}
		cmd.Stdout = io.MultiWriter(outLines, &stdoutBuf)
		cmd.Stderr = io.MultiWriter(errLines, &stderrBuf)
	} else {
		cmd.Stdout = &stdoutBuf
		cmd.Stderr = &stderrBuf
	}

	logger.Debug("starting step", "step", step.Label(), "dir", workingDir)
	if err := cmd.Start(); err != nil {
		result.Stderr = err.Error()
		result.ExitCode = 127
		return fmt.Errorf("start step: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	collect := func() {
		if outLines != nil {
			outLines.Flush()
			errLines.Flush()
		}
		result.Stdout = stdoutBuf.String()
		result.Stderr = stderrBuf.String()
	}

	select {
	case <-ctx.Done():
		logger.Warn("step interrupted, sending SIGTERM", "step", step.Label(), "cause", ctx.Err())
		if err := terminate(cmd); err != nil {
			logger.Error("failed to send SIGTERM", "error", err)
		}

		grace := time.NewTimer(r.opts.GracePeriod)
		defer grace.Stop()

		select {
		case <-waitErr:
		case <-grace.C:
			logger.Warn("step did not exit after SIGTERM, sending SIGKILL", "step", step.Label())
			if err := kill(cmd); err != nil {
				logger.Error("failed to send SIGKILL", "error", err)
			}
			<-waitErr
		}
		collect()
		result.ExitCode = -1
		return ctx.Err()

	case err := <-waitErr:
		collect()
		result.ExitCode = exitCode(err)
		return err
	}
}

// lineWriter prefixes each complete line with the instance name so output from
// parallel instances stays readable.
type lineWriter struct {
	mu     *sync.Mutex
	out    io.Writer
	prefix string
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			return len(p), nil
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
}

// Flush writes any trailing partial line.
func (w *lineWriter) Flush() {
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *lineWriter) emit(line []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, "[%s] %s\n", w.prefix, line)
}

func resolveWorkingDirectory(root string, wf provider.Workflow, job provider.Job, step provider.Step) (string, error) {
	candidates := []string{step.WorkingDirectory, job.Defaults.WorkingDirectory, wf.Defaults.WorkingDirectory}
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}

		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(root, candidate)
		}
		info, err := os.Stat(candidate)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("working directory %q not found", candidate)
			}
			return "", fmt.Errorf("stat working directory %q: %w", candidate, err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("working directory %q is not a directory", candidate)
		}
		return candidate, nil
	}
	if root == "" {
		var err error
		root, err = os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determine working directory: %w", err)
		}
	}
	return root, nil
}

func mergeEnv(base []string, overlays ...map[string]string) []string {
	envMap := make(map[string]string, len(base)+len(overlays)*4)
	for _, kv := range base {
		if idx := strings.Index(kv, "="); idx != -1 {
			key := kv[:idx]
			envMap[key] = kv[idx+1:]
		}
	}
	for _, overlay := range overlays {
		for k, v := range overlay {
			envMap[k] = v
		}
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, envMap[k]))
	}
	return out
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(interface{ ExitStatus() int }); ok {
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}
	return 1
}

func tailLines(input string, maxLines int) string {
	if input == "" {
		return ""
	}
	lines := strings.Split(strings.TrimRight(input, "\n"), "\n")
	if len(lines) <= maxLines {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-maxLines:], "\n")
}

func shouldSkipStep(script string, opts Options) (string, bool) {
	if opts.AllowPrivileged {
		return "", false
	}
	for _, pattern := range opts.PrivilegedPatterns {
		if pattern == "" {
			continue
		}
		matched, err := regexp.MatchString(pattern, script)
		if err != nil {
			continue
		}
		if matched {
			return fmt.Sprintf("skipped privileged command matching pattern %q; set allow_privileged or pass --allow-privileged to run", pattern), true
		}
	}
	return "", false
}

// DefaultPrivilegedPatterns lists commands that need elevated rights or mutate
// the host toolchain.
func DefaultPrivilegedPatterns() []string {
	return []string{
		`(?i)^sudo\b`,                  // sudo commands
		`(?i)\bapt-get\b`,              // Debian/Ubuntu package manager
		`(?i)\bapt\b`,                  // Modern apt command
		`(?i)\byum\b`,                  // Red Hat package manager
		`(?i)\bdnf\b`,                  // Fedora package manager
		`(?i)\bzypper\b`,               // SUSE package manager
		`(?i)\bpacman\b`,               // Arch package manager
		`(?i)\bbrew\b`,                 // macOS package manager (can require sudo)
		`(?i)\bchoco\b`,                // Windows package manager
		`(?i)\bwinget\b`,               // Windows package manager
		`(?i)\bpip\s+install\s+--user`, // pip install --user (can require sudo)
		`(?i)\bnpm\s+install\s+-g`,     // npm install -g (can require sudo)
		`(?i)\byarn\s+global`,          // yarn global (can require sudo)
	}
}
