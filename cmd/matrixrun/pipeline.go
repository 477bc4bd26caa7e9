package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bgricker/matrixrun/internal/changes"
	"github.com/bgricker/matrixrun/internal/config"
	"github.com/bgricker/matrixrun/internal/discovery"
	"github.com/bgricker/matrixrun/internal/history"
	"github.com/bgricker/matrixrun/internal/log"
	"github.com/bgricker/matrixrun/internal/output"
	"github.com/bgricker/matrixrun/internal/provider"
	"github.com/bgricker/matrixrun/internal/provider/filter"
	githubprovider "github.com/bgricker/matrixrun/internal/provider/github"
	"github.com/bgricker/matrixrun/internal/report"
	"github.com/bgricker/matrixrun/internal/runner"
	"github.com/bgricker/matrixrun/internal/trigger"
	"github.com/bgricker/matrixrun/internal/version"
)

// pipelineData bundles parsed workflows with warnings and metadata.
type pipelineData struct {
	provider  string
	workflows []provider.Workflow
	warnings  []provider.Warning
	matrix    map[string]string
}

func loadConfig(cmd *cobra.Command) (config.Config, string, error) {
	root, err := os.Getwd()
	if err != nil {
		return config.Config{}, "", fmt.Errorf("determine working directory: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return config.Config{}, "", err
	}

	flags, err := gatherFlags(cmd)
	if err != nil {
		return config.Config{}, "", err
	}
	config.ApplyFlags(&cfg, flags)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, "", fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, root, nil
}

// setupLogging configures JSON logs on stderr. Long-running commands log at
// info unless a level was configured.
func setupLogging(cfg config.Config, fallback string) {
	level := cfg.LogLevel
	if level == "" {
		level = fallback
	}
	log.Setup(level, os.Stderr)
}

func loadPipeline(ctx context.Context, root string, cfg config.Config) (pipelineData, error) {
	providerName, err := resolveProvider(cfg.Provider)
	if err != nil {
		return pipelineData{}, err
	}

	paths, err := discovery.Workflows(root, cfg.Workflows)
	if err != nil {
		if errors.Is(err, discovery.ErrNoWorkflows) {
			return pipelineData{}, fmt.Errorf("no workflows found; specify --workflow to provide files: %w", err)
		}
		return pipelineData{}, err
	}

	switch providerName {
	case config.ProviderGitHub:
		pipeline, err := githubprovider.NewParser(root).Parse(paths)
		if err != nil {
			return pipelineData{}, err
		}
		for _, wf := range pipeline.Workflows {
			if err := trigger.ValidPatterns(wf.Triggers); err != nil {
				return pipelineData{}, fmt.Errorf("workflow %q: %w", wf.Path, err)
			}
		}
		warnings := append(pipeline.Warnings, detectVersionWarnings(ctx, root, cfg)...)
		return pipelineData{provider: providerName, workflows: pipeline.Workflows, warnings: warnings}, nil
	default:
		return pipelineData{}, fmt.Errorf("provider %q not implemented", providerName)
	}
}

func applyFilters(data pipelineData, cfg config.Config) (pipelineData, error) {
	sel, err := filter.NewSelection(cfg.Jobs, cfg.OnlySteps, cfg.SkipSteps, cfg.Matrix)
	if err != nil {
		return pipelineData{}, err
	}
	return pipelineData{
		provider:  data.provider,
		workflows: sel.Apply(data.workflows),
		warnings:  data.warnings,
		matrix:    sel.Matrix,
	}, nil
}

func detectVersionWarnings(ctx context.Context, root string, cfg config.Config) []provider.Warning {
	if !cfg.Warn.VersionMismatch {
		return nil
	}
	var warnings []provider.Warning
	for _, m := range version.CheckFiles(ctx, root, version.DefaultFileChecks()) {
		warnings = append(warnings, provider.Warning{Workflow: m.File, Message: m.Message})
	}
	return warnings
}

// resolveEvent builds the simulated event. A nil event means every selected
// workflow runs regardless of its triggers.
func resolveEvent(ctx context.Context, root string, cfg config.Config) (*trigger.Event, error) {
	if cfg.Event.Kind == "" {
		return nil, nil
	}
	ev := trigger.Event{
		Kind:         cfg.Event.Kind,
		Branch:       cfg.Event.Branch,
		ChangedPaths: append([]string{}, cfg.Event.Changed...),
	}
	git := changes.Git{Root: root}
	if ev.Branch == "" {
		branch, err := git.CurrentBranch(ctx)
		if err != nil && !errors.Is(err, changes.ErrNotRepository) {
			return nil, fmt.Errorf("determine branch: %w", err)
		}
		ev.Branch = branch
	}
	if len(ev.ChangedPaths) == 0 && cfg.Event.Since != "" {
		paths, err := git.ChangedSince(ctx, cfg.Event.Since)
		if err != nil {
			return nil, fmt.Errorf("collect changed paths: %w", err)
		}
		ev.ChangedPaths = paths
	}
	return &ev, nil
}

// selectWorkflows applies trigger rules when an event is simulated.
func selectWorkflows(workflows []provider.Workflow, ev *trigger.Event) ([]provider.Workflow, map[string]trigger.Decision) {
	if ev == nil {
		return workflows, nil
	}
	return trigger.Select(workflows, *ev)
}

// runEnv carries what a single pipeline execution needs beyond configuration.
type runEnv struct {
	root     string
	stdout   io.Writer
	stderr   io.Writer
	observer runner.Observer
	store    *history.Store
	newID    func() string
	logger   *slog.Logger
}

func runnerOptions(env runEnv, cfg config.Config, selectors map[string]string, ev *trigger.Event) runner.Options {
	opts := runner.Options{
		Root:               env.root,
		Stdout:             env.stdout,
		Stderr:             env.stderr,
		Verbose:            cfg.Verbose,
		DryRun:             cfg.DryRun,
		TailLines:          20,
		Env:                os.Environ(),
		AllowPrivileged:    cfg.AllowPrivileged,
		PrivilegedPatterns: cfg.PrivilegedCommandPatterns,
		Parallelism:        cfg.Parallelism,
		DefaultTimeout:     cfg.DefaultTimeout,
		Matrix:             selectors,
		Observer:           env.observer,
		NewID:              env.newID,
	}
	if ev != nil {
		opts.Event = report.Event{Kind: ev.Kind, Branch: ev.Branch, ChangedPaths: ev.ChangedPaths}
	}
	return opts
}

// executePipeline loads, filters, selects and runs the pipeline for ev, then
// records the run in history.
func executePipeline(ctx context.Context, env runEnv, cfg config.Config, ev *trigger.Event) (output.RunReport, error) {
	data, err := loadPipeline(ctx, env.root, cfg)
	if err != nil {
		return output.RunReport{}, err
	}
	filtered, err := applyFilters(data, cfg)
	if err != nil {
		return output.RunReport{}, err
	}
	selected, _ := selectWorkflows(filtered.workflows, ev)

	run, err := runner.New(runnerOptions(env, cfg, filtered.matrix, ev)).Run(ctx, selected)
	if err != nil {
		return output.RunReport{}, err
	}

	if env.store != nil && !cfg.DryRun && len(run.Instances) > 0 {
		if err := env.store.Save(ctx, run); err != nil {
			env.log().Warn("failed to record run history", "run_id", run.ID, "error", err)
		}
	}

	return output.RunReport{
		Provider: filtered.provider,
		Run:      run,
		Warnings: collapseWarnings(filtered.warnings, run.Instances),
	}, nil
}

func (e runEnv) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return log.WithComponent("cli")
}

// openHistory opens the history database unless history is disabled.
func openHistory(ctx context.Context, root string, cfg config.Config) (*history.Store, error) {
	if cfg.History.Disabled {
		return nil, nil
	}
	path := cfg.History.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return history.Open(ctx, path)
}

func renderer(cfg config.Config, out io.Writer) output.Renderer {
	return output.New(strings.ToLower(cfg.Format), out)
}

// collapseWarnings flattens parse warnings and the distinct warnings raised
// while resolving instances.
func collapseWarnings(warnings []provider.Warning, instances []report.InstanceResult) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(msg string) {
		if _, ok := seen[msg]; ok {
			return
		}
		seen[msg] = struct{}{}
		out = append(out, msg)
	}
	for _, w := range warnings {
		if w.Job == "" {
			add(fmt.Sprintf("%s: %s", w.Workflow, w.Message))
			continue
		}
		add(fmt.Sprintf("%s:%s: %s", w.Workflow, w.Job, w.Message))
	}
	for _, inst := range instances {
		for _, w := range inst.Warnings {
			add(fmt.Sprintf("%s:%s: %s", inst.WorkflowPath, inst.JobID, w))
		}
	}
	return out
}

func resolveProvider(input string) (string, error) {
	if input == "" || input == config.ProviderAuto {
		return config.ProviderGitHub, nil
	}
	switch input {
	case config.ProviderGitHub:
		return input, nil
	default:
		return "", fmt.Errorf("unsupported provider %q", input)
	}
}
