package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bgricker/matrixrun/internal/output"
	"github.com/bgricker/matrixrun/internal/report"
	"github.com/bgricker/matrixrun/internal/runner"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflows, trigger decisions and planned job instances",
		RunE:  runList,
	}
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, root, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg, "warn")
	ctx := cmd.Context()

	data, err := loadPipeline(ctx, root, cfg)
	if err != nil {
		return err
	}
	filtered, err := applyFilters(data, cfg)
	if err != nil {
		return err
	}
	if len(filtered.workflows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matching jobs or steps")
		return nil
	}

	ev, err := resolveEvent(ctx, root, cfg)
	if err != nil {
		return err
	}
	selected, decisions := selectWorkflows(filtered.workflows, ev)

	env := runEnv{root: root}
	instances, err := runner.New(runnerOptions(env, cfg, filtered.matrix, ev)).Plan(selected)
	if err != nil {
		return err
	}

	list := output.BuildList(filtered.provider, ev, filtered.workflows, decisions, instances, collapseWarnings(filtered.warnings, planWarnings(instances)))
	return renderer(cfg, cmd.OutOrStdout()).RenderList(list)
}

// planWarnings adapts planned instances so their resolution warnings can be collapsed.
func planWarnings(instances []runner.Instance) []report.InstanceResult {
	out := make([]report.InstanceResult, 0, len(instances))
	for _, inst := range instances {
		if len(inst.Warnings) == 0 {
			continue
		}
		out = append(out, report.InstanceResult{WorkflowPath: inst.Workflow.Path, JobID: inst.Job.RawID, Warnings: inst.Warnings})
	}
	return out
}
