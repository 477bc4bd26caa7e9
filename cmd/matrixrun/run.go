package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bgricker/matrixrun/internal/config"
	"github.com/bgricker/matrixrun/internal/history"
	"github.com/bgricker/matrixrun/internal/output"
	"github.com/bgricker/matrixrun/internal/report"
	"github.com/bgricker/matrixrun/internal/runner"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute workflow job instances locally",
		RunE:  runExecute,
	}
}

func runExecute(cmd *cobra.Command, args []string) error {
	cfg, root, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg, "warn")
	ctx := cmd.Context()

	ev, err := resolveEvent(ctx, root, cfg)
	if err != nil {
		return err
	}

	var store *history.Store
	if !cfg.DryRun {
		store, err = openHistory(ctx, root, cfg)
		if err != nil {
			return err
		}
		if store != nil {
			defer store.Close()
		}
	}

	env := runEnv{
		root:   root,
		stdout: cmd.OutOrStdout(),
		stderr: cmd.ErrOrStderr(),
		store:  store,
	}
	// Progress lines would interleave with streamed command output.
	if strings.EqualFold(cfg.Format, config.FormatPretty) && !cfg.DryRun && !cfg.Verbose {
		env.observer = output.NewStream(cmd.ErrOrStderr())
	}

	rep, err := executePipeline(ctx, env, cfg, ev)
	if err != nil {
		return err
	}
	return renderRun(cmd, cfg, rep, ev != nil)
}

func renderRun(cmd *cobra.Command, cfg config.Config, rep output.RunReport, simulated bool) error {
	if len(rep.Instances) == 0 {
		if simulated {
			fmt.Fprintf(cmd.OutOrStdout(), "No workflows triggered by %s\n", describeRunEvent(rep.Event))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No matching jobs or steps")
		return nil
	}
	if err := renderer(cfg, cmd.OutOrStdout()).RenderRun(rep); err != nil {
		return err
	}
	if rep.Status == report.RunFailed {
		return runner.ErrPipelineFailed
	}
	return nil
}

func describeRunEvent(ev report.Event) string {
	s := ev.Kind
	if ev.Branch != "" {
		s += " on " + ev.Branch
	}
	return s
}
