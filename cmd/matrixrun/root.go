package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "matrixrun",
		Short:         "matrixrun executes GitHub Actions job matrices locally",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	persistent := cmd.PersistentFlags()
	persistent.String("provider", "", "workflow provider to use (auto|github)")
	persistent.StringArray("workflow", nil, "workflow file or glob to include")
	persistent.StringArray("job", nil, "job filter (repeatable)")
	persistent.StringArray("only-step", nil, "include only matching steps")
	persistent.StringArray("skip-step", nil, "exclude matching steps")
	persistent.StringArray("matrix", nil, "keep only instances with axis=value (repeatable)")
	persistent.Bool("dry-run", false, "print commands without executing them")
	persistent.BoolP("verbose", "v", false, "stream command output in real time")
	persistent.String("format", "pretty", "output format (pretty|json)")
	persistent.IntP("parallelism", "j", 0, "maximum job instances running at once")
	persistent.Duration("timeout", 0, "job timeout when timeout-minutes is not set")
	persistent.String("log-level", "", "log level (debug|info|warn|error)")
	persistent.String("event", "", "simulate an event (push|pull_request|workflow_dispatch)")
	persistent.String("branch", "", "branch for the simulated event (defaults to the current branch)")
	persistent.StringArray("changed", nil, "changed path for the simulated event (repeatable)")
	persistent.String("since", "", "collect changed paths with git diff against this revision")
	persistent.String("history", "", "path of the run history database")
	persistent.Bool("no-history", false, "do not record runs")
	persistent.Bool("allow-privileged", false, "run privileged commands such as sudo")

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}
