package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bgricker/matrixrun/internal/output"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded runs, or one run by id or unique id prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistory,
	}
	cmd.Flags().Int("limit", 20, "number of runs to show")
	cmd.Flags().String("instance", "", "show the recent statuses of one job instance id")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, root, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg, "warn")
	if cfg.History.Disabled {
		return fmt.Errorf("run history is disabled")
	}
	ctx := cmd.Context()

	store, err := openHistory(ctx, root, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return fmt.Errorf("parse --limit: %w", err)
	}
	instance, err := cmd.Flags().GetString("instance")
	if err != nil {
		return fmt.Errorf("parse --instance: %w", err)
	}
	out := cmd.OutOrStdout()

	switch {
	case instance != "":
		statuses, err := store.InstanceStatuses(ctx, instance, limit)
		if err != nil {
			return err
		}
		return output.RenderInstanceHistory(cfg.Format, out, output.InstanceHistory{InstanceID: instance, Statuses: statuses})
	case len(args) == 1:
		run, err := store.Get(ctx, args[0])
		if err != nil {
			return err
		}
		return renderer(cfg, out).RenderRun(output.RunReport{Run: run})
	default:
		entries, err := store.List(ctx, limit)
		if err != nil {
			return err
		}
		return output.RenderHistory(cfg.Format, out, entries)
	}
}

