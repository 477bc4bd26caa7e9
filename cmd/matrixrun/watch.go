package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bgricker/matrixrun/internal/config"
	"github.com/bgricker/matrixrun/internal/log"
	"github.com/bgricker/matrixrun/internal/provider"
	"github.com/bgricker/matrixrun/internal/runner"
	"github.com/bgricker/matrixrun/internal/watch"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run triggered workflows as a push event whenever files change",
		RunE:  runWatch,
	}
	cmd.Flags().Duration("debounce", 0, "quiet period before changes are run (default 500ms)")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, root, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg, "info")
	ctx := cmd.Context()
	logger := log.WithComponent("watch")

	w, err := watch.New(watch.Config{
		Root:     root,
		Debounce: cfg.Watch.Debounce,
		Exclude:  cfg.Watch.Exclude,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	store, err := openHistory(ctx, root, cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	if err := w.Start(ctx); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Watching %s for changes\n", root)

	env := runEnv{
		root:   root,
		stdout: out,
		stderr: cmd.ErrOrStderr(),
		store:  store,
		logger: logger,
	}
	for batch := range w.Batches() {
		batchCfg := cfg
		batchCfg.Event = config.EventConfig{Kind: provider.EventPush, Branch: cfg.Event.Branch, Changed: batch.Paths}
		ev, err := resolveEvent(ctx, root, batchCfg)
		if err != nil {
			logger.Error("unable to build event", "error", err)
			continue
		}

		fmt.Fprintf(out, "\n%d changed paths\n", len(batch.Paths))
		w.Pause()
		rep, err := executePipeline(ctx, env, batchCfg, ev)
		w.Resume()
		if err != nil {
			logger.Error("run failed to start", "error", err)
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			continue
		}
		if err := renderRun(cmd, batchCfg, rep, true); err != nil && !errors.Is(err, runner.ErrPipelineFailed) {
			return err
		}
	}
	return nil
}

