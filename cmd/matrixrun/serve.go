package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bgricker/matrixrun/internal/changes"
	"github.com/bgricker/matrixrun/internal/config"
	"github.com/bgricker/matrixrun/internal/log"
	"github.com/bgricker/matrixrun/internal/metrics"
	"github.com/bgricker/matrixrun/internal/webhook"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run triggered workflows for GitHub webhook deliveries",
		RunE:  runServe,
	}
	cmd.Flags().String("listen", "", "address to listen on (default :8080)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, root, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg, "info")
	if cfg.Serve.Secret == "" {
		return fmt.Errorf("serve.secret must be set in %s", config.FileName)
	}
	logger := log.WithComponent("serve")

	g, ctx := errgroup.WithContext(cmd.Context())

	store, err := openHistory(ctx, root, cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	collector := metrics.New()
	env := runEnv{
		root:     root,
		stdout:   io.Discard,
		stderr:   io.Discard,
		observer: collector,
		store:    store,
		logger:   logger,
	}
	queue := webhook.NewQueue(func(ctx context.Context, id string, d webhook.Delivery) error {
		ev := d.Event
		if len(ev.ChangedPaths) == 0 && d.Base != "" {
			paths, err := changes.Git{Root: root}.ChangedSince(ctx, d.Base)
			if err != nil {
				logger.Warn("unable to list changed paths", "base", d.Base, "error", err)
			}
			ev.ChangedPaths = paths
		}

		local := env
		local.newID = func() string { return id }
		rep, err := executePipeline(ctx, local, cfg, &ev)
		if err != nil {
			return err
		}
		collector.RunFinished(rep.Run)
		logger.Info("run finished", "run_id", id, "status", rep.Status, "instances", len(rep.Instances))
		return nil
	}, 16, logger)

	serveCfg := webhook.Config{
		Listen:       cfg.Serve.Listen,
		Path:         cfg.Serve.Path,
		Secret:       cfg.Serve.Secret,
		MaxBodyBytes: cfg.Serve.MaxBodyBytes,
	}
	opts := webhook.Options{
		Submitter: queue,
		Metrics:   collector.Handler(),
		Recorder:  collector,
		Logger:    logger,
	}
	if store != nil {
		opts.Runs = store
	}
	srv := webhook.New(serveCfg, opts)

	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s%s\n", cfg.Serve.Listen, cfg.Serve.Path)
	g.Go(func() error { return queue.Start(ctx) })
	g.Go(func() error { return srv.Start(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

