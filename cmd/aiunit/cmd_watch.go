package main

import (
	"context"
	"errors"

	"aiunit/internal/coverage"
	"aiunit/internal/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCmd() *cobra.Command {
	var flags syncFlags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Synchronize again every time the coverage artifact changes",
		Long: `Runs sync once, then watches the coverage artifact and runs it again after
each change settles. Runs never overlap. Stop with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, &flags)
		},
	}
	flags.bind(cmd)
	return cmd
}

func runWatch(cmd *cobra.Command, flags *syncFlags) error {
	p, err := newPipeline(cmd, flags, true)
	if err != nil {
		return err
	}
	debounce, err := cfg.GetWatchDebounce()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	run := func(ctx context.Context) error {
		sum, err := p.orch.Run(ctx)
		err = p.finish(sum, err)
		// A missing artifact is expected between test runs.
		if errors.Is(err, coverage.ErrCoverageUnavailable) {
			logger.Info("Waiting for coverage data", zap.String("path", p.paths.CoverageFile))
			return nil
		}
		return err
	}

	if err := run(ctx); err != nil && ctx.Err() == nil {
		logger.Warn("Initial run failed", zap.Error(err))
	}

	w, err := watch.New(p.paths.CoverageFile, run, debounce)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	<-w.Done()
	stats := w.Stats()
	logger.Info("Watch finished", zap.Int("runs", stats.Runs), zap.Int("errors", stats.Errors))
	return nil
}
