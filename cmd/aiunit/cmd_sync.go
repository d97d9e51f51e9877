package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"aiunit/internal/assemble"
	"aiunit/internal/config"
	"aiunit/internal/generate"
	"aiunit/internal/orchestrator"
	"aiunit/internal/resolve"
	"aiunit/internal/ux"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// syncFlags are shared by sync and watch.
type syncFlags struct {
	paths         config.PathFlags
	dryRun        bool
	createMissing bool
	strict        bool
	failOnError   bool
}

func (f *syncFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.paths.Folders, "folders", nil, "Source folders to synchronize (comma separated)")
	cmd.Flags().StringVar(&f.paths.TestsFolder, "tests-folder", "", "Root of the test suite")
	cmd.Flags().StringVar(&f.paths.CoverageFile, "coverage-file", "", "Coverage artifact (default .coverage)")
	cmd.Flags().BoolVar(&f.paths.Auto, "auto", false, "Discover paths from pyproject.toml")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Show the changes without writing test files")
	cmd.Flags().BoolVar(&f.createMissing, "create-missing", false, "Create a test file when none exists")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "Skip sources with more than one matching test file")
	cmd.Flags().BoolVar(&f.failOnError, "fail-on-error", false, "Exit with status 3 when any file fails")
}

func newSyncCmd() *cobra.Command {
	var flags syncFlags
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Update test files to cover the missing lines of the coverage report",
		Long: `Reads the coverage artifact and, for every source file with missing lines,
rewrites its test file through the generation service.

Examples:
  aiunit sync --folders src --tests-folder tests
  aiunit sync --auto --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, &flags)
		},
	}
	flags.bind(cmd)
	return cmd
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// pipeline is everything a run needs after flag and config resolution.
type pipeline struct {
	root  string
	paths config.Paths
	orch  *orchestrator.Orchestrator
	out   *ux.Printer
	fail  bool
}

func newPipeline(cmd *cobra.Command, flags *syncFlags, requireFolders bool) (*pipeline, error) {
	root, err := workspaceRoot()
	if err != nil {
		return nil, err
	}
	paths, err := cfg.ResolvePaths(root, flags.paths, requireFolders)
	if err != nil {
		return nil, err
	}

	resolver, err := resolve.New(cfg.ResolverOptions())
	if err != nil {
		return nil, err
	}
	assembler, err := assemble.New(cfg.AssemblerOptions(paths.TestsFolder))
	if err != nil {
		return nil, err
	}

	opts := orchestrator.Options{
		SourceFolders:   paths.SourceFolders,
		TestsRoot:       paths.TestsFolder,
		CoverageFile:    paths.CoverageFile,
		Root:            root,
		DryRun:          flags.dryRun || cfg.Sync.DryRun,
		CreateMissing:   flags.createMissing || cfg.Sync.CreateMissing,
		StrictAmbiguity: flags.strict || cfg.Sync.StrictAmbiguity,
	}
	orch, err := orchestrator.New(opts, resolver, assembler,
		orchestrator.WithGeneratorFactory(generatorFactory),
		orchestrator.WithHook(func(s orchestrator.State, source string) {
			logger.Debug("State", zap.Stringer("state", s), zap.String("source", source))
		}),
	)
	if err != nil {
		return nil, err
	}

	logger.Debug("Paths resolved",
		zap.Strings("folders", paths.SourceFolders),
		zap.String("tests", paths.TestsFolder),
		zap.String("coverage", paths.CoverageFile))

	return &pipeline{
		root:  root,
		paths: paths,
		orch:  orch,
		out:   ux.NewPrinter(cmd.OutOrStdout(), root),
		fail:  flags.failOnError || cfg.Sync.FailOnError,
	}, nil
}

// generatorFactory builds the configured backend on first use.
func generatorFactory(ctx context.Context) (generate.Generator, error) {
	opts, err := cfg.GeneratorOptions()
	if err != nil {
		return nil, err
	}
	return generate.New(ctx, opts)
}

// finish prints the summary, writes metrics and maps failures to an exit
// status.
func (p *pipeline) finish(sum *orchestrator.Summary, runErr error) error {
	if sum != nil && (runErr == nil || sum.Total() > 0) {
		p.out.Summary(sum)
	}
	if path := cfg.Sync.MetricsFile; path != "" {
		if !filepath.IsAbs(path) {
			path = filepath.Join(p.root, path)
		}
		if err := p.orch.WriteMetrics(path); err != nil {
			logger.Warn("Metrics not written", zap.Error(err))
		}
	}
	if runErr != nil {
		return runErr
	}
	if p.fail && sum.HasFailures() {
		return &exitError{code: exitEntryFailed, err: fmt.Errorf("%d file(s) failed", sum.Failed)}
	}
	return nil
}

func runSync(cmd *cobra.Command, flags *syncFlags) error {
	p, err := newPipeline(cmd, flags, true)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	sum, err := p.orch.Run(ctx)
	return p.finish(sum, err)
}
