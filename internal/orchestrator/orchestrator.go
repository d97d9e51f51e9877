// Package orchestrator drives one synchronization run: parse coverage,
// then for each file with gaps resolve its test file, assemble the
// request, call the generator and write the result back. Entries are
// handled strictly one after another and a failing entry never stops
// the run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"aiunit/internal/assemble"
	"aiunit/internal/coverage"
	"aiunit/internal/generate"
	"aiunit/internal/logging"
	"aiunit/internal/resolve"

	"github.com/google/uuid"
)

// Options are the already resolved inputs of a run.
type Options struct {
	SourceFolders []string
	TestsRoot     string
	CoverageFile  string
	// Root is the directory relative report paths are taken from; it
	// defaults to the working directory.
	Root string

	DryRun          bool
	CreateMissing   bool
	StrictAmbiguity bool
}

// GeneratorFactory builds the generator the first time an entry needs
// one, so runs with nothing to do never require credentials.
type GeneratorFactory func(ctx context.Context) (generate.Generator, error)

// Orchestrator runs the pipeline.
type Orchestrator struct {
	opts      Options
	parser    *coverage.Parser
	resolver  *resolve.Resolver
	assembler *assemble.Assembler
	factory   GeneratorFactory
	generator generate.Generator
	hook      Hook
	metrics   *metrics
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithHook observes state transitions.
func WithHook(h Hook) Option {
	return func(o *Orchestrator) { o.hook = h }
}

// WithParser replaces the default coverage parser.
func WithParser(p *coverage.Parser) Option {
	return func(o *Orchestrator) { o.parser = p }
}

// WithGenerator sets a ready generator.
func WithGenerator(g generate.Generator) Option {
	return func(o *Orchestrator) { o.generator = g }
}

// WithGeneratorFactory defers generator construction until first use.
func WithGeneratorFactory(f GeneratorFactory) Option {
	return func(o *Orchestrator) { o.factory = f }
}

// New wires an orchestrator. A generator or generator factory is required.
func New(opts Options, resolver *resolve.Resolver, assembler *assemble.Assembler, options ...Option) (*Orchestrator, error) {
	if opts.TestsRoot == "" {
		return nil, errors.New("tests root is required")
	}
	if resolver == nil || assembler == nil {
		return nil, errors.New("resolver and assembler are required")
	}
	if opts.Root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		opts.Root = wd
	}
	o := &Orchestrator{
		opts:      opts,
		resolver:  resolver,
		assembler: assembler,
		metrics:   newMetrics(),
	}
	for _, opt := range options {
		opt(o)
	}
	if o.generator == nil && o.factory == nil {
		return nil, errors.New("a generator is required")
	}
	if o.parser == nil {
		o.parser = coverage.NewParser(coverage.WithRoot(opts.Root))
	}
	return o, nil
}

func (o *Orchestrator) transition(s State, source string) {
	if o.hook != nil {
		o.hook(s, source)
	}
}

// generatorFor returns the generator, building it on first use.
func (o *Orchestrator) generatorFor(ctx context.Context) (generate.Generator, error) {
	if o.generator != nil {
		return o.generator, nil
	}
	g, err := o.factory(ctx)
	if err != nil {
		return nil, err
	}
	o.generator = g
	return g, nil
}

// abs anchors path at the orchestrator root.
func (o *Orchestrator) abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(o.opts.Root, path)
}

// Run executes one full synchronization. A coverage artifact that cannot
// be read is fatal; per-entry problems are recorded in the summary.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{RunID: uuid.NewString(), DryRun: o.opts.DryRun}
	log := logging.Get(logging.CategorySync).With("run_id", summary.RunID)
	defer func() {
		summary.Duration = time.Since(start)
		o.transition(StateDone, "")
	}()

	o.transition(StateIdle, "")
	o.transition(StateParsing, "")
	report, err := o.parser.Parse(ctx, o.opts.CoverageFile)
	if err != nil {
		log.Error("Coverage unavailable: %v", err)
		return summary, err
	}

	total := report.Len()
	report = report.Filter(coverage.UnderFolders(o.opts.Root, o.opts.SourceFolders))
	if dropped := total - report.Len(); dropped > 0 {
		log.Debug("Dropped %d report entries outside %v", dropped, o.opts.SourceFolders)
	}
	if report.Empty() {
		summary.NothingToDo = true
		log.Info("Nothing to do: no missing lines in %s", o.opts.CoverageFile)
		return summary, nil
	}
	log.Info("Synchronizing %d file(s) with %d missing line(s)", report.Len(), report.TotalMissing())

	for _, gap := range report.Entries() {
		if err := ctx.Err(); err != nil {
			log.Warn("Run cancelled after %d of %d entries", summary.Total(), report.Len())
			return summary, err
		}
		outcome, fatal := o.syncEntry(ctx, log, summary, gap)
		if fatal != nil {
			return summary, fatal
		}
		o.finish(log, summary, outcome)
	}

	log.Info("Run complete: %d processed, %d skipped, %d failed in %v",
		summary.Processed, summary.Skipped, summary.Failed, time.Since(start))
	return summary, nil
}

// finish records an outcome in the summary and metrics.
func (o *Orchestrator) finish(log *logging.Logger, summary *Summary, outcome Outcome) {
	summary.record(outcome)
	o.metrics.entries.WithLabelValues(string(outcome.Status)).Inc()
	switch outcome.Status {
	case StatusProcessed:
		log.Info("Updated %s for %s (%v)", outcome.TestPath, outcome.SourcePath, outcome.Duration)
	case StatusSkipped:
		log.Warn("Skipped %s: %s", outcome.SourcePath, outcome.Reason)
	case StatusFailed:
		log.Error("Failed %s: %s: %v", outcome.SourcePath, outcome.Reason, outcome.Err)
	}
}

// syncEntry handles one report entry. The second return value is non-nil
// only for errors that must stop the whole run.
func (o *Orchestrator) syncEntry(ctx context.Context, log *logging.Logger, summary *Summary, gap coverage.FileGap) (Outcome, error) {
	start := time.Now()
	sourcePath := o.abs(gap.Path)
	outcome := Outcome{SourcePath: gap.Path, Missing: gap.Missing}
	done := func(status Status, reason string, err error) (Outcome, error) {
		outcome.Status, outcome.Reason, outcome.Err = status, reason, err
		outcome.Duration = time.Since(start)
		return outcome, nil
	}

	o.transition(StateResolving, gap.Path)
	testPath, reason, err := o.resolveTest(log, sourcePath)
	if reason != "" {
		return done(StatusSkipped, reason, err)
	}
	outcome.TestPath = testPath

	o.transition(StateAssembling, gap.Path)
	req, err := o.assembler.Assemble(sourcePath, testPath, gap.Missing)
	if err != nil {
		if errors.Is(err, assemble.ErrSourceUnreadable) {
			return done(StatusSkipped, ReasonSourceUnreadable, err)
		}
		return done(StatusFailed, ReasonTestUnreadable, err)
	}

	return o.generateAndWrite(ctx, log, summary, req, outcome, start)
}

// resolveTest picks the test file of sourcePath. A non-empty reason means
// the entry is skipped.
func (o *Orchestrator) resolveTest(log *logging.Logger, sourcePath string) (string, string, error) {
	res, err := o.resolver.Resolve(sourcePath, o.opts.TestsRoot)
	if err != nil {
		return "", ReasonResolveError, err
	}
	if !res.Found() {
		if o.opts.CreateMissing {
			path := o.resolver.Propose(sourcePath, o.opts.TestsRoot)
			log.Info("No test file for %s, creating %s", sourcePath, path)
			return path, "", nil
		}
		return "", ReasonNoTestFile, nil
	}
	if res.Ambiguous() {
		log.Warn("Several test files match %s: %s", sourcePath, strings.Join(res.CandidatePaths(), ", "))
		if o.opts.StrictAmbiguity {
			return "", ReasonAmbiguous, nil
		}
		log.Warn("Using %s (convention %s)", res.Path, res.Convention)
	}
	return res.Path, "", nil
}

// generateAndWrite runs the generation and write-back steps shared by
// Run and SyncFunction.
func (o *Orchestrator) generateAndWrite(ctx context.Context, log *logging.Logger, summary *Summary, req *assemble.UpdateRequest, outcome Outcome, start time.Time) (Outcome, error) {
	fail := func(reason string, err error) (Outcome, error) {
		outcome.Status, outcome.Reason, outcome.Err = StatusFailed, reason, err
		outcome.Duration = time.Since(start)
		return outcome, nil
	}

	o.transition(StateGenerating, outcome.SourcePath)
	gen, err := o.generatorFor(ctx)
	if err != nil {
		log.Error("Cannot create generator: %v", err)
		return outcome, err
	}
	genStart := time.Now()
	text, err := gen.Generate(ctx, req)
	o.metrics.generation.Observe(time.Since(genStart).Seconds())
	if err != nil {
		return fail(ReasonGeneration, err)
	}
	if strings.TrimSpace(text) == "" {
		return fail(ReasonGeneration, generate.ErrEmptyResponse)
	}

	o.transition(StateWritingBack, outcome.SourcePath)
	if o.opts.DryRun {
		summary.Diffs = append(summary.Diffs, FileDiff{Path: req.TestPath, Diff: lineDiff(req.TestPath, req.TestText, text)})
	} else {
		if err := writeFileAtomic(req.TestPath, text, o.opts.CreateMissing); err != nil {
			return fail(ReasonWrite, fmt.Errorf("write %s: %w", req.TestPath, err))
		}
		o.assembler.Forget(req.TestPath)
	}

	outcome.Status = StatusProcessed
	outcome.Duration = time.Since(start)
	return outcome, nil
}

// SyncFunction updates the tests of a single function without a coverage
// artifact.
func (o *Orchestrator) SyncFunction(ctx context.Context, sourcePath, funcName string) (*Summary, error) {
	start := time.Now()
	summary := &Summary{RunID: uuid.NewString(), DryRun: o.opts.DryRun}
	log := logging.Get(logging.CategorySync).With("run_id", summary.RunID, "function", funcName)
	defer func() {
		summary.Duration = time.Since(start)
		o.transition(StateDone, "")
	}()
	o.transition(StateIdle, "")

	abs := o.abs(sourcePath)
	outcome := Outcome{SourcePath: sourcePath}

	o.transition(StateResolving, sourcePath)
	testPath, reason, err := o.resolveTest(log, abs)
	if reason != "" {
		outcome.Status, outcome.Reason, outcome.Err = StatusSkipped, reason, err
		o.finish(log, summary, outcome)
		return summary, nil
	}
	outcome.TestPath = testPath

	o.transition(StateAssembling, sourcePath)
	req, err := o.assembler.AssembleFunction(abs, testPath, funcName)
	if err != nil {
		outcome.Err = err
		switch {
		case errors.Is(err, assemble.ErrSourceUnreadable):
			outcome.Status, outcome.Reason = StatusSkipped, ReasonSourceUnreadable
		case errors.Is(err, assemble.ErrTestUnreadable):
			outcome.Status, outcome.Reason = StatusFailed, ReasonTestUnreadable
		default:
			outcome.Status, outcome.Reason = StatusFailed, ReasonFunction
		}
		o.finish(log, summary, outcome)
		return summary, nil
	}

	outcome, fatal := o.generateAndWrite(ctx, log, summary, req, outcome, start)
	if fatal != nil {
		return summary, fatal
	}
	o.finish(log, summary, outcome)
	return summary, nil
}
