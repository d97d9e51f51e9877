package coverage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"aiunit/internal/logging"
	"aiunit/internal/pysource"

	"golang.org/x/sync/errgroup"
)

// StatementAnalyzer finds the executable lines of a source file. coverage.py
// data files only record what ran, so the parser needs one for sqlite input.
type StatementAnalyzer interface {
	Statements(path string, src []byte) ([]int, error)
}

// Parser turns a coverage artifact into a GapReport.
type Parser struct {
	analyzer StatementAnalyzer
	root     string
	workers  int
}

// Option configures a Parser.
type Option func(*Parser)

// WithAnalyzer replaces the default tree-sitter Python analyzer.
func WithAnalyzer(a StatementAnalyzer) Option {
	return func(p *Parser) {
		if a != nil {
			p.analyzer = a
		}
	}
}

// WithRoot sets the directory relative source paths are resolved against.
func WithRoot(root string) Option {
	return func(p *Parser) { p.root = root }
}

// WithWorkers bounds concurrent statement analysis.
func WithWorkers(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.workers = n
		}
	}
}

// NewParser creates a parser with the given options.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		analyzer: pysource.Analyzer{},
		workers:  runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse reads the artifact at path. Every failure to obtain coverage data
// is returned as an *UnavailableError; a fully covered project yields an
// empty report and nil error.
func (p *Parser) Parse(ctx context.Context, path string) (*GapReport, error) {
	start := time.Now()

	if _, err := os.Stat(path); err != nil {
		return nil, unavailable(path, err)
	}
	format, err := DetectFormat(path)
	if err != nil {
		return nil, unavailable(path, err)
	}
	logging.CoverageDebug("Parse: %s detected as %s", path, format)

	var report *GapReport
	switch format {
	case FormatSQLite:
		report, err = p.parseSQLite(ctx, path)
	case FormatJSON:
		report, err = readJSONReport(path)
	case FormatGoProfile:
		report, err = readGoProfile(path, p.root)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, unavailable(path, err)
	}

	report.Source = path
	report.Format = format
	logging.Coverage("Parse: %s has %d file(s) with %d missing line(s) (%v)",
		path, report.Len(), report.TotalMissing(), time.Since(start))
	return report, nil
}

func (p *Parser) parseSQLite(ctx context.Context, path string) (*GapReport, error) {
	files, err := readSQLiteData(ctx, path)
	if err != nil {
		return nil, err
	}

	gaps := make([]*FileGap, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			gaps[i] = p.analyze(f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := NewGapReport()
	for _, gap := range gaps {
		if gap != nil {
			report.Add(*gap)
		}
	}
	return report, nil
}

// analyze compares the executable lines of one file with what ran. Files
// whose source is gone or cannot be analyzed are dropped with a warning.
func (p *Parser) analyze(f measuredFile) *FileGap {
	src, err := os.ReadFile(p.sourcePath(f.path))
	if err != nil {
		logging.CoverageWarn("No source for %s, skipping: %v", f.path, err)
		return nil
	}
	lines, err := p.analyzer.Statements(f.path, src)
	if err != nil {
		logging.CoverageWarn("Cannot analyze %s, skipping: %v", f.path, err)
		return nil
	}
	stmts := NewLineSet(lines...)
	missing := stmts.Difference(f.executed)
	if len(missing) == 0 {
		return nil
	}
	return &FileGap{
		Path:       f.path,
		Missing:    missing,
		Statements: stmts.Len(),
		Executed:   stmts.Len() - missing.Len(),
	}
}

func (p *Parser) sourcePath(path string) string {
	if filepath.IsAbs(path) || p.root == "" {
		return path
	}
	return filepath.Join(p.root, path)
}
