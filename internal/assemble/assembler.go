// Package assemble gathers everything a generation request needs: the
// source under test, the current test file, the uncovered lines and a
// bounded sample of neighbouring tests for style.
package assemble

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"aiunit/internal/coverage"
	"aiunit/internal/logging"
	"aiunit/internal/pysource"
	"aiunit/internal/resolve"
)

var (
	// ErrSourceUnreadable means the source file could not be read; the
	// entry should be skipped.
	ErrSourceUnreadable = errors.New("source file unreadable")

	// ErrTestUnreadable means the test file exists but could not be read.
	ErrTestUnreadable = errors.New("test file unreadable")
)

const (
	DefaultMaxStyleFiles = 3
	DefaultMaxStyleBytes = 16 * 1024
	DefaultCacheSize     = 256
)

// UpdateRequest is the input of one generation call.
type UpdateRequest struct {
	SourcePath string
	TestPath   string
	SourceText string
	TestText   string // empty when the test file does not exist yet
	Missing    coverage.LineSet

	StyleReference string
	StyleFiles     []string

	// Function is set when only one function is being targeted.
	Function string
}

// NewTestFile reports whether the request will create the test file.
func (r *UpdateRequest) NewTestFile() bool { return r.TestText == "" }

// Options configures an Assembler.
type Options struct {
	TestsRoot      string
	StyleReference bool
	MaxStyleFiles  int
	MaxStyleBytes  int
	CacheSize      int
	SkipDirs       []string
}

// Assembler builds UpdateRequests.
type Assembler struct {
	opts  Options
	cache *fileCache
	skip  map[string]bool
}

// New creates an Assembler; zero limits take the defaults.
func New(opts Options) (*Assembler, error) {
	if opts.MaxStyleFiles <= 0 {
		opts.MaxStyleFiles = DefaultMaxStyleFiles
	}
	if opts.MaxStyleBytes <= 0 {
		opts.MaxStyleBytes = DefaultMaxStyleBytes
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.SkipDirs == nil {
		opts.SkipDirs = resolve.DefaultSkipDirs
	}
	cache, err := newFileCache(opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create file cache: %w", err)
	}
	skip := make(map[string]bool, len(opts.SkipDirs))
	for _, d := range opts.SkipDirs {
		skip[d] = true
	}
	return &Assembler{opts: opts, cache: cache, skip: skip}, nil
}

// Assemble reads sourcePath and testPath and returns the request for one
// report entry. A missing test file yields empty test text. When the
// source cannot be read the returned request has empty source text and the
// error wraps ErrSourceUnreadable.
func (a *Assembler) Assemble(sourcePath, testPath string, missing coverage.LineSet) (*UpdateRequest, error) {
	req := &UpdateRequest{
		SourcePath: sourcePath,
		TestPath:   testPath,
		Missing:    missing,
	}

	source, err := a.cache.read(sourcePath)
	if err != nil {
		return req, fmt.Errorf("%w: %s: %w", ErrSourceUnreadable, sourcePath, err)
	}
	req.SourceText = source

	if err := a.fillTest(req); err != nil {
		return req, err
	}
	a.fillStyle(req)

	logging.ContextDebug("Assemble: %s (%d bytes), test %s (%d bytes), %d style file(s), missing %s",
		sourcePath, len(req.SourceText), testPath, len(req.TestText), len(req.StyleFiles), missing)
	return req, nil
}

// AssembleFunction builds a request whose source text is the single
// function funcName, for updating tests of one function.
func (a *Assembler) AssembleFunction(sourcePath, testPath, funcName string) (*UpdateRequest, error) {
	req := &UpdateRequest{
		SourcePath: sourcePath,
		TestPath:   testPath,
		Function:   funcName,
	}

	source, err := a.cache.read(sourcePath)
	if err != nil {
		return req, fmt.Errorf("%w: %s: %w", ErrSourceUnreadable, sourcePath, err)
	}
	fn, err := pysource.ExtractFunction([]byte(source), funcName)
	if err != nil {
		return req, fmt.Errorf("cannot extract %s from %s: %w", funcName, sourcePath, err)
	}
	req.SourceText = fn

	if err := a.fillTest(req); err != nil {
		return req, err
	}
	a.fillStyle(req)

	logging.ContextDebug("AssembleFunction: %s.%s (%d bytes), test %s", sourcePath, funcName, len(fn), testPath)
	return req, nil
}

func (a *Assembler) fillTest(req *UpdateRequest) error {
	if req.TestPath == "" {
		return nil
	}
	text, err := a.cache.read(req.TestPath)
	switch {
	case err == nil:
		req.TestText = text
	case errors.Is(err, fs.ErrNotExist):
		logging.ContextDebug("Assemble: %s does not exist yet", req.TestPath)
	default:
		return fmt.Errorf("%w: %s: %w", ErrTestUnreadable, req.TestPath, err)
	}
	return nil
}

// Forget drops cached content for path after it has been rewritten.
func (a *Assembler) Forget(path string) {
	a.cache.forget(path)
}

// fillStyle collects other test files that mention the module, in
// lexicographic order, bounded by file count and total bytes.
func (a *Assembler) fillStyle(req *UpdateRequest) {
	if !a.opts.StyleReference || a.opts.TestsRoot == "" {
		return
	}
	base := filepath.Base(req.SourcePath)
	ext := filepath.Ext(base)
	module := strings.TrimSuffix(base, ext)
	target := filepath.Clean(req.TestPath)

	var sb strings.Builder
	budget := a.opts.MaxStyleBytes

	err := filepath.WalkDir(a.opts.TestsRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != a.opts.TestsRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != a.opts.TestsRoot && a.skip[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if len(req.StyleFiles) >= a.opts.MaxStyleFiles || budget <= 0 {
			return filepath.SkipAll
		}
		if filepath.Ext(path) != ext || filepath.Clean(path) == target {
			return nil
		}
		text, err := a.cache.read(path)
		if err != nil || !strings.Contains(text, module) {
			return nil
		}

		chunk := fmt.Sprintf("# File: %s\n%s", path, text)
		if !strings.HasSuffix(chunk, "\n") {
			chunk += "\n"
		}
		if sb.Len() > 0 {
			chunk = "\n" + chunk
		}
		if len(chunk) > budget {
			chunk = strings.ToValidUTF8(chunk[:budget], "")
		}
		sb.WriteString(chunk)
		budget -= len(chunk)
		req.StyleFiles = append(req.StyleFiles, path)
		return nil
	})
	if err != nil {
		logging.ContextDebug("Assemble: style scan of %s stopped: %v", a.opts.TestsRoot, err)
	}
	req.StyleReference = sb.String()
}
