// Package resolve maps a source file to the test file that covers it,
// using an ordered list of file-name conventions.
package resolve

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"aiunit/internal/logging"
)

// DefaultConventions are tried in order; the first is also the one used
// when proposing a new test file.
var DefaultConventions = []string{
	"test_{name}{ext}",
	"{name}_test{ext}",
	"test{name}{ext}",
}

// DefaultSkipDirs are never descended into.
var DefaultSkipDirs = []string{".git", "__pycache__", "node_modules", ".venv", "venv", ".tox"}

// ErrInvalidConvention is returned by New for templates without {name}.
var ErrInvalidConvention = errors.New("naming convention must contain {name}")

// Candidate is one test file matching a convention.
type Candidate struct {
	Path       string
	Convention string
	Rank       int // index of Convention in the resolver's list
}

// Resolution is the outcome of resolving one source file.
type Resolution struct {
	Source     string
	Path       string // chosen test file, empty when none was found
	Convention string
	Candidates []Candidate
}

// Found reports whether a test file was chosen.
func (r Resolution) Found() bool { return r.Path != "" }

// Ambiguous reports whether more than one test file matched.
func (r Resolution) Ambiguous() bool { return len(r.Candidates) > 1 }

// CandidatePaths lists every matching path in preference order.
func (r Resolution) CandidatePaths() []string {
	out := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		out[i] = c.Path
	}
	return out
}

// Options configures a Resolver.
type Options struct {
	Conventions []string
	SkipDirs    []string
}

// Resolver finds test files under a tests root. It only reads the
// filesystem.
type Resolver struct {
	conventions []string
	skip        map[string]bool
}

// New validates the conventions and builds a Resolver. Empty options fall
// back to the defaults.
func New(opts Options) (*Resolver, error) {
	conventions := opts.Conventions
	if len(conventions) == 0 {
		conventions = DefaultConventions
	}
	for _, c := range conventions {
		if !strings.Contains(c, "{name}") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidConvention, c)
		}
		if strings.ContainsAny(c, `/\`) {
			return nil, fmt.Errorf("naming convention %q must be a file name", c)
		}
	}
	skipDirs := opts.SkipDirs
	if skipDirs == nil {
		skipDirs = DefaultSkipDirs
	}
	skip := make(map[string]bool, len(skipDirs))
	for _, d := range skipDirs {
		skip[d] = true
	}
	return &Resolver{
		conventions: append([]string(nil), conventions...),
		skip:        skip,
	}, nil
}

// Conventions returns the resolver's templates in preference order.
func (r *Resolver) Conventions() []string {
	return append([]string(nil), r.conventions...)
}

// expand renders every convention for one source file.
func (r *Resolver) expand(sourcePath string) map[string]int {
	base := filepath.Base(sourcePath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	names := make(map[string]int, len(r.conventions))
	for i, c := range r.conventions {
		fileName := strings.NewReplacer("{name}", name, "{ext}", ext).Replace(c)
		if _, seen := names[fileName]; !seen {
			names[fileName] = i
		}
	}
	return names
}

// Resolve searches testsRoot recursively for a test file of sourcePath.
// The lowest-ranked convention wins; within a convention the first path in
// lexicographic walk order wins. Not finding one is not an error.
func (r *Resolver) Resolve(sourcePath, testsRoot string) (Resolution, error) {
	res := Resolution{Source: sourcePath}

	info, err := os.Stat(testsRoot)
	if err != nil {
		return res, fmt.Errorf("tests root unavailable: %w", err)
	}
	if !info.IsDir() {
		return res, fmt.Errorf("tests root %s is not a directory", testsRoot)
	}

	wanted := r.expand(sourcePath)
	byRank := make([][]Candidate, len(r.conventions))

	err = filepath.WalkDir(testsRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == testsRoot {
				return walkErr
			}
			logging.ResolveDebug("Resolve: skipping unreadable %s: %v", path, walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != testsRoot && r.skip[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if rank, ok := wanted[d.Name()]; ok {
			byRank[rank] = append(byRank[rank], Candidate{
				Path:       path,
				Convention: r.conventions[rank],
				Rank:       rank,
			})
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("failed to search %s: %w", testsRoot, err)
	}

	for _, cands := range byRank {
		res.Candidates = append(res.Candidates, cands...)
	}
	if len(res.Candidates) > 0 {
		res.Path = res.Candidates[0].Path
		res.Convention = res.Candidates[0].Convention
	}

	switch {
	case !res.Found():
		logging.ResolveDebug("Resolve: no test file for %s under %s", sourcePath, testsRoot)
	case res.Ambiguous():
		logging.ResolveDebug("Resolve: %s has %d candidates, chose %s", sourcePath, len(res.Candidates), res.Path)
	default:
		logging.ResolveDebug("Resolve: %s -> %s (%s)", sourcePath, res.Path, res.Convention)
	}
	return res, nil
}

// Propose returns where a new test file for sourcePath would go: the first
// convention, directly under testsRoot.
func (r *Resolver) Propose(sourcePath, testsRoot string) string {
	base := filepath.Base(sourcePath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	fileName := strings.NewReplacer("{name}", name, "{ext}", ext).Replace(r.conventions[0])
	return filepath.Join(testsRoot, fileName)
}
