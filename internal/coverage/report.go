package coverage

import (
	"path/filepath"
	"strings"
)

// FileGap is the uncovered part of one tracked source file.
type FileGap struct {
	Path       string  // path as recorded by the coverage tool
	Missing    LineSet // executable lines that never ran
	Statements int     // executable line count
	Executed   int     // executable lines that ran
}

// Percent returns the covered share of executable lines, 0-100.
func (g FileGap) Percent() float64 {
	if g.Statements == 0 {
		return 100
	}
	return float64(g.Executed) * 100 / float64(g.Statements)
}

// GapReport maps source files to their missing lines, preserving the
// artifact's natural order. Files with full coverage are never present.
type GapReport struct {
	Source string // artifact path the report was read from
	Format Format

	entries []FileGap
	index   map[string]int
}

// NewGapReport returns an empty report.
func NewGapReport() *GapReport {
	return &GapReport{index: make(map[string]int)}
}

// Add records a gap. Gaps without missing lines are ignored; adding a path
// twice replaces the earlier entry in place.
func (r *GapReport) Add(gap FileGap) {
	if len(gap.Missing) == 0 {
		return
	}
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[gap.Path]; ok {
		r.entries[i] = gap
		return
	}
	r.index[gap.Path] = len(r.entries)
	r.entries = append(r.entries, gap)
}

// Len returns the number of files with gaps.
func (r *GapReport) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Empty reports a fully covered (or untracked) project.
func (r *GapReport) Empty() bool { return r.Len() == 0 }

// Entries returns the gaps in report order.
func (r *GapReport) Entries() []FileGap {
	if r == nil {
		return nil
	}
	out := make([]FileGap, len(r.entries))
	copy(out, r.entries)
	return out
}

// Lookup returns the gap recorded for path.
func (r *GapReport) Lookup(path string) (FileGap, bool) {
	if r == nil {
		return FileGap{}, false
	}
	i, ok := r.index[path]
	if !ok {
		return FileGap{}, false
	}
	return r.entries[i], true
}

// TotalMissing sums the missing lines of every entry.
func (r *GapReport) TotalMissing() int {
	total := 0
	for _, e := range r.Entries() {
		total += e.Missing.Len()
	}
	return total
}

// Filter returns a new report holding the entries keep accepts, in order.
func (r *GapReport) Filter(keep func(path string) bool) *GapReport {
	out := NewGapReport()
	if r == nil {
		return out
	}
	out.Source = r.Source
	out.Format = r.Format
	for _, e := range r.entries {
		if keep(e.Path) {
			out.Add(e)
		}
	}
	return out
}

// Compact returns the report as path -> compact ranges, the shape the
// generation prompt and the gaps command print.
func (r *GapReport) Compact() map[string][]string {
	out := make(map[string][]string, r.Len())
	for _, e := range r.Entries() {
		out[e.Path] = e.Missing.Compact()
	}
	return out
}

// UnderFolders returns a Filter predicate matching report paths that lie
// under one of folders. Relative paths are taken from root. No folders
// matches everything.
func UnderFolders(root string, folders []string) func(path string) bool {
	abs := func(p string) string {
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(root, p)
	}
	dirs := make([]string, len(folders))
	for i, f := range folders {
		dirs[i] = abs(f)
	}
	return func(path string) bool {
		if len(dirs) == 0 {
			return true
		}
		p := abs(path)
		for _, d := range dirs {
			if p == d || strings.HasPrefix(p, d+string(filepath.Separator)) {
				return true
			}
		}
		return false
	}
}
