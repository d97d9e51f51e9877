package coverage

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/tools/cover"
)

// readGoProfile converts a Go coverprofile into a gap report. A line is
// executable when a block with statements spans it, and missing when no
// block spanning it ran.
func readGoProfile(path, root string) (*GapReport, error) {
	profiles, err := cover.ParseProfiles(path)
	if err != nil {
		return nil, err
	}
	modulePath := goModulePath(root)

	report := NewGapReport()
	for _, prof := range profiles {
		var executable, executed []int
		for _, b := range prof.Blocks {
			if b.NumStmt == 0 {
				continue
			}
			for line := b.StartLine; line <= b.EndLine; line++ {
				executable = append(executable, line)
				if b.Count > 0 {
					executed = append(executed, line)
				}
			}
		}
		stmts := NewLineSet(executable...)
		ran := NewLineSet(executed...)
		missing := stmts.Difference(ran)
		report.Add(FileGap{
			Path:       goFilePath(prof.FileName, modulePath),
			Missing:    missing,
			Statements: stmts.Len(),
			Executed:   stmts.Len() - missing.Len(),
		})
	}
	return report, nil
}

// goModulePath reads the module path from root/go.mod, if any.
func goModulePath(root string) string {
	if root == "" {
		root = "."
	}
	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		return ""
	}
	return modfile.ModulePath(data)
}

// goFilePath maps an import-path file name to a module-relative path.
func goFilePath(name, modulePath string) string {
	if modulePath != "" && strings.HasPrefix(name, modulePath+"/") {
		return filepath.FromSlash(strings.TrimPrefix(name, modulePath+"/"))
	}
	return filepath.FromSlash(name)
}
