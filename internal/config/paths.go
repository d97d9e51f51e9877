package config

import (
	"errors"
	"path/filepath"
)

var (
	// ErrNoSourceFolders is returned when no layer names a source folder.
	ErrNoSourceFolders = errors.New("no source folders configured (use --folders, paths.folders or --auto)")

	// ErrNoTestsFolder is returned when no layer names a tests folder.
	ErrNoTestsFolder = errors.New("no tests folder configured (use --tests-folder, paths.tests_folder or --auto)")
)

// PathFlags are the command line values; empty means unset.
type PathFlags struct {
	Folders      []string
	TestsFolder  string
	CoverageFile string
	Auto         bool
}

// Paths are the resolved run inputs. TestsFolder and CoverageFile are
// anchored at the workspace root; folders stay as given.
type Paths struct {
	SourceFolders []string
	TestsFolder   string
	CoverageFile  string
}

// ResolvePaths merges command line flags, the config file and, in auto
// mode, the workspace pyproject.toml, in that order of precedence.
// requireFolders is false for commands that work on a single file.
func (c *Config) ResolvePaths(root string, flags PathFlags, requireFolders bool) (Paths, error) {
	var project ProjectPaths
	if flags.Auto || c.Paths.Auto {
		var err error
		project, err = ReadPyproject(filepath.Join(root, PyprojectFile))
		if err != nil {
			return Paths{}, err
		}
	}

	p := Paths{
		SourceFolders: firstSlice(flags.Folders, c.Paths.Folders, project.Folders),
		TestsFolder:   firstString(flags.TestsFolder, c.Paths.TestsFolder, project.TestsFolder),
		CoverageFile:  firstString(flags.CoverageFile, c.Paths.CoverageFile, project.CoverageFile, DefaultCoverageFile),
	}
	if requireFolders && len(p.SourceFolders) == 0 {
		return Paths{}, ErrNoSourceFolders
	}
	if p.TestsFolder == "" {
		return Paths{}, ErrNoTestsFolder
	}
	p.TestsFolder = anchor(root, p.TestsFolder)
	p.CoverageFile = anchor(root, p.CoverageFile)
	return p, nil
}

func anchor(root, path string) string {
	if filepath.IsAbs(path) || root == "" {
		return path
	}
	return filepath.Join(root, path)
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstSlice(values ...[]string) []string {
	for _, v := range values {
		if len(v) > 0 {
			return v
		}
	}
	return nil
}
