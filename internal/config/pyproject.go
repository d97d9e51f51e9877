package config

import (
	"errors"
	"fmt"
	"os"

	"aiunit/internal/logging"

	"github.com/spf13/viper"
)

// PyprojectFile is the Python project manifest read in auto mode.
const PyprojectFile = "pyproject.toml"

// ProjectPaths are the locations a pyproject.toml declares. Any field may
// be empty.
type ProjectPaths struct {
	Folders      []string
	TestsFolder  string
	CoverageFile string
}

// ReadPyproject extracts source folders, tests folder and coverage file
// from a pyproject.toml. The [tool.ai-unit-test] table wins; pytest
// testpaths and coverage.py run settings fill the gaps. A missing file
// yields empty paths.
func ReadPyproject(path string) (ProjectPaths, error) {
	var out ProjectPaths
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.ConfigDebug("no %s", path)
			return out, nil
		}
		return out, fmt.Errorf("stat %s: %w", path, err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return out, nil
		}
		return out, fmt.Errorf("read %s: %w", path, err)
	}

	out.Folders = v.GetStringSlice("tool.ai-unit-test.folders")
	out.TestsFolder = v.GetString("tool.ai-unit-test.tests-folder")
	out.CoverageFile = v.GetString("tool.ai-unit-test.coverage-file")

	if len(out.Folders) == 0 {
		out.Folders = v.GetStringSlice("tool.coverage.run.source")
	}
	if out.TestsFolder == "" {
		if paths := v.GetStringSlice("tool.pytest.ini_options.testpaths"); len(paths) > 0 {
			out.TestsFolder = paths[0]
		}
	}
	if out.CoverageFile == "" {
		out.CoverageFile = v.GetString("tool.coverage.run.data_file")
	}

	logging.ConfigDebug("%s: folders=%v tests=%q coverage=%q", path, out.Folders, out.TestsFolder, out.CoverageFile)
	return out, nil
}
