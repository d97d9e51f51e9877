package main

import (
	"fmt"
	"os"
	"path/filepath"

	"aiunit/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file to the workspace",
		Long: `Writes .aiunit.yaml with the default settings. Source and tests folders are
pre-filled from pyproject.toml when it declares them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := workspaceRoot()
			if err != nil {
				return err
			}
			path := configPath
			if !filepath.IsAbs(path) {
				path = filepath.Join(root, path)
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			out := config.DefaultConfig()
			project, err := config.ReadPyproject(filepath.Join(root, config.PyprojectFile))
			if err != nil {
				logger.Warn("Ignoring pyproject.toml", zap.Error(err))
			}
			out.Paths.Folders = project.Folders
			out.Paths.TestsFolder = project.TestsFolder
			out.Paths.CoverageFile = project.CoverageFile

			if err := out.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
