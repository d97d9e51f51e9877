package main

import (
	"aiunit/internal/config"
	"aiunit/internal/coverage"
	"aiunit/internal/ux"

	"github.com/spf13/cobra"
)

func newGapsCmd() *cobra.Command {
	var flags config.PathFlags
	cmd := &cobra.Command{
		Use:   "gaps",
		Short: "Print the missing lines of the coverage report",
		Long: `Parses the coverage artifact and prints every tracked file that has
missing lines. Nothing is generated and no API key is needed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := workspaceRoot()
			if err != nil {
				return err
			}
			// Only the artifact is needed here.
			if flags.TestsFolder == "" {
				flags.TestsFolder = "."
			}
			paths, err := cfg.ResolvePaths(root, flags, false)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			report, err := coverage.NewParser(coverage.WithRoot(root)).Parse(ctx, paths.CoverageFile)
			if err != nil {
				return err
			}
			report = report.Filter(coverage.UnderFolders(root, paths.SourceFolders))
			ux.NewPrinter(cmd.OutOrStdout(), root).Gaps(report)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&flags.Folders, "folders", nil, "Only show files under these folders")
	cmd.Flags().StringVar(&flags.CoverageFile, "coverage-file", "", "Coverage artifact (default .coverage)")
	cmd.Flags().BoolVar(&flags.Auto, "auto", false, "Discover paths from pyproject.toml")
	return cmd
}
