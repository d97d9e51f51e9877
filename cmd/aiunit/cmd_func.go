package main

import (
	"github.com/spf13/cobra"
)

func newFuncCmd() *cobra.Command {
	var flags syncFlags
	cmd := &cobra.Command{
		Use:   "func <source> <function>",
		Short: "Update the tests of a single function",
		Long: `Sends one function of a source file to the generation service together
with the current test file, without reading any coverage data.

Example:
  aiunit func src/simple_math.py add --tests-folder tests`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPipeline(cmd, &flags, false)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			sum, err := p.orch.SyncFunction(ctx, args[0], args[1])
			return p.finish(sum, err)
		},
	}
	cmd.Flags().StringVar(&flags.paths.TestsFolder, "tests-folder", "", "Root of the test suite")
	cmd.Flags().BoolVar(&flags.paths.Auto, "auto", false, "Discover the tests folder from pyproject.toml")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Show the change without writing the test file")
	cmd.Flags().BoolVar(&flags.createMissing, "create-missing", false, "Create a test file when none exists")
	cmd.Flags().BoolVar(&flags.failOnError, "fail-on-error", false, "Exit with status 3 when the update fails")
	return cmd
}
