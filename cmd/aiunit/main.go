package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"aiunit/internal/config"
	"aiunit/internal/coverage"
	"aiunit/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Exit codes.
const (
	exitOK          = 0
	exitConfig      = 1
	exitCoverage    = 2
	exitEntryFailed = 3
)

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// exitError carries a specific process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// exitCode maps a command error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if errors.Is(err, coverage.ErrCoverageUnavailable) {
		return exitCoverage
	}
	return exitConfig
}

// newRootCmd builds the command tree. Flags are bound to the package
// globals and reset on every call.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aiunit",
		Short: "Keep a test suite in step with its coverage report",
		Long: `aiunit reads a coverage artifact, finds the source files with uncovered
lines, locates each file's test module and asks a code generation service
to extend that module until the missing lines are exercised.

Files are handled one at a time; a failing file never stops the run.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logging.Flush()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultFile, "Config file (relative to the workspace)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")

	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newFuncCmd())
	rootCmd.AddCommand(newGapsCmd())
	rootCmd.AddCommand(newInitCmd())
	return rootCmd
}

// setup loads the configuration and initializes logging.
func setup(cmd *cobra.Command, args []string) error {
	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	path := configPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}

	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	if err := logging.Initialize(loaded.Logging.Settings(verbose)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	cfg = loaded
	logger = logging.Base()
	logger.Debug("Configuration loaded", zap.String("config", path), zap.String("workspace", root))
	return nil
}

// workspaceRoot returns the absolute workspace directory.
func workspaceRoot() (string, error) {
	if workspace == "" {
		return os.Getwd()
	}
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("workspace: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("workspace %s is not a directory", abs)
	}
	return abs, nil
}

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}
