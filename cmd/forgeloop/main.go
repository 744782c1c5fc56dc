// Package main is the forgeloop CLI entry point: a single `run` command
// that drives the phase coordinator to completion against one project
// directory. Out of scope per spec.md §1, so this wiring is ambient CLI
// texture rather than a spec requirement: structured the way the
// teacher's cmd/nerd/main.go structures its root command (cobra +
// zap console logging + internal file logging, global workspace/verbose
// flags, PersistentPreRunE/PersistentPostRun for logger lifecycle).
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"forgeloop/internal/logging"
)

// Exit codes. spec.md's end-to-end example only names 0 (successful
// termination); 1-3 are this CLI's own convention, following cobra's
// "RunE returns error, main.go decides os.Exit" idiom rather than calling
// os.Exit from deep inside run().
const (
	exitSuccess       = 0
	exitFatal         = 1
	exitMaxIterations = 2
	exitCancelled     = 3
)

var (
	verbose       bool
	workspace     string
	freshStart    bool
	dryRun        bool
	maxIterations int

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "forgeloop",
	Short: "forgeloop - autonomous software-development pipeline orchestrator",
	Long: `forgeloop drives an external LLM endpoint through a repeating loop of
phases (planning, coding, qa, debugging, investigation, refactoring,
documentation, project_planning) until a project's MASTER_PLAN.md is
satisfied.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "drive the coordinator loop against the workspace until termination",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		} else if abs, err := filepath.Abs(ws); err == nil {
			ws = abs
		}

		outcome, err := Run(cmd.Context(), RunOptions{
			Workspace:     ws,
			FreshStart:    freshStart,
			DryRun:        dryRun,
			MaxIterations: maxIterations,
			Logger:        logger,
		})
		if err != nil && outcome.Reason != reasonCancelled {
			logger.Error("run failed", zap.Error(err))
			os.Exit(exitFatal)
		}

		switch outcome.Reason {
		case reasonMaxIterations:
			os.Exit(exitMaxIterations)
		case reasonCancelled:
			os.Exit(exitCancelled)
		default:
			os.Exit(exitSuccess)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "project workspace directory (default: current directory)")

	runCmd.Flags().BoolVar(&freshStart, "fresh", false, "discard any existing .autonomy/state.json and start a new pipeline run")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "log the next phase the selector would choose without executing it")
	runCmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "stop after this many coordinator iterations (0 = unbounded, governed only by termination)")

	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFatal)
	}
}
