/*
Copyright © 2025 Enzflow Contributors

Enzflow annotates protein FASTA uploads with enzyme functions and pathway scores.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/models"
	"github.com/trobanga/enzflow/internal/queue"
	"github.com/trobanga/enzflow/internal/services"
	"github.com/trobanga/enzflow/internal/store"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "enzflow",
	Short: "Enzflow - protein function annotation queue",
	Long: `Enzflow annotates uploaded protein FASTA files with enzyme functions.

Each upload becomes a job that runs through a tiered search:
  - HMM profile search (KofamScan style)
  - Fast DIAMOND search against the gut reference set (tier 1)
  - eggNOG-mapper on the remaining proteins (tier 2)

Results are merged into one annotation table, scored against a pathway
catalogue, and written next to a FASTA of the annotated proteins. Jobs run
one at a time, in submission order.

Example:
  enzflow serve
  enzflow job submit proteins.faa
  enzflow job list`,
	Version:       "0.1.0",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, errorText(err))
		os.Exit(1)
	}
}

// errorText renders err with the guidance its classification carries
func errorText(err error) string {
	return lib.ClassifyError(err).UserMessage()
}

func init() {
	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./enzflow.yaml, ~/.config/enzflow/enzflow.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	// Add version template
	rootCmd.SetVersionTemplate("Enzflow version {{.Version}}\n")
}

// loadRuntime reads the configuration and builds the process logger.
// JSON output is used by long-running and detached processes.
func loadRuntime(jsonLogs bool) (*models.ProjectConfig, *lib.Logger, error) {
	config, err := services.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := lib.ParseLogLevel(config.Logging.Level)
	if verbose {
		level = lib.LogLevelDebug
	}
	logger := lib.NewLoggerWithOptions(lib.LogOptions{
		Level:      level,
		JSON:       jsonLogs,
		File:       config.Logging.File,
		MaxSizeMB:  config.Logging.MaxSizeMB,
		MaxBackups: config.Logging.MaxBackups,
	})
	if used := services.GetConfigFilePath(); used != "" {
		logger.Debug("Configuration loaded", "file", used)
	}
	return config, logger, nil
}

// jobError turns a missing job into the CLI's not-found guidance
func jobError(err error, jobID string) error {
	if errors.Is(err, store.ErrNotFound) {
		return lib.ErrJobNotFound(jobID)
	}
	return err
}

// openStore opens the job database and applies pending migrations
func openStore(ctx context.Context, config *models.ProjectConfig, logger *lib.Logger) (*store.Store, error) {
	st, err := store.Open(ctx, config.DatabasePath(), logger, store.WithStuckAfter(config.Queue.StuckAfter))
	if err != nil {
		return nil, lib.WrapError(lib.CategoryDatabase, "Failed to open job database", err,
			fmt.Sprintf("Check that %s is writable", config.DatabasePath()))
	}
	if err := st.Migrate(); err != nil {
		_ = st.Close()
		return nil, lib.WrapError(lib.CategoryDatabase, "Failed to migrate job database", err)
	}
	return st, nil
}

// newController wires queue admission with the detached process launcher.
// Children inherit the config file and verbosity of this process.
func newController(config *models.ProjectConfig, st *store.Store, logger *lib.Logger) (*queue.Controller, error) {
	var args []string
	if cfgFile != "" {
		abs, err := filepath.Abs(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		args = append(args, "--config", abs)
	}
	if verbose {
		args = append(args, "--verbose")
	}

	launcher, err := queue.NewProcessLauncher(services.NewWorkspace(config.DataDir), logger, args...)
	if err != nil {
		return nil, err
	}
	return queue.NewController(config, st, launcher, logger), nil
}
