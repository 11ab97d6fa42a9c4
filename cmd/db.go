package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/trobanga/enzflow/internal/dbprep"
	"github.com/trobanga/enzflow/internal/registry"
	"github.com/trobanga/enzflow/internal/runner"
	"github.com/trobanga/enzflow/internal/ui"
)

// dbCmd groups reference database maintenance
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage reference databases",
}

var dbPrepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Build the tier-1 references",
	Long: `Build the gut reference DIAMOND database and the HMM profile subset.

Existing outputs are reused. The server runs this in the background on start.

Example:
  enzflow db prepare`,
	Args: cobra.NoArgs,
	RunE: runDBPrepare,
}

var dbRepairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Rebuild the full eggNOG DIAMOND database",
	Args:  cobra.NoArgs,
	RunE:  runDBRepair,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbPrepareCmd, dbRepairCmd)
}

func runDBPrepare(cmd *cobra.Command, args []string) error {
	config, logger, err := loadRuntime(false)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	reg := registry.New(0, logger)
	ctx, stop := reg.HandleSignals(cmd.Context())
	defer stop()

	prep := dbprep.New(config, runner.New(reg, logger), logger)
	spinner := ui.NewSpinner("Preparing reference databases")
	spinner.Start()
	paths, err := prep.Initialize(ctx)
	spinner.Stop(err == nil)
	if err != nil {
		return err
	}

	fmt.Printf("Gut database:  %s\n", paths.GutDB)
	if paths.GutDBRamdisk != "" {
		fmt.Printf("Ramdisk copy:  %s\n", paths.GutDBRamdisk)
	}
	fmt.Printf("KO to genes:   %s\n", paths.KO2Genes)
	profiles := "full set"
	if paths.ProfileSubset {
		profiles = "subset"
	}
	fmt.Printf("HMM profiles:  %s (%s)\n", paths.HMMProfiles, profiles)
	if !paths.FullDBPresent {
		fmt.Println("Warning: full eggNOG DIAMOND database not found; jobs that reach tier 2 will need it")
	}
	return nil
}

func runDBRepair(cmd *cobra.Command, args []string) error {
	config, logger, err := loadRuntime(false)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	reg := registry.New(0, logger)
	ctx, stop := reg.HandleSignals(cmd.Context())
	defer stop()

	prep := dbprep.New(config, runner.New(reg, logger), logger)
	spinner := ui.NewSpinner("Rebuilding eggNOG DIAMOND database")
	spinner.Start()
	err = prep.Repair(ctx)
	spinner.Stop(err == nil)
	if err != nil {
		fmt.Printf("Manual repair: %s\n", prep.ManualRepairCommand())
		return err
	}
	fmt.Println("eggNOG DIAMOND database rebuilt")
	return nil
}
