package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/LdDl/lineage-go/internal/config"
	"github.com/LdDl/lineage-go/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Loaded configuration
	cfg *config.Config

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "lineage",
	Short: "Cell lineage construction, CTC/Napari export and reference-free evaluation",
	Long: `lineage links per-frame segmentation masks into cell tracks, detects divisions,
writes the lineage in Cell Tracking Challenge and Napari layouts and scores it
without ground truth.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Logging.Level, cfg.Logging.Format, verbose)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigName, "Path to YAML configuration")

	trackCmd.Flags().StringVar(&trackFlags.maskDir, "masks", "", "Directory of per-frame label masks (overrides input.mask_dir)")
	trackCmd.Flags().StringVar(&trackFlags.pattern, "pattern", "", "Glob of mask files inside the mask directory")
	trackCmd.Flags().StringVar(&trackFlags.assignments, "assignments", "", "CSV assignment dump of an external tracker")
	trackCmd.Flags().StringVarP(&trackFlags.output, "output", "o", "", "Output directory (overrides output.dir)")
	trackCmd.Flags().StringVar(&trackFlags.dataset, "dataset", "", "Dataset name")
	trackCmd.Flags().StringVar(&trackFlags.algorithm, "algorithm", "", "Linker matching algorithm: hungarian or greedy")
	trackCmd.Flags().BoolVar(&trackFlags.plots, "plots", false, "Render evaluation charts")

	evaluateCmd.Flags().StringVarP(&evaluateFlags.result, "result", "r", "", "CTC result directory (defaults to output.dir)")
	evaluateCmd.Flags().StringVar(&evaluateFlags.pattern, "pattern", "", "Glob of relabeled mask files (default mask*.tif next to res_track.txt, man_track*.tif otherwise)")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.json, "json", false, "Print report as JSON")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.plots, "plots", false, "Render evaluation charts into <result>/plots")
	evaluateCmd.Flags().StringVar(&evaluateFlags.dataset, "dataset", "", "Dataset name")

	runsListCmd.Flags().StringVar(&runsFlags.dataset, "dataset", "", "Only runs of this dataset")
	runsListCmd.Flags().IntVar(&runsFlags.limit, "limit", 20, "Maximum number of runs, 0 for all")

	runsCmd.AddCommand(runsListCmd)
	rootCmd.AddCommand(trackCmd, evaluateCmd, runsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
