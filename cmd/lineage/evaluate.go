package main

import (
	"encoding/json"
	"path/filepath"

	"github.com/LdDl/lineage-go/internal/plots"
	"github.com/LdDl/lineage-go/internal/runstore"
	"github.com/LdDl/lineage-go/lineage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var evaluateFlags struct {
	result  string
	pattern string
	dataset string
	json    bool
	plots   bool
}

// evaluateCmd scores an existing CTC result folder
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Reference-free evaluation of a CTC result directory",
	Long: `Reads res_track.txt (or man_track.txt) and the relabeled masks of a result
directory, rebuilds the lineage and prints track length, fragmentation and
cell count statistics. No ground truth is needed.`,
	Args: cobra.NoArgs,
	RunE: runEvaluate,
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	dir := evaluateFlags.result
	if dir == "" {
		dir = cfg.Output.Dir
	}
	if evaluateFlags.dataset != "" {
		cfg.Dataset = evaluateFlags.dataset
	}
	graph, store, err := lineage.LoadCTC(dir, evaluateFlags.pattern)
	if err != nil {
		return err
	}
	report, err := lineage.Evaluate(graph, store, cfg.EvaluationOptions())
	if err != nil {
		return err
	}
	logger.Debug("evaluation done", zap.String("dir", dir), zap.Int("tracks", report.TrackCount))

	out := cmd.OutOrStdout()
	if evaluateFlags.json {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(report); err != nil {
			return err
		}
	} else if err := report.WriteText(out); err != nil {
		return err
	}

	if evaluateFlags.plots || cfg.Evaluation.Plots {
		if _, err := plots.WriteAll(filepath.Join(dir, "plots"), graph, report); err != nil {
			return err
		}
	}

	run := runstore.NewRun(runstore.KindEvaluate, cfg.Dataset, report)
	run.OutputDir = dir
	return recordRun(run)
}
