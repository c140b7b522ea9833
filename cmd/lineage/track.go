package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/LdDl/lineage-go/internal/plots"
	"github.com/LdDl/lineage-go/internal/runstore"
	"github.com/LdDl/lineage-go/lineage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var trackFlags struct {
	maskDir     string
	pattern     string
	assignments string
	output      string
	dataset     string
	algorithm   string
	plots       bool
}

// trackCmd runs the whole pipeline on a mask directory
var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Link masks into a lineage, export CTC and Napari layouts, evaluate",
	Long: `Loads per-frame label masks, obtains frame-to-frame assignment (built-in linker
or a CSV dump of an external tracker), builds the lineage graph and writes:
  - man_track.txt and man_track<NNN>.tif (all-or-nothing)
  - napari_tracks.npy and napari_tracks_graph.json
  - tracking_summary.txt
The evaluation report is printed and recorded in the run store.`,
	Args: cobra.NoArgs,
	RunE: runTrack,
}

func applyTrackFlags() {
	if trackFlags.maskDir != "" {
		cfg.Input.MaskDir = trackFlags.maskDir
	}
	if trackFlags.pattern != "" {
		cfg.Input.MaskPattern = trackFlags.pattern
	}
	if trackFlags.assignments != "" {
		cfg.Input.Assignments = trackFlags.assignments
	}
	if trackFlags.output != "" {
		cfg.Output.Dir = trackFlags.output
	}
	if trackFlags.dataset != "" {
		cfg.Dataset = trackFlags.dataset
	}
	if trackFlags.algorithm != "" {
		cfg.Tracking.Algorithm = trackFlags.algorithm
	}
	if trackFlags.plots {
		cfg.Evaluation.Plots = true
	}
}

func runTrack(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	applyTrackFlags()
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := lineage.LoadLabelStore(cfg.Input.MaskDir, cfg.Input.MaskPattern)
	if err != nil {
		return err
	}
	logger.Info("masks loaded",
		zap.String("dir", cfg.Input.MaskDir),
		zap.Int("frames", store.FrameCount()),
	)
	if store.FrameCount() == 0 {
		return &lineage.InsufficientDataError{FrameCount: 0}
	}

	oracle, err := cfg.Oracle(logger)
	if err != nil {
		return err
	}
	detections, err := oracle.Assign(ctx, store)
	if err != nil {
		return fmt.Errorf("assignment failed: %w", err)
	}
	graph, err := lineage.Build(detections)
	if err != nil {
		return err
	}
	logger.Info("lineage built",
		zap.Int("tracks", graph.Len()),
		zap.Int("detections", graph.DetectionCount()),
		zap.Int("divisions", len(graph.Divisions())),
	)

	exporter := lineage.NewCTCExporter(cfg.ExportOptions(), lineage.WithLogger(logger))
	manifest, err := exporter.Export(ctx, graph, store, cfg.Output.Dir)
	if err != nil {
		return err
	}
	logger.Info("ctc export done",
		zap.String("run_id", manifest.RunID.String()),
		zap.String("dir", manifest.OutputDir),
		zap.Int("untracked_objects", manifest.UntrackedObjects),
	)

	if cfg.Output.NapariDir != "" {
		points, parents, err := lineage.ExportNapari(graph, store)
		if err != nil {
			return err
		}
		napariDir := filepath.Join(cfg.Output.Dir, cfg.Output.NapariDir)
		if err := lineage.SaveNapari(napariDir, points, parents); err != nil {
			return err
		}
		logger.Info("napari export done", zap.String("dir", napariDir), zap.Int("points", len(points)))
	}

	summary, err := lineage.Summarize(cfg.Dataset, cfg.OracleName(), graph, store)
	if err != nil {
		return err
	}
	if err := writeSummary(filepath.Join(cfg.Output.Dir, lineage.SummaryFileName), summary); err != nil {
		return err
	}

	report, err := lineage.Evaluate(graph, store, cfg.EvaluationOptions())
	if err != nil {
		return err
	}
	if err := report.WriteText(cmd.OutOrStdout()); err != nil {
		return err
	}
	if cfg.Evaluation.Plots {
		files, err := plots.WriteAll(filepath.Join(cfg.Output.Dir, "plots"), graph, report)
		if err != nil {
			return err
		}
		logger.Info("plots written", zap.Strings("files", files))
	}

	run := runstore.NewRun(runstore.KindTrack, cfg.Dataset, report)
	run.RunID = manifest.RunID.String()
	run.Oracle = cfg.OracleName()
	run.OutputDir = manifest.OutputDir
	if params, err := json.Marshal(cfg.Tracking); err == nil {
		run.ParamsJSON = params
	}
	return recordRun(run)
}

func writeSummary(path string, summary *lineage.TrackingSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return &lineage.IOError{Op: "create", Path: path, Err: err}
	}
	if err := summary.WriteText(f); err != nil {
		f.Close()
		return &lineage.IOError{Op: "write", Path: path, Err: err}
	}
	return f.Close()
}

// recordRun stores run in the configured catalogue. No-op when store path is empty.
func recordRun(run *runstore.Run) error {
	if cfg.Store.Path == "" {
		return nil
	}
	store, err := runstore.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Insert(run); err != nil {
		return err
	}
	logger.Debug("run recorded", zap.String("run_id", run.RunID), zap.String("store", cfg.Store.Path))
	return nil
}
