package lineage

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// LengthStats describes track length distribution in frames.
type LengthStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    int     `json:"min"`
	Max    int     `json:"max"`
}

// CountStats describes per-frame object counts.
type CountStats struct {
	Min    int     `json:"min"`
	Max    int     `json:"max"`
	StdDev float64 `json:"std_dev"`
}

// EvaluationReport holds reference-free tracking quality statistics.
type EvaluationReport struct {
	FrameCount int `json:"frame_count"`
	TrackCount int `json:"track_count"`
	// Number of detections (graph nodes in per-object terms)
	DetectionCount      int         `json:"detection_count"`
	TrackLength         LengthStats `json:"track_length"`
	ShortTrackThreshold int         `json:"short_track_threshold"`
	ShortTrackCount     int         `json:"short_track_count"`
	// Mean over frames 1..N-1 of tracks starting there without a parent
	FragmentationRate float64 `json:"fragmentation_rate"`
	// Tracks starting at each frame without a parent. Entry 0 counts initial tracks.
	NewTracksPerFrame []int `json:"new_tracks_per_frame"`
	// Tracks having a parent (division edges)
	DivisionCount int `json:"division_count"`
	// Parent to child edges of the graph
	EdgeCount int `json:"edge_count"`
	// Parents with two or more children right after their last frame
	DivisionEvents int        `json:"division_events"`
	CellCount      CountStats `json:"cell_count"`
	CellCounts     []int      `json:"cell_counts"`
}

// Evaluate computes descriptive statistics from the graph and the label store only.
// Tracks outside the store's frame range count towards track statistics but never
// towards per-frame statistics.
func Evaluate(graph *Graph, store LabelStore, cfg EvaluationConfig) (*EvaluationReport, error) {
	frameCount := store.FrameCount()
	if frameCount == 0 {
		return nil, &InsufficientDataError{FrameCount: frameCount}
	}
	if cfg.ShortTrackThreshold <= 0 {
		cfg.ShortTrackThreshold = DefaultEvaluationConfig().ShortTrackThreshold
	}
	report := &EvaluationReport{
		FrameCount:          frameCount,
		TrackCount:          graph.Len(),
		DetectionCount:      graph.DetectionCount(),
		ShortTrackThreshold: cfg.ShortTrackThreshold,
		NewTracksPerFrame:   make([]int, frameCount),
		EdgeCount:           len(graph.Edges()),
		DivisionEvents:      len(graph.Divisions()),
	}

	lengths := make([]float64, 0, graph.Len())
	for _, track := range graph.tracks {
		length := track.Len()
		lengths = append(lengths, float64(length))
		if length < cfg.ShortTrackThreshold {
			report.ShortTrackCount++
		}
		if track.HasParent {
			report.DivisionCount++
			continue
		}
		if track.StartFrame < frameCount {
			report.NewTracksPerFrame[track.StartFrame]++
		}
	}
	report.TrackLength = lengthStats(lengths)

	if frameCount > 1 {
		spontaneous := make([]float64, 0, frameCount-1)
		for _, n := range report.NewTracksPerFrame[1:] {
			spontaneous = append(spontaneous, float64(n))
		}
		report.FragmentationRate = stat.Mean(spontaneous, nil)
	}

	counts, err := ObjectCounts(store)
	if err != nil {
		return nil, err
	}
	report.CellCounts = counts
	report.CellCount = countStats(counts)
	return report, nil
}

func lengthStats(lengths []float64) LengthStats {
	if len(lengths) == 0 {
		return LengthStats{}
	}
	sorted := append([]float64(nil), lengths...)
	sort.Float64s(sorted)
	return LengthStats{
		Mean:   stat.Mean(sorted, nil),
		Median: median(sorted),
		Min:    int(floats.Min(sorted)),
		Max:    int(floats.Max(sorted)),
	}
}

// median of sorted non-empty values; even sizes average the middle pair
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func countStats(counts []int) CountStats {
	values := make([]float64, len(counts))
	for i, c := range counts {
		values[i] = float64(c)
	}
	_, std := stat.PopMeanStdDev(values, nil)
	return CountStats{
		Min:    int(floats.Min(values)),
		Max:    int(floats.Max(values)),
		StdDev: std,
	}
}

// WriteText renders the report for humans
func (r *EvaluationReport) WriteText(w io.Writer) error {
	rule := strings.Repeat("=", 50)
	var b strings.Builder
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "TRACKING EVALUATION (No Ground Truth)")
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "\nBasic Statistics:")
	fmt.Fprintf(&b, "  - Number of frames: %d\n", r.FrameCount)
	fmt.Fprintf(&b, "  - Total tracks: %d\n", r.TrackCount)
	fmt.Fprintf(&b, "  - Total detections: %d\n", r.DetectionCount)
	fmt.Fprintln(&b, "\nTrack Length Statistics:")
	fmt.Fprintf(&b, "  - Average track length: %.1f frames\n", r.TrackLength.Mean)
	fmt.Fprintf(&b, "  - Median track length: %.1f frames\n", r.TrackLength.Median)
	fmt.Fprintf(&b, "  - Min/Max track length: %d/%d frames\n", r.TrackLength.Min, r.TrackLength.Max)
	fmt.Fprintf(&b, "  - Tracks < %d frames (suspicious): %d\n", r.ShortTrackThreshold, r.ShortTrackCount)
	fmt.Fprintln(&b, "\nLineage:")
	fmt.Fprintf(&b, "  - Tracks born from division: %d\n", r.DivisionCount)
	fmt.Fprintf(&b, "  - Division events: %d\n", r.DivisionEvents)
	fmt.Fprintln(&b, "\nFragmentation Indicators:")
	fmt.Fprintf(&b, "  - Avg new tracks per frame without parent: %.2f\n", r.FragmentationRate)
	fmt.Fprintln(&b, "\nCell Count Consistency:")
	fmt.Fprintf(&b, "  - Cell count range: %d - %d\n", r.CellCount.Min, r.CellCount.Max)
	fmt.Fprintf(&b, "  - Cell count std dev: %.2f\n", r.CellCount.StdDev)
	fmt.Fprintln(&b, rule)
	_, err := io.WriteString(w, b.String())
	return err
}
