package lineage

import (
	"fmt"
	"io"
	"strings"
)

// SummaryFileName is the tracking summary written next to exported results
const SummaryFileName = "tracking_summary.txt"

// TrackingSummary describes a tracking run in terms of the per-object graph:
// nodes are detections, edges link consecutive detections of a track and
// a parent's last detection to each daughter's first one.
type TrackingSummary struct {
	Dataset     string
	Oracle      string
	FrameCount  int
	TrackCount  int
	NodeCount   int
	EdgeCount   int
	Divisions   int
	ImageWidth  int
	ImageHeight int
}

// Summarize builds summary of graph over store
func Summarize(dataset, oracle string, graph *Graph, store LabelStore) (*TrackingSummary, error) {
	summary := &TrackingSummary{
		Dataset:    dataset,
		Oracle:     oracle,
		FrameCount: store.FrameCount(),
		TrackCount: graph.Len(),
		NodeCount:  graph.DetectionCount(),
		Divisions:  len(graph.Divisions()),
	}
	for _, track := range graph.tracks {
		summary.EdgeCount += track.Len() - 1
	}
	summary.EdgeCount += len(graph.Edges())
	if summary.FrameCount > 0 {
		img, err := store.Frame(0)
		if err != nil {
			return nil, err
		}
		summary.ImageWidth, summary.ImageHeight = img.Width, img.Height
	}
	return summary, nil
}

// WriteText writes "key: value" lines under a title
func (s *TrackingSummary) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintln(&b, "Cell Lineage Tracking Summary")
	fmt.Fprintln(&b, strings.Repeat("=", 60))
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "dataset: %s\n", s.Dataset)
	fmt.Fprintf(&b, "oracle: %s\n", s.Oracle)
	fmt.Fprintf(&b, "n_frames: %d\n", s.FrameCount)
	fmt.Fprintf(&b, "n_tracks: %d\n", s.TrackCount)
	fmt.Fprintf(&b, "n_nodes: %d\n", s.NodeCount)
	fmt.Fprintf(&b, "n_edges: %d\n", s.EdgeCount)
	fmt.Fprintf(&b, "n_divisions: %d\n", s.Divisions)
	fmt.Fprintf(&b, "image_shape: (%d, %d, %d)\n", s.FrameCount, s.ImageHeight, s.ImageWidth)
	_, err := io.WriteString(w, b.String())
	return err
}
