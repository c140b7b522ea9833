// Package plots renders evaluation charts as PNG files.
package plots

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/LdDl/lineage-go/lineage"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const (
	TrackLengthFile = "track_lengths.png"
	CellCountFile   = "cell_counts.png"
)

// ErrNothingToPlot is returned when a chart would have no data
var ErrNothingToPlot = errors.New("nothing to plot")

var (
	cellCountColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	newTrackColor  = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// TrackLengths returns length in frames of every track in listing order
func TrackLengths(graph *lineage.Graph) plotter.Values {
	tracks := graph.Tracks()
	values := make(plotter.Values, len(tracks))
	for i, track := range tracks {
		values[i] = float64(track.Len())
	}
	return values
}

// TrackLengthHistogram saves histogram of track lengths
func TrackLengthHistogram(graph *lineage.Graph, file string) error {
	lengths := TrackLengths(graph)
	if len(lengths) == 0 {
		return fmt.Errorf("track lengths: %w", ErrNothingToPlot)
	}
	p := plot.New()
	p.Title.Text = "Track length distribution"
	p.X.Label.Text = "Track length (frames)"
	p.Y.Label.Text = "Tracks"

	maxLen := 0.0
	for _, v := range lengths {
		if v > maxLen {
			maxLen = v
		}
	}
	bins := int(maxLen)
	if bins < 1 {
		bins = 1
	}
	hist, err := plotter.NewHist(lengths, bins)
	if err != nil {
		return fmt.Errorf("failed to create histogram: %w", err)
	}
	hist.FillColor = cellCountColor
	p.Add(hist)
	if err := p.Save(8*vg.Inch, 5*vg.Inch, file); err != nil {
		return fmt.Errorf("failed to save %s: %w", file, err)
	}
	return nil
}

// CellCountSeries saves per-frame cell counts along with parentless track starts
func CellCountSeries(report *lineage.EvaluationReport, file string) error {
	if len(report.CellCounts) == 0 {
		return fmt.Errorf("cell counts: %w", ErrNothingToPlot)
	}
	p := plot.New()
	p.Title.Text = "Cells per frame"
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Count"

	countPts := make(plotter.XYs, len(report.CellCounts))
	for i, c := range report.CellCounts {
		countPts[i] = plotter.XY{X: float64(i), Y: float64(c)}
	}
	countLine, err := plotter.NewLine(countPts)
	if err != nil {
		return fmt.Errorf("failed to create cell count line: %w", err)
	}
	countLine.Color = cellCountColor
	countLine.Width = vg.Points(1.5)
	p.Add(countLine)
	p.Legend.Add("cells", countLine)

	if len(report.NewTracksPerFrame) > 0 {
		newPts := make(plotter.XYs, len(report.NewTracksPerFrame))
		for i, c := range report.NewTracksPerFrame {
			newPts[i] = plotter.XY{X: float64(i), Y: float64(c)}
		}
		newLine, err := plotter.NewLine(newPts)
		if err != nil {
			return fmt.Errorf("failed to create new track line: %w", err)
		}
		newLine.Color = newTrackColor
		newLine.Width = vg.Points(1)
		p.Add(newLine)
		p.Legend.Add("new tracks without parent", newLine)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	if err := p.Save(10*vg.Inch, 5*vg.Inch, file); err != nil {
		return fmt.Errorf("failed to save %s: %w", file, err)
	}
	return nil
}

// WriteAll renders every chart into dir and returns created files.
// Charts without data are skipped.
func WriteAll(dir string, graph *lineage.Graph, report *lineage.EvaluationReport) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create plot dir: %w", err)
	}
	files := make([]string, 0, 2)
	charts := []struct {
		file   string
		render func(file string) error
	}{
		{TrackLengthFile, func(file string) error { return TrackLengthHistogram(graph, file) }},
		{CellCountFile, func(file string) error { return CellCountSeries(report, file) }},
	}
	for _, chart := range charts {
		file := filepath.Join(dir, chart.file)
		err := chart.render(file)
		if errors.Is(err, ErrNothingToPlot) {
			continue
		}
		if err != nil {
			return files, err
		}
		files = append(files, file)
	}
	return files, nil
}
