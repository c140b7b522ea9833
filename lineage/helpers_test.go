package lineage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	fixtureSize = 20
	squareSize  = 2
)

// obj is one object of a fixture frame
type obj struct {
	label  uint32
	track  TrackID
	parent TrackID
}

// squareOrigin places label on a 5x5 grid of 2x2 squares
func squareOrigin(label uint32) (int, int) {
	idx := int(label - 1)
	return (idx % 5) * 4, (idx / 5) * 4
}

func drawSquare(img *LabelImage, label uint32) {
	x0, y0 := squareOrigin(label)
	for y := y0; y < y0+squareSize; y++ {
		for x := x0; x < x0+squareSize; x++ {
			img.Set(x, y, label)
		}
	}
}

// fixture builds label store and detection stream. Objects with track 0 are drawn
// but not tracked. A parent is attached to the first appearance of a track.
func fixture(t *testing.T, frames [][]obj) (*MemoryLabelStore, []Detection) {
	t.Helper()
	images := make([]*LabelImage, len(frames))
	detections := make([]Detection, 0)
	seen := make(map[TrackID]bool)
	for f, objects := range frames {
		img := NewLabelImage(fixtureSize, fixtureSize)
		for _, o := range objects {
			require.True(t, o.label >= 1 && o.label <= 25, "label %d does not fit fixture grid", o.label)
			drawSquare(img, o.label)
			if o.track == 0 {
				continue
			}
			det := NewDetection(f, o.label, o.track)
			if !seen[o.track] && o.parent != 0 {
				det = det.WithParent(o.parent)
			}
			seen[o.track] = true
			detections = append(detections, det)
		}
		images[f] = img
	}
	return NewMemoryLabelStore(images...), detections
}

// countFrame returns image holding n single-square objects
func countFrame(n int) *LabelImage {
	img := NewLabelImage(fixtureSize, fixtureSize)
	for label := 1; label <= n; label++ {
		drawSquare(img, uint32(label))
	}
	return img
}

// divisionFixture: track 1 lives f0-f1 and divides into 2 and 3 at f2,
// track 4 appears at f1 and track 5 at f3, both without parent.
func divisionFixture(t *testing.T) (*MemoryLabelStore, []Detection) {
	return fixture(t, [][]obj{
		{{label: 1, track: 1}},
		{{label: 1, track: 1}, {label: 4, track: 4}},
		{{label: 2, track: 2, parent: 1}, {label: 3, track: 3, parent: 1}, {label: 4, track: 4}},
		{{label: 2, track: 2}, {label: 3, track: 3}, {label: 4, track: 4}, {label: 5, track: 5}},
	})
}

func mustBuild(t *testing.T, detections []Detection) *Graph {
	t.Helper()
	graph, err := Build(detections)
	require.NoError(t, err)
	return graph
}
