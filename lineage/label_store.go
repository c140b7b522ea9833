package lineage

import (
	"fmt"
	"sort"
	"sync"
)

// LabelStore gives random access to per-frame label images.
// Frames are indexed 0..FrameCount()-1.
type LabelStore interface {
	FrameCount() int
	Frame(index int) (*LabelImage, error)
}

// Region holds footprint statistics of one label in one frame.
type Region struct {
	Label uint32
	// Number of pixels
	Area int
	// Mean pixel index (row, column) of the footprint
	Centroid Point
	// Tight bounding box of the footprint
	BBox Rectangle
}

// LabelImage is a 2D label raster: 0 is background, positive values are object labels.
// Treat it as read-only once it is handed to a LabelStore.
type LabelImage struct {
	Width  int
	Height int
	// Row-major labels, len == Width*Height
	Labels []uint32

	regionsOnce sync.Once
	regions     map[uint32]Region
}

// NewLabelImage creates zero (background only) label image
func NewLabelImage(width, height int) *LabelImage {
	return &LabelImage{
		Width:  width,
		Height: height,
		Labels: make([]uint32, width*height),
	}
}

// NewLabelImageFromRows builds label image from rows of equal length
func NewLabelImageFromRows(rows [][]uint32) (*LabelImage, error) {
	if len(rows) == 0 {
		return NewLabelImage(0, 0), nil
	}
	width := len(rows[0])
	img := NewLabelImage(width, len(rows))
	for y, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", y, len(row), width)
		}
		copy(img.Labels[y*width:], row)
	}
	return img, nil
}

// At returns label at column x, row y
func (img *LabelImage) At(x, y int) uint32 {
	return img.Labels[y*img.Width+x]
}

// Set sets label at column x, row y. Must not be called after regions were requested.
func (img *LabelImage) Set(x, y int, label uint32) {
	img.Labels[y*img.Width+x] = label
}

// Regions returns footprint statistics for every non-background label
func (img *LabelImage) Regions() map[uint32]Region {
	img.regionsOnce.Do(func() {
		img.regions = computeRegions(img)
	})
	return img.regions
}

// Region returns footprint of the label. False if label has no pixels.
func (img *LabelImage) Region(label uint32) (Region, bool) {
	if label == 0 {
		return Region{}, false
	}
	region, ok := img.Regions()[label]
	return region, ok
}

// ObjectLabels returns sorted non-background labels present in the image
func (img *LabelImage) ObjectLabels() []uint32 {
	regions := img.Regions()
	labels := make([]uint32, 0, len(regions))
	for label := range regions {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

// ObjectCount returns number of distinct non-background labels
func (img *LabelImage) ObjectCount() int {
	return len(img.Regions())
}

type regionAccumulator struct {
	area       int
	sumX, sumY float64
	minX, minY int
	maxX, maxY int
}

func computeRegions(img *LabelImage) map[uint32]Region {
	acc := make(map[uint32]*regionAccumulator)
	for y := 0; y < img.Height; y++ {
		row := img.Labels[y*img.Width : (y+1)*img.Width]
		for x, label := range row {
			if label == 0 {
				continue
			}
			a, ok := acc[label]
			if !ok {
				a = &regionAccumulator{minX: x, minY: y, maxX: x, maxY: y}
				acc[label] = a
			}
			a.area++
			a.sumX += float64(x)
			a.sumY += float64(y)
			if x < a.minX {
				a.minX = x
			}
			if x > a.maxX {
				a.maxX = x
			}
			if y < a.minY {
				a.minY = y
			}
			if y > a.maxY {
				a.maxY = y
			}
		}
	}
	regions := make(map[uint32]Region, len(acc))
	for label, a := range acc {
		n := float64(a.area)
		regions[label] = Region{
			Label:    label,
			Area:     a.area,
			Centroid: Point{X: a.sumX / n, Y: a.sumY / n},
			BBox:     NewRect(float64(a.minX), float64(a.minY), float64(a.maxX-a.minX+1), float64(a.maxY-a.minY+1)),
		}
	}
	return regions
}

// MemoryLabelStore is LabelStore over in-memory images.
type MemoryLabelStore struct {
	frames []*LabelImage
}

// NewMemoryLabelStore creates store from frames in order
func NewMemoryLabelStore(frames ...*LabelImage) *MemoryLabelStore {
	return &MemoryLabelStore{frames: frames}
}

// FrameCount returns number of frames
func (store *MemoryLabelStore) FrameCount() int {
	return len(store.frames)
}

// Frame returns frame by index
func (store *MemoryLabelStore) Frame(index int) (*LabelImage, error) {
	if index < 0 || index >= len(store.frames) {
		return nil, fmt.Errorf("frame %d out of range [0, %d)", index, len(store.frames))
	}
	return store.frames[index], nil
}

// ObjectCounts returns number of objects per frame of the store
func ObjectCounts(store LabelStore) ([]int, error) {
	counts := make([]int, store.FrameCount())
	for i := range counts {
		img, err := store.Frame(i)
		if err != nil {
			return nil, err
		}
		counts[i] = img.ObjectCount()
	}
	return counts, nil
}
