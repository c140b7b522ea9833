package lineage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

const (
	// NapariTracksName is file with point rows
	NapariTracksName = "napari_tracks.npy"
	// NapariGraphName is file with parent mapping
	NapariGraphName = "napari_tracks_graph.json"
)

// TrackPoint is one row of the napari tracks layer: track id, frame and centroid.
type TrackPoint struct {
	TrackID TrackID
	Frame   int
	Y       float64
	X       float64
}

// PointTrackArray holds rows ordered by (track id, frame).
type PointTrackArray []TrackPoint

// ParentMap maps child track id to parent track id. Tracks without parent are absent.
type ParentMap map[TrackID]TrackID

// ExportNapari builds napari tracks layer data from the graph. Coordinates are
// footprint centroids taken from the label store.
func ExportNapari(graph *Graph, store LabelStore) (PointTrackArray, ParentMap, error) {
	points := make(PointTrackArray, 0, graph.DetectionCount())
	parents := make(ParentMap)
	frameCount := store.FrameCount()
	for _, id := range graph.TrackIDs() {
		track := graph.tracks[graph.index[id]]
		if track.HasParent {
			parents[track.ID] = track.ParentID
		}
		for frame := track.StartFrame; frame <= track.EndFrame; frame++ {
			label, _ := track.LabelAt(frame)
			if frame >= frameCount {
				return nil, nil, &ConsistencyError{Frame: frame, SourceLabel: label, Reason: ReasonFrameOutOfRange}
			}
			img, err := store.Frame(frame)
			if err != nil {
				return nil, nil, &ConsistencyError{Frame: frame, SourceLabel: label, Reason: err.Error()}
			}
			region, ok := img.Region(label)
			if !ok {
				return nil, nil, &ConsistencyError{Frame: frame, SourceLabel: label, Reason: ReasonEmptyFootprint}
			}
			points = append(points, TrackPoint{
				TrackID: track.ID,
				Frame:   frame,
				Y:       region.Centroid.Y,
				X:       region.Centroid.X,
			})
		}
	}
	return points, parents, nil
}

// Matrix returns rows as N x 4 matrix [track_id, frame, y, x]. Nil for no rows.
func (points PointTrackArray) Matrix() *mat.Dense {
	if len(points) == 0 {
		return nil
	}
	data := make([]float64, 0, len(points)*4)
	for _, p := range points {
		data = append(data, float64(p.TrackID), float64(p.Frame), p.Y, p.X)
	}
	return mat.NewDense(len(points), 4, data)
}

// PointsFromMatrix converts N x 4 matrix back to rows
func PointsFromMatrix(m mat.Matrix) (PointTrackArray, error) {
	rows, cols := m.Dims()
	if cols != 4 {
		return nil, fmt.Errorf("napari tracks must have 4 columns, got %d", cols)
	}
	points := make(PointTrackArray, rows)
	for i := 0; i < rows; i++ {
		points[i] = TrackPoint{
			TrackID: TrackID(m.At(i, 0)),
			Frame:   int(m.At(i, 1)),
			Y:       m.At(i, 2),
			X:       m.At(i, 3),
		}
	}
	return points, nil
}

// SaveNapari writes napari_tracks.npy (float64 N x 4) and napari_tracks_graph.json
// ({child: [parent]}, the napari tracks graph layout) into dir.
func SaveNapari(dir string, points PointTrackArray, parents ParentMap) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Op: "create", Path: dir, Err: err}
	}
	tracksPath := filepath.Join(dir, NapariTracksName)
	f, err := os.Create(tracksPath)
	if err != nil {
		return &IOError{Op: "create", Path: tracksPath, Err: err}
	}
	var payload interface{} = []float64{}
	if m := points.Matrix(); m != nil {
		payload = m
	}
	if err := npyio.Write(f, payload); err != nil {
		f.Close()
		return &IOError{Op: "write", Path: tracksPath, Err: errors.Wrap(err, "Can't encode npy")}
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "close", Path: tracksPath, Err: err}
	}

	graphPath := filepath.Join(dir, NapariGraphName)
	napariGraph := make(map[TrackID][]TrackID, len(parents))
	for child, parent := range parents {
		napariGraph[child] = []TrackID{parent}
	}
	data, err := json.MarshalIndent(napariGraph, "", "  ")
	if err != nil {
		return errors.Wrap(err, "Can't encode napari graph")
	}
	if err := os.WriteFile(graphPath, data, 0o644); err != nil {
		return &IOError{Op: "write", Path: graphPath, Err: err}
	}
	return nil
}

// LoadNapari reads artifacts written by SaveNapari
func LoadNapari(dir string) (PointTrackArray, ParentMap, error) {
	tracksPath := filepath.Join(dir, NapariTracksName)
	f, err := os.Open(tracksPath)
	if err != nil {
		return nil, nil, &IOError{Op: "open", Path: tracksPath, Err: err}
	}
	defer f.Close()
	reader, err := npyio.NewReader(f)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "Can't read npy header of %s", tracksPath)
	}
	points := PointTrackArray{}
	if shapeSize(reader.Header.Descr.Shape) > 0 {
		var m mat.Dense
		if err := reader.Read(&m); err != nil {
			return nil, nil, errors.Wrapf(err, "Can't read %s", tracksPath)
		}
		points, err = PointsFromMatrix(&m)
		if err != nil {
			return nil, nil, err
		}
	}

	graphPath := filepath.Join(dir, NapariGraphName)
	data, err := os.ReadFile(graphPath)
	if err != nil {
		return nil, nil, &IOError{Op: "open", Path: graphPath, Err: err}
	}
	napariGraph := make(map[TrackID][]TrackID)
	if err := json.Unmarshal(data, &napariGraph); err != nil {
		return nil, nil, errors.Wrapf(err, "Can't parse %s", graphPath)
	}
	parents := make(ParentMap, len(napariGraph))
	for child, list := range napariGraph {
		if len(list) != 1 {
			return nil, nil, fmt.Errorf("track %d has %d parents in %s", child, len(list), graphPath)
		}
		parents[child] = list[0]
	}
	return points, parents, nil
}

// SortedChildren returns child ids of the map in ascending order
func (parents ParentMap) SortedChildren() []TrackID {
	children := make([]TrackID, 0, len(parents))
	for child := range parents {
		children = append(children, child)
	}
	sort.Slice(children, func(i, j int) bool { return children[i] < children[j] })
	return children
}

func shapeSize(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
