package mot

import (
	"context"
	"testing"

	"github.com/LdDl/lineage-go/lineage"
)

func region(label uint32, x, y, w, h float64) lineage.Region {
	bbox := lineage.NewRect(x, y, w, h)
	return lineage.Region{
		Label:    label,
		Area:     int(w * h),
		Centroid: bbox.Center(),
		BBox:     bbox,
	}
}

func TestNewLinker(t *testing.T) {
	linker := NewLinker[*CellBlob](MatchingAlgorithmGreedy, 0.4, 0.2)

	if linker == nil {
		t.Fatal("NewLinker returned nil")
	}

	if linker.minScore != 0.4 {
		t.Errorf("Expected minScore 0.4, got %f", linker.minScore)
	}

	if linker.divisionScore != 0.2 {
		t.Errorf("Expected divisionScore 0.2, got %f", linker.divisionScore)
	}

	if linker.algorithm != MatchingAlgorithmGreedy {
		t.Errorf("Expected greedy algorithm, got %s", linker.algorithm)
	}
}

func TestNewDefaultLinker(t *testing.T) {
	linker := NewDefaultLinker[*CellBlob]()

	if linker.minScore != DefaultMinScore {
		t.Errorf("Expected default minScore %f, got %f", DefaultMinScore, linker.minScore)
	}

	if linker.algorithm != MatchingAlgorithmHungarian {
		t.Errorf("Expected default algorithm hungarian, got %s", linker.algorithm)
	}
}

func TestLinkerMovingCell(t *testing.T) {
	for _, algorithm := range []MatchingAlgorithm{MatchingAlgorithmHungarian, MatchingAlgorithmGreedy} {
		linker := NewLinker[*CellBlob](algorithm, DefaultMinScore, DefaultDivisionScore)
		for frame := 0; frame < 5; frame++ {
			blob := NewCellBlob(region(7, 20+float64(frame), 20, 10, 10), frame)
			err := linker.MatchObjects(frame, []*CellBlob{blob})
			if err != nil {
				t.Fatalf("%s: frame %d failed: %v", algorithm, frame, err)
			}
		}

		if len(linker.Objects) != 1 {
			t.Errorf("%s: expected 1 object, got %d", algorithm, len(linker.Objects))
		}

		detections := linker.Detections()
		if len(detections) != 5 {
			t.Fatalf("%s: expected 5 detections, got %d", algorithm, len(detections))
		}
		for i, det := range detections {
			if det.LineageID != 1 || det.Frame != i || det.SourceLabel != 7 || det.HasParent {
				t.Errorf("%s: unexpected detection %d: %+v", algorithm, i, det)
			}
		}

		if track := linker.Objects[1].GetTrack(); len(track) != 5 {
			t.Errorf("%s: object track should have 5 points, got %d", algorithm, len(track))
		}
	}
}

func TestLinkerSeparateCells(t *testing.T) {
	linker := NewDefaultLinker[*CellBlob]()
	for frame := 0; frame < 3; frame++ {
		blobs := []*CellBlob{
			NewCellBlob(region(1, 10, 10, 8, 8), frame),
			NewCellBlob(region(2, 200, 200, 8, 8), frame),
		}
		err := linker.MatchObjects(frame, blobs)
		if err != nil {
			t.Fatalf("Frame %d failed: %v", frame, err)
		}
	}

	if len(linker.Objects) != 2 {
		t.Fatalf("Expected 2 objects, got %d", len(linker.Objects))
	}
	if linker.Objects[1].GetLabel() != 1 || linker.Objects[2].GetLabel() != 2 {
		t.Errorf("Tracks swapped cells: track 1 has label %d, track 2 has label %d", linker.Objects[1].GetLabel(), linker.Objects[2].GetLabel())
	}
}

func TestLinkerDivision(t *testing.T) {
	for _, algorithm := range []MatchingAlgorithm{MatchingAlgorithmHungarian, MatchingAlgorithmGreedy} {
		linker := NewLinker[*CellBlob](algorithm, DefaultMinScore, DefaultDivisionScore)
		err := linker.MatchObjects(0, []*CellBlob{NewCellBlob(region(1, 0, 0, 10, 10), 0)})
		if err != nil {
			t.Fatalf("%s: frame 0 failed: %v", algorithm, err)
		}
		// The cell splits into top and bottom halves
		err = linker.MatchObjects(1, []*CellBlob{
			NewCellBlob(region(1, 0, 0, 10, 5), 1),
			NewCellBlob(region(2, 0, 5, 10, 5), 1),
		})
		if err != nil {
			t.Fatalf("%s: frame 1 failed: %v", algorithm, err)
		}

		graph, err := lineage.Build(linker.Detections())
		if err != nil {
			t.Fatalf("%s: build failed: %v", algorithm, err)
		}
		if graph.Len() != 3 {
			t.Fatalf("%s: expected 3 tracks, got %d", algorithm, graph.Len())
		}
		children := graph.Children(1)
		if len(children) != 2 {
			t.Fatalf("%s: expected 2 children of track 1, got %v", algorithm, children)
		}
		if divisions := graph.Divisions(); len(divisions) != 1 {
			t.Errorf("%s: expected 1 division event, got %d", algorithm, len(divisions))
		}
		if _, ok := linker.Objects[1]; ok {
			t.Errorf("%s: parent track should be retired after division", algorithm)
		}
	}
}

func TestLinkerRetiresLostTracks(t *testing.T) {
	linker := NewDefaultLinker[*CellBlob]()
	frames := [][]*CellBlob{
		{NewCellBlob(region(1, 10, 10, 8, 8), 0)},
		{NewCellBlob(region(1, 10, 10, 8, 8), 1)},
		{},
		{NewCellBlob(region(1, 10, 10, 8, 8), 3)},
	}
	for frame, blobs := range frames {
		err := linker.MatchObjects(frame, blobs)
		if err != nil {
			t.Fatalf("Frame %d failed: %v", frame, err)
		}
	}

	graph, err := lineage.Build(linker.Detections())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if graph.Len() != 2 {
		t.Fatalf("Expected 2 tracks, got %d", graph.Len())
	}
	second, ok := graph.Track(2)
	if !ok {
		t.Fatal("Track 2 not found")
	}
	if second.StartFrame != 3 || second.HasParent {
		t.Errorf("Expected parentless track starting at frame 3, got %+v", second)
	}
}

func TestLinkerFrameOrder(t *testing.T) {
	linker := NewDefaultLinker[*CellBlob]()
	err := linker.MatchObjects(1, nil)
	if err == nil {
		t.Error("Expected error for frame passed out of order")
	}
}

func TestParseMatchingAlgorithm(t *testing.T) {
	for _, algorithm := range []MatchingAlgorithm{MatchingAlgorithmHungarian, MatchingAlgorithmGreedy} {
		parsed, err := ParseMatchingAlgorithm(algorithm.String())
		if err != nil {
			t.Fatalf("Can't parse %s: %v", algorithm, err)
		}
		if parsed != algorithm {
			t.Errorf("Expected %s, got %s", algorithm, parsed)
		}
	}
	if _, err := ParseMatchingAlgorithm("bytetrack"); err == nil {
		t.Error("Expected error for unknown algorithm")
	}
}

func TestMatchScore(t *testing.T) {
	box := lineage.NewRect(10, 10, 10, 10)
	if score := MatchScore(box, box); score != 1.0 {
		t.Errorf("Expected score 1.0 for identical boxes, got %f", score)
	}
	far := lineage.NewRect(500, 500, 10, 10)
	if score := MatchScore(box, far); score > 0.05 {
		t.Errorf("Expected tiny score for distant boxes, got %f", score)
	}
}

func TestCellBlobUpdate(t *testing.T) {
	blob := NewCellBlob(region(3, 0, 0, 4, 4), 0)
	blob.PredictNextPosition()
	err := blob.Update(NewCellBlob(region(5, 1, 0, 4, 4), 1))
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if blob.GetLabel() != 5 || blob.GetFrame() != 1 {
		t.Errorf("Expected label 5 at frame 1, got label %d at frame %d", blob.GetLabel(), blob.GetFrame())
	}
	if len(blob.GetTrack()) != 2 {
		t.Errorf("Expected 2 track points, got %d", len(blob.GetTrack()))
	}
	if center := blob.GetCenter(); center.X != 3 || center.Y != 2 {
		t.Errorf("Expected center (3, 2), got (%f, %f)", center.X, center.Y)
	}
}

func splitStore() *lineage.MemoryLabelStore {
	first := lineage.NewLabelImage(30, 30)
	second := lineage.NewLabelImage(30, 30)
	for y := 5; y < 15; y++ {
		for x := 5; x < 15; x++ {
			first.Set(x, y, 4)
			if y < 10 {
				second.Set(x, y, 1)
			} else {
				second.Set(x, y, 2)
			}
		}
	}
	return lineage.NewMemoryLabelStore(first, second)
}

func TestCellOracle(t *testing.T) {
	oracle := NewDefaultCellOracle()
	var _ lineage.AssignmentOracle = oracle

	detections, err := oracle.Assign(context.Background(), splitStore())
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if len(detections) != 3 {
		t.Fatalf("Expected 3 detections, got %d", len(detections))
	}
	graph, err := lineage.Build(detections)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(graph.Edges()) != 2 {
		t.Errorf("Expected 2 division edges, got %d", len(graph.Edges()))
	}
}

func TestCellOracleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDefaultCellOracle().Assign(ctx, splitStore())
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
