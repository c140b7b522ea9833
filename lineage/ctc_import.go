package lineage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// TrackRecord is one line of a CTC track table. Parent 0 means no parent.
type TrackRecord struct {
	ID         TrackID
	StartFrame int
	EndFrame   int
	Parent     TrackID
}

// TrackRecords converts graph into track table rows in listing order
func TrackRecords(graph *Graph) []TrackRecord {
	records := make([]TrackRecord, 0, graph.Len())
	for _, track := range graph.tracks {
		record := TrackRecord{ID: track.ID, StartFrame: track.StartFrame, EndFrame: track.EndFrame}
		if track.HasParent {
			record.Parent = track.ParentID
		}
		records = append(records, record)
	}
	return records
}

// ParseTrackTable reads whitespace separated "id start end parent" lines. Blank lines are skipped.
func ParseTrackTable(r io.Reader) ([]TrackRecord, error) {
	records := make([]TrackRecord, 0)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 4 {
			return nil, fmt.Errorf("track table line %d: expected 4 fields, got %d", lineNo, len(fields))
		}
		values := [4]int{}
		for i, field := range fields {
			v, err := strconv.Atoi(field)
			if err != nil {
				return nil, errors.Wrapf(err, "track table line %d", lineNo)
			}
			values[i] = v
		}
		records = append(records, TrackRecord{
			ID:         TrackID(values[0]),
			StartFrame: values[1],
			EndFrame:   values[2],
			Parent:     TrackID(values[3]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "Can't scan track table")
	}
	return records, nil
}

// ReadTrackTable parses track table file
func ReadTrackTable(path string) ([]TrackRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()
	return ParseTrackTable(f)
}

// FindTrackTable returns res_track.txt in dir if present, man_track.txt otherwise
func FindTrackTable(dir string) (string, error) {
	for _, name := range []string{ResultTrackTableName, TrackTableName} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", &IOError{Op: "open", Path: filepath.Join(dir, TrackTableName), Err: os.ErrNotExist}
}

// MaskPatternFor returns glob of mask files that belong to given track table:
// mask*.tif for res_track.txt, man_track*.tif for man_track.txt
func MaskPatternFor(tablePath string) string {
	if filepath.Base(tablePath) == ResultTrackTableName {
		return ResultMaskPrefix + "*" + MaskExt
	}
	return MaskPrefix + "*" + MaskExt
}

// DetectionsFromCTC turns relabeled masks back into a detection stream: every mask label
// is a track id and parents come from the track table.
func DetectionsFromCTC(records []TrackRecord, store LabelStore) ([]Detection, error) {
	parents := make(map[TrackID]TrackID, len(records))
	for _, record := range records {
		if record.Parent != 0 {
			parents[record.ID] = record.Parent
		}
	}
	seen := make(map[TrackID]bool)
	detections := make([]Detection, 0)
	for frame := 0; frame < store.FrameCount(); frame++ {
		img, err := store.Frame(frame)
		if err != nil {
			return nil, err
		}
		for _, label := range img.ObjectLabels() {
			id := TrackID(label)
			det := NewDetection(frame, label, id)
			if !seen[id] {
				seen[id] = true
				if parent, ok := parents[id]; ok {
					det = det.WithParent(parent)
				}
			}
			detections = append(detections, det)
		}
	}
	return detections, nil
}

// LoadCTC reads a CTC folder (track table plus relabeled masks matching maskPattern)
// and rebuilds the lineage graph. The table must agree with the masks.
// Empty maskPattern means the one matching the table found, see MaskPatternFor.
func LoadCTC(dir, maskPattern string) (*Graph, *MemoryLabelStore, error) {
	tablePath, err := FindTrackTable(dir)
	if err != nil {
		return nil, nil, err
	}
	if maskPattern == "" {
		maskPattern = MaskPatternFor(tablePath)
	}
	records, err := ReadTrackTable(tablePath)
	if err != nil {
		return nil, nil, err
	}
	store, err := LoadLabelStore(dir, maskPattern)
	if err != nil {
		return nil, nil, err
	}
	detections, err := DetectionsFromCTC(records, store)
	if err != nil {
		return nil, nil, err
	}
	graph, err := Build(detections)
	if err != nil {
		return nil, nil, err
	}
	if err := verifyTrackTable(graph, records); err != nil {
		return nil, nil, err
	}
	return graph, store, nil
}

func verifyTrackTable(graph *Graph, records []TrackRecord) error {
	for _, record := range records {
		track, ok := graph.Track(record.ID)
		if !ok {
			return &ConsistencyError{Frame: record.StartFrame, SourceLabel: uint32(record.ID), Reason: "track table entry has no mask pixels"}
		}
		if track.StartFrame != record.StartFrame || track.EndFrame != record.EndFrame {
			return &ConsistencyError{
				Frame:       record.StartFrame,
				SourceLabel: uint32(record.ID),
				Reason:      fmt.Sprintf("track table says frames %d..%d, masks say %d..%d", record.StartFrame, record.EndFrame, track.StartFrame, track.EndFrame),
			}
		}
	}
	if len(records) != graph.Len() {
		return &ConsistencyError{Frame: -1, Reason: fmt.Sprintf("masks hold %d tracks, track table lists %d", graph.Len(), len(records))}
	}
	return nil
}
