package lineage

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// AssignmentOracle produces frame-to-frame object assignment for a label store.
// Implementations wrap whatever the tracking model emits into Detection records.
type AssignmentOracle interface {
	Assign(ctx context.Context, store LabelStore) ([]Detection, error)
}

// OracleFunc adapts plain function to AssignmentOracle
type OracleFunc func(ctx context.Context, store LabelStore) ([]Detection, error)

// Assign calls f(ctx, store)
func (f OracleFunc) Assign(ctx context.Context, store LabelStore) ([]Detection, error) {
	return f(ctx, store)
}

// CSVAssignments is AssignmentOracle over an assignment dump of an external model.
// Rows are "frame,label,track_id,parent_id"; parent_id 0 or empty means no parent.
// A header row is allowed.
type CSVAssignments struct {
	Path string
}

// Assign reads the dump and checks it against the store
func (c CSVAssignments) Assign(ctx context.Context, store LabelStore) ([]Detection, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: c.Path, Err: err}
	}
	defer f.Close()
	detections, err := ParseAssignments(f)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't parse assignments %s", c.Path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := CheckDetections(detections, store); err != nil {
		return nil, err
	}
	return detections, nil
}

// ParseAssignments reads assignment rows. The parent is attached to whichever rows carry it;
// Build rejects parents on anything but the first frame of a lineage.
func ParseAssignments(r io.Reader) ([]Detection, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	detections := make([]Detection, 0, len(rows))
	for i, row := range rows {
		if i == 0 && len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "frame") {
			continue
		}
		if len(row) < 3 || len(row) > 4 {
			return nil, errors.Errorf("row %d: expected 3 or 4 columns, got %d", i+1, len(row))
		}
		frame, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			return nil, errors.Wrapf(err, "row %d: frame", i+1)
		}
		label, err := strconv.ParseUint(strings.TrimSpace(row[1]), 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d: label", i+1)
		}
		trackID, err := strconv.Atoi(strings.TrimSpace(row[2]))
		if err != nil {
			return nil, errors.Wrapf(err, "row %d: track_id", i+1)
		}
		det := NewDetection(frame, uint32(label), TrackID(trackID))
		if len(row) == 4 && strings.TrimSpace(row[3]) != "" {
			parent, err := strconv.Atoi(strings.TrimSpace(row[3]))
			if err != nil {
				return nil, errors.Wrapf(err, "row %d: parent_id", i+1)
			}
			if parent != 0 {
				det = det.WithParent(TrackID(parent))
			}
		}
		detections = append(detections, det)
	}
	return detections, nil
}

// WriteAssignments writes detections in the format ParseAssignments reads, with header
func WriteAssignments(w io.Writer, detections []Detection) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"frame", "label", "track_id", "parent_id"}); err != nil {
		return err
	}
	for _, det := range detections {
		parent := 0
		if det.HasParent {
			parent = int(det.ParentLineageID)
		}
		err := writer.Write([]string{
			strconv.Itoa(det.Frame),
			strconv.FormatUint(uint64(det.SourceLabel), 10),
			strconv.Itoa(int(det.LineageID)),
			strconv.Itoa(parent),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// CheckDetections verifies detections fall inside the store's frame range and refer to existing labels
func CheckDetections(detections []Detection, store LabelStore) error {
	frameCount := store.FrameCount()
	for _, det := range detections {
		if det.Frame < 0 || det.Frame >= frameCount {
			return &ConsistencyError{Frame: det.Frame, SourceLabel: det.SourceLabel, Reason: ReasonFrameOutOfRange}
		}
		img, err := store.Frame(det.Frame)
		if err != nil {
			return &ConsistencyError{Frame: det.Frame, SourceLabel: det.SourceLabel, Reason: err.Error()}
		}
		if _, ok := img.Region(det.SourceLabel); !ok {
			return &ConsistencyError{Frame: det.Frame, SourceLabel: det.SourceLabel, Reason: ReasonEmptyFootprint}
		}
	}
	return nil
}
