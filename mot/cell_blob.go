package mot

import (
	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/LdDl/lineage-go/lineage"
	"github.com/pkg/errors"
)

// CellBlob is a segmented cell followed by 2D Kalman filter over its centroid.
// It implements Blob[*CellBlob] interface.
type CellBlob struct {
	id                    lineage.TrackID
	parentID              lineage.TrackID
	hasParent             bool
	label                 uint32
	frame                 int
	currentBBox           lineage.Rectangle
	currentCenter         lineage.Point
	predictedNextPosition lineage.Point
	track                 []lineage.Point
	active                bool
	tracker               *kalman_filter.Kalman2D
}

// NewCellBlobWithTime creates blob from labeled region observed at given frame
func NewCellBlobWithTime(region lineage.Region, frame int, dt float64) *CellBlob {
	/* Kalman filter props */
	ux := 1.0
	uy := 1.0
	stdDevA := 2.0
	stdDevMx := 0.1
	stdDevMy := 0.1
	kf := kalman_filter.NewKalman2D(dt, ux, uy, stdDevA, stdDevMx, stdDevMy, kalman_filter.WithState2D(region.Centroid.X, region.Centroid.Y))
	blob := CellBlob{
		label:                 region.Label,
		frame:                 frame,
		currentBBox:           region.BBox,
		currentCenter:         region.Centroid,
		predictedNextPosition: region.Centroid,
		track:                 make([]lineage.Point, 0, 16),
		active:                false,
		tracker:               kf,
	}
	blob.track = append(blob.track, blob.currentCenter)
	return &blob
}

func NewCellBlob(region lineage.Region, frame int) *CellBlob {
	return NewCellBlobWithTime(region, frame, 1.0)
}

// Activate activates blob
func (blob *CellBlob) Activate() {
	blob.active = true
}

// Deactivate deactivates blob
func (blob *CellBlob) Deactivate() {
	blob.active = false
}

// IsActive returns whether blob was matched in the latest frame
func (blob *CellBlob) IsActive() bool {
	return blob.active
}

// GetID returns blob's track identifier. Zero until the blob is registered by a linker.
func (blob *CellBlob) GetID() lineage.TrackID {
	return blob.id
}

// SetID sets blob's track identifier
func (blob *CellBlob) SetID(newID lineage.TrackID) {
	blob.id = newID
}

// GetParentID returns the track this blob divided from
func (blob *CellBlob) GetParentID() (lineage.TrackID, bool) {
	return blob.parentID, blob.hasParent
}

// SetParentID marks blob as daughter of parentID
func (blob *CellBlob) SetParentID(parentID lineage.TrackID) {
	blob.parentID = parentID
	blob.hasParent = true
}

// GetLabel returns label of the latest observed region
func (blob *CellBlob) GetLabel() uint32 {
	return blob.label
}

// GetFrame returns frame of the latest observed region
func (blob *CellBlob) GetFrame() int {
	return blob.frame
}

// GetCenter returns blob's current center
func (blob *CellBlob) GetCenter() lineage.Point {
	return blob.currentCenter
}

// GetBBox returns blob's current bounding box
func (blob *CellBlob) GetBBox() lineage.Rectangle {
	return blob.currentBBox
}

// GetPredictedBBox returns bounding box centered on the predicted next position
func (blob *CellBlob) GetPredictedBBox() lineage.Rectangle {
	return lineage.Rectangle{
		X:      blob.predictedNextPosition.X - blob.currentBBox.Width/2.0,
		Y:      blob.predictedNextPosition.Y - blob.currentBBox.Height/2.0,
		Width:  blob.currentBBox.Width,
		Height: blob.currentBBox.Height,
	}
}

// GetTrack returns blob's centroid history. Be careful: this is not copy of track, but reference to it
func (blob *CellBlob) GetTrack() []lineage.Point {
	return blob.track
}

// PredictNextPosition execute Kalman filter's first step but without re-evaluating state vector based on Kalman gain
func (blob *CellBlob) PredictNextPosition() {
	blob.tracker.Predict()
	stateX, stateY := blob.tracker.GetState()
	blob.predictedNextPosition.X = stateX
	blob.predictedNextPosition.Y = stateY
}

// Update moves blob onto the newly observed region and execute Kalman filter's second step
func (blob *CellBlob) Update(newBlob *CellBlob) error {
	err := blob.tracker.Update(newBlob.currentCenter.X, newBlob.currentCenter.Y)
	if err != nil {
		return errors.Wrapf(err, "Can't update cell tracker for track %d", blob.id)
	}
	// Exported positions always come from the mask, the filter only drives prediction
	blob.label = newBlob.label
	blob.frame = newBlob.frame
	blob.currentCenter = newBlob.currentCenter
	blob.currentBBox = newBlob.currentBBox
	blob.active = true
	blob.track = append(blob.track, blob.currentCenter)
	return nil
}
