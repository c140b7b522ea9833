package mot

import "github.com/LdDl/lineage-go/lineage"

// Blob is the interface for tracked cells.
// Self is the concrete type implementing this interface (e.g., *CellBlob).
// This enables type-safe generic linkers.
type Blob[Self any] interface {
	// Identity
	GetID() lineage.TrackID
	SetID(newID lineage.TrackID)
	GetParentID() (lineage.TrackID, bool)
	SetParentID(parentID lineage.TrackID)

	// Segmentation source
	GetLabel() uint32
	GetFrame() int

	// Geometry
	GetCenter() lineage.Point
	GetBBox() lineage.Rectangle
	GetPredictedBBox() lineage.Rectangle

	// Track history
	GetTrack() []lineage.Point

	// Lifecycle
	Activate()
	Deactivate()
	IsActive() bool

	// Kalman operations
	PredictNextPosition()
	Update(measurement Self) error
}
