package lineage

// TrackID identifies a track. Valid identifiers are positive.
type TrackID int

// Detection is one segmented object in one frame together with the lineage
// the assignment oracle put it in.
type Detection struct {
	// Frame index, 0-based
	Frame int `json:"frame"`
	// Label of the object in the frame's label image
	SourceLabel uint32 `json:"source_label"`
	// Lineage (track) the object belongs to
	LineageID TrackID `json:"lineage_id"`
	// Parent lineage. Only meaningful when HasParent is true and only on the
	// first frame of the lineage.
	ParentLineageID TrackID `json:"parent_lineage_id,omitempty"`
	HasParent       bool    `json:"has_parent,omitempty"`
}

// NewDetection creates detection without parent
func NewDetection(frame int, sourceLabel uint32, lineageID TrackID) Detection {
	return Detection{
		Frame:       frame,
		SourceLabel: sourceLabel,
		LineageID:   lineageID,
	}
}

// WithParent returns copy of detection marked as born from parent lineage
func (d Detection) WithParent(parent TrackID) Detection {
	d.ParentLineageID = parent
	d.HasParent = true
	return d
}

// Parent returns parent lineage if any
func (d Detection) Parent() (TrackID, bool) {
	return d.ParentLineageID, d.HasParent
}
