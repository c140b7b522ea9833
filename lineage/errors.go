package lineage

import (
	"fmt"
)

// Reasons reported by MalformedTrackError.
const (
	ReasonFrameGap          = "frame gap"
	ReasonParentMidTrack    = "parent id set mid-track"
	ReasonDanglingParent    = "dangling parent reference"
	ReasonParentNotBefore   = "parent does not precede child"
	ReasonDuplicateFrame    = "duplicate frame"
	ReasonLabelReassigned   = "label assigned twice"
	ReasonInvalidIdentifier = "invalid identifier"
)

// Reasons reported by ConsistencyError.
const (
	ReasonFrameOutOfRange = "frame out of range"
	ReasonEmptyFootprint  = "label has no pixels"
	ReasonLabelOverflow   = "track id exceeds mask range"
)

// MalformedTrackError means the detection stream violates a track-level invariant.
type MalformedTrackError struct {
	Reason  string
	TrackID TrackID
	// Frame the violation was found at: the missing frame for gaps, the
	// offending frame otherwise. -1 when not applicable.
	Frame int
	// Parent involved in parent related violations
	ParentID TrackID
}

func (e *MalformedTrackError) Error() string {
	switch e.Reason {
	case ReasonFrameGap:
		return fmt.Sprintf("malformed track %d: %s: missing frame %d", e.TrackID, e.Reason, e.Frame)
	case ReasonDanglingParent, ReasonParentNotBefore:
		return fmt.Sprintf("malformed track %d: %s: parent %d", e.TrackID, e.Reason, e.ParentID)
	}
	if e.Frame >= 0 {
		return fmt.Sprintf("malformed track %d: %s at frame %d", e.TrackID, e.Reason, e.Frame)
	}
	return fmt.Sprintf("malformed track %d: %s", e.TrackID, e.Reason)
}

// MissingFrame returns the first missing frame of a frame gap violation
func (e *MalformedTrackError) MissingFrame() (int, bool) {
	if e.Reason != ReasonFrameGap {
		return 0, false
	}
	return e.Frame, true
}

// ConsistencyError means a detection references a label (or frame) the label
// store does not have.
type ConsistencyError struct {
	Frame       int
	SourceLabel uint32
	Reason      string
}

func (e *ConsistencyError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = ReasonEmptyFootprint
	}
	return fmt.Sprintf("inconsistent detection: frame %d label %d: %s", e.Frame, e.SourceLabel, reason)
}

// InsufficientDataError means evaluation has nothing to work with.
type InsufficientDataError struct {
	FrameCount int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: label store has %d frames", e.FrameCount)
}

// IOError is a persistence failure. Path is the file or directory involved.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
