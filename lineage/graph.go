package lineage

import (
	"sort"
)

// Track is a maximal run of detections sharing one lineage id over consecutive frames.
type Track struct {
	ID         TrackID
	StartFrame int
	EndFrame   int
	// Set iff the track was born from a division
	ParentID  TrackID
	HasParent bool
	// Source label per frame: Labels[i] belongs to frame StartFrame+i
	Labels []uint32
}

// Len returns number of frames the track spans
func (t Track) Len() int {
	return t.EndFrame - t.StartFrame + 1
}

// Parent returns parent track if any
func (t Track) Parent() (TrackID, bool) {
	return t.ParentID, t.HasParent
}

// LabelAt returns source label of the track in given frame
func (t Track) LabelAt(frame int) (uint32, bool) {
	if frame < t.StartFrame || frame > t.EndFrame {
		return 0, false
	}
	return t.Labels[frame-t.StartFrame], true
}

func (t Track) clone() Track {
	t.Labels = append([]uint32(nil), t.Labels...)
	return t
}

// Edge is a parent -> child division edge.
type Edge struct {
	Parent TrackID
	Child  TrackID
}

// DivisionEvent is a parent track whose children start right after it ends.
type DivisionEvent struct {
	Parent TrackID
	// Frame the children start at
	Frame    int
	Children []TrackID
}

// Graph is the immutable lineage graph: tracks are nodes, divisions are edges.
// Use Build to create one.
type Graph struct {
	// Ordered by (StartFrame, ID)
	tracks   []Track
	index    map[TrackID]int
	children map[TrackID][]TrackID
	// Detections per frame ordered by track id, indexed by frame
	byFrame [][]Detection
}

// Len returns number of tracks
func (g *Graph) Len() int {
	return len(g.tracks)
}

// Tracks returns copy of all tracks ordered by start frame, then by id
func (g *Graph) Tracks() []Track {
	out := make([]Track, len(g.tracks))
	for i := range g.tracks {
		out[i] = g.tracks[i].clone()
	}
	return out
}

// Track returns track by id
func (g *Graph) Track(id TrackID) (Track, bool) {
	idx, ok := g.index[id]
	if !ok {
		return Track{}, false
	}
	return g.tracks[idx].clone(), true
}

// TrackIDs returns ids in ascending order
func (g *Graph) TrackIDs() []TrackID {
	ids := make([]TrackID, 0, len(g.tracks))
	for _, t := range g.tracks {
		ids = append(ids, t.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Children returns children of the track ordered by start frame, then by id
func (g *Graph) Children(id TrackID) []TrackID {
	return append([]TrackID(nil), g.children[id]...)
}

// Edges returns all division edges ordered the same way as child tracks
func (g *Graph) Edges() []Edge {
	edges := make([]Edge, 0)
	for _, t := range g.tracks {
		if t.HasParent {
			edges = append(edges, Edge{Parent: t.ParentID, Child: t.ID})
		}
	}
	return edges
}

// Divisions returns parents having two or more children starting right after the parent's last frame
func (g *Graph) Divisions() []DivisionEvent {
	events := make([]DivisionEvent, 0)
	for _, t := range g.tracks {
		var immediate []TrackID
		for _, childID := range g.children[t.ID] {
			child := g.tracks[g.index[childID]]
			if child.StartFrame == t.EndFrame+1 {
				immediate = append(immediate, childID)
			}
		}
		if len(immediate) >= 2 {
			events = append(events, DivisionEvent{Parent: t.ID, Frame: t.EndFrame + 1, Children: immediate})
		}
	}
	return events
}

// LastFrame returns last frame any track covers, -1 for empty graph
func (g *Graph) LastFrame() int {
	return len(g.byFrame) - 1
}

// DetectionsInFrame returns detections of the frame ordered by track id
func (g *Graph) DetectionsInFrame(frame int) []Detection {
	if frame < 0 || frame >= len(g.byFrame) {
		return nil
	}
	return append([]Detection(nil), g.byFrame[frame]...)
}

// DetectionCount returns total number of detections
func (g *Graph) DetectionCount() int {
	n := 0
	for _, t := range g.tracks {
		n += t.Len()
	}
	return n
}

// Detections returns all detections ordered by frame, then by track id
func (g *Graph) Detections() []Detection {
	out := make([]Detection, 0, g.DetectionCount())
	for _, frame := range g.byFrame {
		out = append(out, frame...)
	}
	return out
}
