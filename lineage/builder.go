package lineage

import (
	"sort"
)

type frameLabel struct {
	frame int
	label uint32
}

// Build constructs the lineage graph from the full detection stream.
// The stream may come in any order. Violations are reported as *MalformedTrackError.
// Invalid identifiers and labels claimed by two lineages are reported for the first
// offending detection in stream order. Only a stream free of those is checked per track
// (duplicates, gaps, misplaced parents) and then for parent links, both in ascending lineage id.
func Build(detections []Detection) (*Graph, error) {
	groups := make(map[TrackID][]Detection)
	owners := make(map[frameLabel]TrackID, len(detections))
	for _, det := range detections {
		if det.Frame < 0 || det.SourceLabel == 0 || det.LineageID <= 0 || (det.HasParent && det.ParentLineageID <= 0) {
			return nil, &MalformedTrackError{Reason: ReasonInvalidIdentifier, TrackID: det.LineageID, Frame: det.Frame}
		}
		key := frameLabel{frame: det.Frame, label: det.SourceLabel}
		if owner, ok := owners[key]; ok && owner != det.LineageID {
			first, second := owner, det.LineageID
			if second < first {
				first, second = second, first
			}
			return nil, &MalformedTrackError{Reason: ReasonLabelReassigned, TrackID: second, Frame: det.Frame, ParentID: first}
		}
		owners[key] = det.LineageID
		groups[det.LineageID] = append(groups[det.LineageID], det)
	}

	ids := make([]TrackID, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	tracks := make([]Track, 0, len(ids))
	for _, id := range ids {
		track, err := buildTrack(id, groups[id])
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	byID := make(map[TrackID]int, len(tracks))
	for i := range tracks {
		byID[tracks[i].ID] = i
	}
	for _, track := range tracks {
		if !track.HasParent {
			continue
		}
		parentIdx, ok := byID[track.ParentID]
		if !ok {
			return nil, &MalformedTrackError{Reason: ReasonDanglingParent, TrackID: track.ID, Frame: track.StartFrame, ParentID: track.ParentID}
		}
		if tracks[parentIdx].EndFrame >= track.StartFrame {
			return nil, &MalformedTrackError{Reason: ReasonParentNotBefore, TrackID: track.ID, Frame: track.StartFrame, ParentID: track.ParentID}
		}
	}

	return newGraph(tracks), nil
}

// buildTrack turns detections of one lineage into a track
func buildTrack(id TrackID, group []Detection) (Track, error) {
	sort.SliceStable(group, func(i, j int) bool { return group[i].Frame < group[j].Frame })
	track := Track{
		ID:         id,
		StartFrame: group[0].Frame,
		EndFrame:   group[len(group)-1].Frame,
		Labels:     make([]uint32, 0, len(group)),
	}
	for i, det := range group {
		if i > 0 {
			prev := group[i-1].Frame
			if det.Frame == prev {
				return Track{}, &MalformedTrackError{Reason: ReasonDuplicateFrame, TrackID: id, Frame: det.Frame}
			}
			if det.Frame != prev+1 {
				return Track{}, &MalformedTrackError{Reason: ReasonFrameGap, TrackID: id, Frame: prev + 1}
			}
		}
		if det.HasParent {
			if i > 0 {
				return Track{}, &MalformedTrackError{Reason: ReasonParentMidTrack, TrackID: id, Frame: det.Frame, ParentID: det.ParentLineageID}
			}
			track.ParentID = det.ParentLineageID
			track.HasParent = true
		}
		track.Labels = append(track.Labels, det.SourceLabel)
	}
	return track, nil
}

func newGraph(tracks []Track) *Graph {
	sort.Slice(tracks, func(i, j int) bool {
		if tracks[i].StartFrame != tracks[j].StartFrame {
			return tracks[i].StartFrame < tracks[j].StartFrame
		}
		return tracks[i].ID < tracks[j].ID
	})
	g := &Graph{
		tracks:   tracks,
		index:    make(map[TrackID]int, len(tracks)),
		children: make(map[TrackID][]TrackID),
	}
	lastFrame := -1
	for i, t := range tracks {
		g.index[t.ID] = i
		if t.HasParent {
			// tracks are already in listing order, so children come out ordered too
			g.children[t.ParentID] = append(g.children[t.ParentID], t.ID)
		}
		if t.EndFrame > lastFrame {
			lastFrame = t.EndFrame
		}
	}
	g.byFrame = make([][]Detection, lastFrame+1)
	for _, t := range tracks {
		for offset, label := range t.Labels {
			frame := t.StartFrame + offset
			det := NewDetection(frame, label, t.ID)
			if offset == 0 && t.HasParent {
				det = det.WithParent(t.ParentID)
			}
			g.byFrame[frame] = append(g.byFrame[frame], det)
		}
	}
	for _, frame := range g.byFrame {
		sort.Slice(frame, func(i, j int) bool { return frame[i].LineageID < frame[j].LineageID })
	}
	return g
}
