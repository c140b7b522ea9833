package mot

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/LdDl/lineage-go/lineage"
	"github.com/arthurkushman/go-hungarian"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// MatchingAlgorithm is for algorithm type for matching detections to tracks
type MatchingAlgorithm uint16

const (
	// MatchingAlgorithmHungarian uses the Hungarian algorithm (Kuhn-Munkres) for optimal assignment
	MatchingAlgorithmHungarian MatchingAlgorithm = iota
	// MatchingAlgorithmGreedy takes pairs from the highest score down
	MatchingAlgorithmGreedy
)

// String returns algorithm name as used in configuration files
func (algorithm MatchingAlgorithm) String() string {
	switch algorithm {
	case MatchingAlgorithmHungarian:
		return "hungarian"
	case MatchingAlgorithmGreedy:
		return "greedy"
	default:
		return fmt.Sprintf("MatchingAlgorithm(%d)", uint16(algorithm))
	}
}

// ParseMatchingAlgorithm converts configuration name into MatchingAlgorithm
func ParseMatchingAlgorithm(name string) (MatchingAlgorithm, error) {
	switch name {
	case "hungarian":
		return MatchingAlgorithmHungarian, nil
	case "greedy":
		return MatchingAlgorithmGreedy, nil
	default:
		return 0, fmt.Errorf("unknown matching algorithm %q", name)
	}
}

const (
	DefaultMinScore      = 0.3
	DefaultDivisionScore = 0.25
)

// Linker links segmented cells frame to frame. A track that finds no match in a frame
// is retired, so every track covers contiguous frames. When two or more cells of a frame
// are best explained by a single track, the track is retired and the cells start
// daughter tracks.
// B is the blob type implementing Blob[B] interface.
type Linker[B Blob[B]] struct {
	// Minimal hybrid score to continue a track
	minScore float64
	// Minimal hybrid score for a cell to count as a daughter of a track
	divisionScore float64
	// Algorithm to use for matching
	algorithm MatchingAlgorithm
	// Main storage: tracks alive after the latest frame
	Objects map[lineage.TrackID]B

	lastID     lineage.TrackID
	lastFrame  int
	detections []lineage.Detection
	logger     *zap.Logger
}

// NewDefaultLinker creates a Linker with default parameters.
// Default values: Hungarian matching, minScore=0.3, divisionScore=0.25
func NewDefaultLinker[B Blob[B]]() *Linker[B] {
	return NewLinker[B](MatchingAlgorithmHungarian, DefaultMinScore, DefaultDivisionScore)
}

// NewLinker creates a new instance of Linker with specified parameters.
func NewLinker[B Blob[B]](algorithm MatchingAlgorithm, minScore, divisionScore float64) *Linker[B] {
	return &Linker[B]{
		minScore:      minScore,
		divisionScore: divisionScore,
		algorithm:     algorithm,
		Objects:       make(map[lineage.TrackID]B),
		lastFrame:     -1,
		detections:    make([]lineage.Detection, 0),
		logger:        zap.NewNop(),
	}
}

// SetLogger sets logger for division and lifecycle events
func (linker *Linker[B]) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	linker.logger = logger
}

// Detections returns detection stream collected so far, ordered by frame then track id
func (linker *Linker[B]) Detections() []lineage.Detection {
	result := make([]lineage.Detection, len(linker.detections))
	copy(result, linker.detections)
	return result
}

// MatchObjects links cells of the next frame to existing tracks.
// Frames must be passed in increasing order without skipping.
func (linker *Linker[B]) MatchObjects(frame int, newObjects []B) error {
	if frame != linker.lastFrame+1 {
		return fmt.Errorf("frame %d passed after frame %d", frame, linker.lastFrame)
	}
	linker.lastFrame = frame

	trackIDs := linker.sortedIDs()
	// Predict next positions for all existing tracks via Kalman filter
	for _, id := range trackIDs {
		object := linker.Objects[id]
		object.PredictNextPosition()
		object.Deactivate()
	}

	scores := linker.createScoreMatrix(trackIDs, newObjects)
	matches := linker.performMatching(scores, len(trackIDs), len(newObjects))

	matchedTracks := make(map[int]int, len(matches))
	matchedDetections := make(map[int]int, len(matches))
	for _, match := range matches {
		matchedTracks[match[0]] = match[1]
		matchedDetections[match[1]] = match[0]
	}

	parents := linker.detectDivisions(frame, trackIDs, scores, matchedTracks, matchedDetections)

	// Continue matched tracks
	for trackIdx, detIdx := range matchedTracks {
		existingObj := linker.Objects[trackIDs[trackIdx]]
		err := existingObj.Update(newObjects[detIdx])
		if err != nil {
			return errors.Wrapf(err, "Can't continue track %d at frame %d", trackIDs[trackIdx], frame)
		}
	}

	// Retire tracks without match
	for _, id := range trackIDs {
		if !linker.Objects[id].IsActive() {
			delete(linker.Objects, id)
		}
	}

	// Register new tracks in detection order
	for detIdx, blob := range newObjects {
		if _, ok := matchedDetections[detIdx]; ok {
			continue
		}
		linker.lastID++
		blob.SetID(linker.lastID)
		if parentID, ok := parents[detIdx]; ok {
			blob.SetParentID(parentID)
		}
		blob.Activate()
		linker.Objects[linker.lastID] = blob
	}

	linker.recordFrame(frame)
	return nil
}

// detectDivisions finds tracks explaining two or more cells of the frame. Those cells become
// daughters: they are unmatched and mapped to the parent track id in returned map.
func (linker *Linker[B]) detectDivisions(frame int, trackIDs []lineage.TrackID, scores [][]float64, matchedTracks, matchedDetections map[int]int) map[int]lineage.TrackID {
	parents := make(map[int]lineage.TrackID)
	if len(trackIDs) == 0 {
		return parents
	}
	candidates := make(map[int][]int)
	numDetections := len(scores[0])
	for detIdx := 0; detIdx < numDetections; detIdx++ {
		if _, ok := matchedDetections[detIdx]; ok {
			continue
		}
		bestTrack := -1
		bestScore := 0.0
		for trackIdx := range trackIDs {
			if scores[trackIdx][detIdx] > bestScore {
				bestScore = scores[trackIdx][detIdx]
				bestTrack = trackIdx
			}
		}
		if bestTrack >= 0 && bestScore >= linker.divisionScore {
			candidates[bestTrack] = append(candidates[bestTrack], detIdx)
		}
	}
	for trackIdx, parentID := range trackIDs {
		daughters := candidates[trackIdx]
		if detIdx, ok := matchedTracks[trackIdx]; ok {
			daughters = append([]int{detIdx}, daughters...)
		}
		if len(daughters) < 2 {
			continue
		}
		for _, detIdx := range daughters {
			parents[detIdx] = parentID
			delete(matchedDetections, detIdx)
		}
		delete(matchedTracks, trackIdx)
		linker.logger.Debug("cell division",
			zap.Int("frame", frame),
			zap.Int("parent", int(parentID)),
			zap.Int("daughters", len(daughters)),
		)
	}
	return parents
}

func (linker *Linker[B]) recordFrame(frame int) {
	for _, id := range linker.sortedIDs() {
		object := linker.Objects[id]
		det := lineage.NewDetection(frame, object.GetLabel(), id)
		if len(object.GetTrack()) == 1 {
			if parentID, ok := object.GetParentID(); ok {
				det = det.WithParent(parentID)
			}
		}
		linker.detections = append(linker.detections, det)
	}
}

func (linker *Linker[B]) sortedIDs() []lineage.TrackID {
	ids := make([]lineage.TrackID, 0, len(linker.Objects))
	for id := range linker.Objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// createScoreMatrix is helper function to create score matrix: rows = tracks, columns = detections
func (linker *Linker[B]) createScoreMatrix(trackIDs []lineage.TrackID, detections []B) [][]float64 {
	scores := make([][]float64, len(trackIDs))
	for i, id := range trackIDs {
		predicted := linker.Objects[id].GetPredictedBBox()
		row := make([]float64, len(detections))
		for j, detection := range detections {
			row[j] = MatchScore(predicted, detection.GetBBox())
		}
		scores[i] = row
	}
	return scores
}

// performMatching is helper function to perform matching using Hungarian or Greedy algorithm.
// Returns: a slice of [2]int, where each element is {trackIndex, detectionIndex}.
// Pairs not exceeding minScore are never returned.
func (linker *Linker[B]) performMatching(scores [][]float64, numTracks, numDetections int) [][2]int {
	if numTracks == 0 || numDetections == 0 {
		return [][2]int{}
	}
	switch linker.algorithm {
	case MatchingAlgorithmHungarian:
		return linker.performHungarianMatching(scores, numTracks, numDetections)
	default:
		return linker.performGreedyMatching(scores, numTracks, numDetections)
	}
}

func (linker *Linker[B]) performHungarianMatching(scores [][]float64, numTracks, numDetections int) [][2]int {
	var paddedMatrix [][]float64
	if numTracks == numDetections {
		// Square matrix - use as is
		paddedMatrix = scores
	} else {
		// Rectangular matrix - pad with zero scores to make it square
		paddedSize := maxInt(numTracks, numDetections)
		paddedMatrix = make([][]float64, paddedSize)
		for i := 0; i < paddedSize; i++ {
			paddedMatrix[i] = make([]float64, paddedSize)
			if i < numTracks {
				copy(paddedMatrix[i], scores[i])
			}
		}
	}
	assignmentsMap := hungarian.SolveMax(paddedMatrix)
	matches := make([][2]int, 0, len(assignmentsMap))
	for trackIdx, rowMap := range assignmentsMap {
		for detIdx := range rowMap {
			if trackIdx < numTracks && detIdx < numDetections && scores[trackIdx][detIdx] > linker.minScore {
				matches = append(matches, [2]int{trackIdx, detIdx})
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i][0] < matches[j][0] })
	return matches
}

// performGreedyMatching processes pairs from highest score to lowest
func (linker *Linker[B]) performGreedyMatching(scores [][]float64, numTracks, numDetections int) [][2]int {
	pq := &scoreHeap{}
	heap.Init(pq)
	for i := 0; i < numTracks; i++ {
		for j := 0; j < numDetections; j++ {
			if scores[i][j] > linker.minScore {
				heap.Push(pq, &scoredPair{score: scores[i][j], track: i, detection: j})
			}
		}
	}
	// Prevent double update of objects
	reservedTracks := make(map[int]bool)
	reservedDetections := make(map[int]bool)
	matches := make([][2]int, 0)
	for pq.Len() > 0 {
		item := heap.Pop(pq).(*scoredPair)
		if reservedTracks[item.track] || reservedDetections[item.detection] {
			continue
		}
		reservedTracks[item.track] = true
		reservedDetections[item.detection] = true
		matches = append(matches, [2]int{item.track, item.detection})
	}
	return matches
}
