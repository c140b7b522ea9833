package mot

// scoredPair holds a track/detection pair with its match score for priority queue
type scoredPair struct {
	score     float64
	track     int
	detection int
	index     int
}

// scoreHeap implements heap.Interface for max-heap by score.
// Ties are broken by track then detection index to keep matching deterministic.
type scoreHeap []*scoredPair

func (h scoreHeap) Len() int { return len(h) }

// Less returns true if i has higher score (max-heap)
func (h scoreHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score > h[j].score
	}
	if h[i].track != h[j].track {
		return h[i].track < h[j].track
	}
	return h[i].detection < h[j].detection
}

func (h scoreHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *scoreHeap) Push(x any) {
	n := len(*h)
	item := x.(*scoredPair)
	item.index = n
	*h = append(*h, item)
}

func (h *scoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[0 : n-1]
	return item
}
