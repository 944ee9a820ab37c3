package escalation

import "time"

// timerItem is one pending escalation deadline. gen invalidates items
// lazily: a disarmed alert's items stay in the heap but are skipped
// when popped.
type timerItem struct {
	due         time.Time
	alertID     string
	fingerprint string
	levelIdx    int
	gen         uint64
}

// timerHeap is a min-heap ordered by due time.
type timerHeap []*timerItem

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].due.Before(h[j].due) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(*timerItem)) }

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
