package design

import (
	"container/heap"
	"sync"
)

// readyItem is one block that has become eligible to run: all of its
// predecessors have completed.
type readyItem struct {
	blockID string
	index   int // heap bookkeeping
}

// readyHeap orders ready blocks by ascending block id, matching the
// deterministic tie-break rule §4.3 applies to context-assembly ordering.
type readyHeap []*readyItem

func (h readyHeap) Len() int            { return len(h) }
func (h readyHeap) Less(i, j int) bool  { return h[i].blockID < h[j].blockID }
func (h readyHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *readyHeap) Push(x interface{}) {
	item := x.(*readyItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *readyHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// readyQueue is a deterministic, concurrency-safe queue of ready block ids.
type readyQueue struct {
	mu   sync.Mutex
	heap readyHeap
}

func newReadyQueue() *readyQueue {
	q := &readyQueue{}
	heap.Init(&q.heap)
	return q
}

func (q *readyQueue) Push(blockID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.heap, &readyItem{blockID: blockID})
}

// Pop removes and returns the lowest block id, or ("", false) if empty.
func (q *readyQueue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return "", false
	}
	item := heap.Pop(&q.heap).(*readyItem)
	return item.blockID, true
}

func (q *readyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}
