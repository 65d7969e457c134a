// Package queue implements the PriorityQueue component: a bounded,
// priority-ordered admission buffer sitting in front of the Executor. It is
// the sole backpressure point in the system — once it is at capacity,
// Push fails immediately rather than blocking the caller.
package queue

import (
	"container/heap"
	"context"
	"sync"

	"github.com/nulpointcorp/mcp-gateway/internal/mcp"
)

// Item is one queued unit of work: a Request paired with the Future its
// Response will be delivered into.
type Item struct {
	Request *mcp.Request
	Future  *mcp.Future
}

type heapEntry struct {
	item     Item
	weight   int
	sequence uint64
}

type innerHeap []*heapEntry

func (h innerHeap) Len() int { return len(h) }
func (h innerHeap) Less(i, j int) bool {
	if h[i].weight != h[j].weight {
		return h[i].weight > h[j].weight // higher priority first
	}
	return h[i].sequence < h[j].sequence // FIFO within a band
}
func (h innerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *innerHeap) Push(x any)   { *h = append(*h, x.(*heapEntry)) }
func (h *innerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// PriorityQueue is a bounded, priority-ordered buffer of Items, safe for
// concurrent Push/Pop from many goroutines.
type PriorityQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	heap     innerHeap
	capacity int
	nextSeq  uint64
	closed   bool
}

// New constructs a PriorityQueue bounded at capacity. A non-positive
// capacity means unbounded.
func New(capacity int) *PriorityQueue {
	q := &PriorityQueue{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push enqueues item at the given priority. It returns ErrQueueFull
// (mcp.ErrQueueFull) immediately if the queue is at capacity — it never
// blocks the caller.
func (q *PriorityQueue) Push(item Item, priority mcp.Priority) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return mcp.NewQueueFullError()
	}
	if q.capacity > 0 && len(q.heap) >= q.capacity {
		return mcp.NewQueueFullError()
	}
	q.nextSeq++
	heap.Push(&q.heap, &heapEntry{item: item, weight: priority.Weight(), sequence: q.nextSeq})
	q.notEmpty.Signal()
	return nil
}

// Pop blocks until an Item is available, the queue is closed, or ctx is
// done.
func (q *PriorityQueue) Pop(ctx context.Context) (Item, bool) {
	// A watcher goroutine wakes the condvar when ctx is cancelled, since
	// sync.Cond has no context-aware wait.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.notEmpty.Broadcast()
			q.mu.Unlock()
		case <-stop:
		}
	}()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.heap) == 0 && !q.closed {
		if ctx.Err() != nil {
			return Item{}, false
		}
		q.notEmpty.Wait()
	}
	if len(q.heap) == 0 {
		return Item{}, false
	}
	e := heap.Pop(&q.heap).(*heapEntry)
	return e.item, true
}

// Len returns the current number of queued items.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// Capacity returns the configured bound (0 means unbounded).
func (q *PriorityQueue) Capacity() int { return q.capacity }

// Close wakes every blocked Pop with ok=false. Subsequent Push calls fail
// with ErrQueueFull.
func (q *PriorityQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notEmpty.Broadcast()
}
