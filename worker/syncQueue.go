package worker

import (
	"sync"
)

// SyncQueue is a helper for a (channel-like) queue that allows multiple concurrent
// senders and receivers and never blocks indefinitely on enqueueuing by resizing
// the internal channel when full. Resizes move the buffered items in order while
// holding off every sender, so items enqueued by one goroutine reach a single
// receiver in the order they were enqueued.
type SyncQueue[T any] struct {
	resizeLock sync.RWMutex
	queue      chan T
}

func NewSyncQueue[T any](initialCapacity int) *SyncQueue[T] {
	if initialCapacity <= 0 {
		panic("Sync queue capacity must be greater than zero")
	}
	return &SyncQueue[T]{
		queue: make(chan T, initialCapacity),
	}
}

func (q *SyncQueue[T]) Enqueue(item T) {
	for !q.tryEnqueue(item) {
		q.resize()
	}
}

func (q *SyncQueue[T]) Dequeue() T {
	for {
		q.resizeLock.RLock()
		queue := q.queue
		q.resizeLock.RUnlock()

		if item, ok := <-queue; ok {
			return item
		}
		// If channel was closed a resize operation is taking place. Lock&unlock to wait
		// for it to finish and try again.
		q.resizeLock.RLock()
		q.resizeLock.RUnlock()
	}
}

func (q *SyncQueue[T]) Len() int {
	q.resizeLock.RLock()
	defer q.resizeLock.RUnlock()
	return len(q.queue)
}

func (q *SyncQueue[T]) tryEnqueue(item T) bool {
	q.resizeLock.RLock()
	defer q.resizeLock.RUnlock()
	select {
	case q.queue <- item:
		return true
	default:
		return false
	}
}

func (q *SyncQueue[T]) resize() {
	q.resizeLock.Lock()
	defer q.resizeLock.Unlock()

	if hasSpaceInBuffer(q.queue) {
		// Queue probably resized by some other routine
		return
	}

	close(q.queue)
	resized := make(chan T, 2*cap(q.queue))
	for item := range q.queue {
		resized <- item
	}
	q.queue = resized
}

// We use a simple heuristic to say if there is enough space in the buffer which
// is checking if at least a third of its capacity is still unused. Checking only
// if len < cap would be bug-prone as a single concurrent receive in the channel
// could make that become true and we get stuck in a tryEnqueue-resize loop.
func hasSpaceInBuffer[T any](c chan T) bool {
	return 3*len(c) <= 2*cap(c)
}
