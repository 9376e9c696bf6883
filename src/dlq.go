package viperwolf

/*------------------------------------------------------------------
 *
 * Purpose:   	Bounded queues between the sample processing and
 *		whoever consumes its output.
 *
 * Description: The demodulator must never wait for anyone.  If the
 *		consumer falls behind and the queue fills up, the newest
 *		item is dropped and counted.  That favors keeping up with
 *		the audio over completeness.
 *
 *		Raw bits from the clock recovery and completed frames
 *		both go through one of these.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultBitQueueSize   = 8192
	DefaultFrameQueueSize = 64
)

// Queue is a fixed capacity FIFO, safe for one or more producers and consumers.
type Queue[T any] struct {
	mu sync.Mutex

	items []T
	head  int // Index of oldest item.
	count int

	dropped uint64

	// Notify a waiting consumer when the queue is not empty.
	wake chan struct{}
}

func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}

	return &Queue[T]{ //nolint:exhaustruct
		items: make([]T, capacity),
		wake:  make(chan struct{}, 1),
	}
}

// BitQueue carries raw bits from the clock recovery.
type BitQueue = Queue[bool]

// FrameQueue carries completed frames.
type FrameQueue = Queue[ReceivedFrame]

func NewBitQueue(capacity int) *BitQueue {
	return NewQueue[bool](capacity)
}

func NewFrameQueue(capacity int) *FrameQueue {
	return NewQueue[ReceivedFrame](capacity)
}

/*-------------------------------------------------------------------
 *
 * Name:        Put
 *
 * Purpose:     Add an item to the end of the queue.
 *
 * Returns:	False if the queue was full and the item was discarded.
 *
 * Description:	Never blocks.
 *
 *--------------------------------------------------------------------*/

func (q *Queue[T]) Put(item T) bool {
	q.mu.Lock()

	if q.count == len(q.items) {
		q.dropped++
		q.mu.Unlock()

		return false
	}

	q.items[(q.head+q.count)%len(q.items)] = item
	q.count++
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	return true
}

// TryGet removes the oldest item, if there is one.
func (q *Queue[T]) TryGet() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.count == 0 {
		return zero, false
	}

	var item = q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.count--

	return item, true
}

// GetMany moves up to len(dst) items into dst and returns how many.
func (q *Queue[T]) GetMany(dst []T) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	var n = 0
	for n < len(dst) && q.count > 0 {
		dst[n] = q.items[q.head]
		q.items[q.head] = zero
		q.head = (q.head + 1) % len(q.items)
		q.count--
		n++
	}

	return n
}

// Get waits for an item or for the context to be done.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	for {
		if item, ok := q.TryGet(); ok {
			return item, nil
		}

		select {
		case <-q.wake:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        WaitWhileEmpty
 *
 * Purpose:     Sleep while the queue is empty rather than
 *		polling periodically.
 *
 * Inputs:	timeout	- Give up after this long.  0 means forever.
 *
 * Returns:	True if something is there, false for timeout.
 *
 *--------------------------------------------------------------------*/

func (q *Queue[T]) WaitWhileEmpty(timeout time.Duration) bool {
	var timer <-chan time.Time
	if timeout > 0 {
		var t = time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	for {
		if q.Len() > 0 {
			return true
		}

		select {
		case <-q.wake:
		case <-timer:
			return q.Len() > 0
		}
	}
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.count
}

func (q *Queue[T]) Cap() int {
	return len(q.items)
}

// Dropped is the number of items discarded because the queue was full.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.dropped
}

// Clear discards everything, e.g. for a fresh capture.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	clear(q.items)
	q.head = 0
	q.count = 0
}
