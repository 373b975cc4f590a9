// Package lookahead implements the bounded video/audio FIFOs that sit
// between a producer's decode thread and the Pipeline Manager's tick loop
// (spec §4.6), plus the Preloader that primes a block's first frame before
// its swap tick (spec §4.4, component row 4).
package lookahead

import "sync"

// FIFO is a bounded, single-producer/single-consumer queue (spec §5,
// "Shared resources: lookahead buffers have exactly one producer... and
// one consumer... the buffer's internal mutex coordinates them").
type FIFO[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
}

// NewFIFO constructs an empty FIFO with the given bounded capacity.
func NewFIFO[T any](capacity int) *FIFO[T] {
	return &FIFO[T]{capacity: capacity}
}

// TryPush appends v if the FIFO has room, reporting whether it did. The
// tick thread never calls this; only a decode fill thread does.
func (f *FIFO[T]) TryPush(v T) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.items) >= f.capacity {
		return false
	}
	f.items = append(f.items, v)
	return true
}

// TryPop removes and returns the oldest item, reporting whether one was
// available. The tick thread calls this exactly once per stream per tick
// (spec §4.6, "the tick loop consumes via try_pop").
func (f *FIFO[T]) TryPop() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var zero T
	if len(f.items) == 0 {
		return zero, false
	}
	v := f.items[0]
	f.items = f.items[1:]
	return v, true
}

// Len returns the current occupancy.
func (f *FIFO[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Full reports whether the FIFO is at capacity.
func (f *FIFO[T]) Full() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items) >= f.capacity
}
