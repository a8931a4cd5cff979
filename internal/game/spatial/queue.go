package spatial

import (
	"runtime"
	"sync/atomic"
)

// cacheLineSize is the typical CPU cache line size (64 bytes on x86-64)
const cacheLineSize = 64

type pad [cacheLineSize]byte

// slot pairs a value with the sequence number that tells producers and the
// consumer whose turn it is to touch it.
type slot[T any] struct {
	seq   atomic.Uint64
	value T
}

// Queue is a bounded multi-producer single-consumer ring buffer.
//
// Producers (websocket readers, HTTP handlers) push without locks; the tick
// goroutine drains. A slot becomes visible to the consumer only after its
// value is fully written, so a claimed-but-unwritten slot is never read.
//
// Origin: Vyukov bounded MPMC queue
type Queue[T any] struct {
	_     pad
	head  atomic.Uint64 // next position to claim (producers)
	_     pad
	tail  atomic.Uint64 // next position to read (consumer)
	_     pad
	mask  uint64
	slots []slot[T]

	dropped atomic.Uint64
}

// NewQueue creates a queue whose capacity is capacity rounded up to a
// power of two.
func NewQueue[T any](capacity int) *Queue[T] {
	size := 1
	for size < capacity {
		size <<= 1
	}
	q := &Queue[T]{
		mask:  uint64(size - 1),
		slots: make([]slot[T], size),
	}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q
}

// TryPush adds an item. Returns false (and counts a drop) when full.
// Safe for concurrent producers.
func (q *Queue[T]) TryPush(item T) bool {
	for {
		pos := q.head.Load()
		s := &q.slots[pos&q.mask]
		seq := s.seq.Load()

		switch {
		case seq == pos:
			if q.head.CompareAndSwap(pos, pos+1) {
				s.value = item
				s.seq.Store(pos + 1)
				return true
			}
		case seq < pos:
			q.dropped.Add(1)
			return false
		}
		runtime.Gosched()
	}
}

// TryPop removes the oldest item. Must only be called by one consumer.
func (q *Queue[T]) TryPop() (T, bool) {
	var zero T
	pos := q.tail.Load()
	s := &q.slots[pos&q.mask]
	if s.seq.Load() != pos+1 {
		return zero, false
	}
	item := s.value
	s.value = zero
	s.seq.Store(pos + q.mask + 1)
	q.tail.Store(pos + 1)
	return item, true
}

// DrainTo appends every available item to dst and returns it.
func (q *Queue[T]) DrainTo(dst []T) []T {
	for {
		item, ok := q.TryPop()
		if !ok {
			return dst
		}
		dst = append(dst, item)
	}
}

// Len returns an approximate count of queued items.
func (q *Queue[T]) Len() int {
	head, tail := q.head.Load(), q.tail.Load()
	if head < tail {
		return 0
	}
	return int(head - tail)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return len(q.slots)
}

// Dropped returns how many pushes were rejected because the queue was full.
func (q *Queue[T]) Dropped() uint64 {
	return q.dropped.Load()
}
