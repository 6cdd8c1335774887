package buffer

import (
	"sync"
)

// ring is a thread-safe circular history buffer.
type ring[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int // next write position
	size  int
	opts  *bufferOptions[T]

	pushes int64
	drops  int64
}

// NewRing creates a ring retaining at most capacity items. A capacity below one
// is raised to one.
func NewRing[T any](capacity int, options ...Option[T]) Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring[T]{
		items: make([]T, capacity),
		opts:  applyOptions(options...),
	}
}

func (r *ring[T]) Push(item T) bool {
	r.mu.Lock()

	var (
		dropped    T
		hasDropped bool
	)

	if r.size == len(r.items) {
		r.drops++
		switch r.opts.overflowPolicy {
		case DropNewest:
			r.mu.Unlock()
			r.notifyDrop(item)
			return false
		default:
			// head is also the oldest slot once the ring is full
			dropped, hasDropped = r.items[r.head], true
			r.size--
		}
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	r.size++
	r.pushes++
	r.mu.Unlock()

	if hasDropped {
		r.notifyDrop(dropped)
	}
	return true
}

func (r *ring[T]) notifyDrop(item T) {
	if r.opts.dropCallback != nil {
		r.opts.dropCallback(item)
	}
}

// oldest returns the index of the oldest item. Caller holds the lock.
func (r *ring[T]) oldest() int {
	return (r.head - r.size + len(r.items)) % len(r.items)
}

func (r *ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, r.size)
	start := r.oldest()
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(start+i)%len(r.items)]
	}
	return out
}

func (r *ring[T]) Newest() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.items[(r.head-1+len(r.items))%len(r.items)], true
}

func (r *ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

func (r *ring[T]) Capacity() int {
	return len(r.items) // immutable
}

func (r *ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0
}

func (r *ring[T]) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Pushes: r.pushes, Drops: r.drops}
}
