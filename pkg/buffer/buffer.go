// Package buffer provides generic, thread-safe fixed-capacity buffers with overflow policies.
package buffer

// Buffer is a fixed-capacity history of items. Unlike a queue, reading does not
// consume: Snapshot returns the retained items oldest first.
type Buffer[T any] interface {
	// Push appends an item, applying the overflow policy when full.
	// It reports whether the item was stored.
	Push(item T) bool

	// Snapshot returns a copy of the retained items, oldest first.
	Snapshot() []T

	// Newest returns the most recently stored item.
	Newest() (T, bool)

	// Len returns the current number of items.
	Len() int

	// Capacity returns the maximum number of items retained.
	Capacity() int

	// Clear removes all items.
	Clear()

	// Stats returns push and drop counters.
	Stats() Stats
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest item to make room for the new one.
	DropOldest OverflowPolicy = iota

	// DropNewest discards the incoming item when full.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// DropCallback is called with each item discarded by the overflow policy.
type DropCallback[T any] func(item T)

// Stats is a point-in-time copy of buffer counters.
type Stats struct {
	Pushes int64 `json:"pushes"`
	Drops  int64 `json:"drops"`
}
