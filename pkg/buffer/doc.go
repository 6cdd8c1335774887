// Package buffer provides thread-safe fixed-capacity history buffers.
//
// A ring keeps the N most recent items. When full, DropOldest (the default)
// evicts the oldest item and DropNewest rejects the incoming one. Reading is
// non-destructive: Snapshot copies the retained items in arrival order, which is
// what receipt-time histories and rate estimates need.
//
//	times := buffer.NewRing[time.Time](50)
//	times.Push(time.Now())
//	history := times.Snapshot() // oldest first, len <= 50
//
// Dropped items can be observed with WithDropCallback; the callback runs outside
// the buffer lock so it may call back into the buffer.
package buffer
