// Package link runs the reader side of a registered link.
//
// A Reader owns one goroutine per open link. Every 1/RateHz it drains the
// transport, feeds the bytes to a mavlink.Decoder and calls OnFrame for each
// decoded frame before decoding the next one. Routers use that ordering to
// finish fan-out of a frame before the following frame is seen.
//
// Failure handling:
//
//   - Decode errors are counted and dropped; the decoder resynchronises.
//   - Read errors end the current cycle, are counted and logged at most once
//     every five seconds, and mark the link StateFailed. The next successful
//     read marks it StateOpen again.
//   - Write errors are returned to the caller and counted. They never change
//     the link state.
//
// Priorities high, highest and time_critical lock the reader goroutine to its
// own OS thread. Lower priorities and inherit share the runtime's threads.
package link
