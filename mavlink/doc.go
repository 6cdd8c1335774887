// Package mavlink wraps the gomavlib codec for link readers and the hub.
//
// The Decoder does its own framing so the exact bytes of every frame are kept
// for relaying: it locates a start marker (0xFE for v1, 0xFD for v2), computes
// the frame length from the header, and hands exactly that slice to gomavlib
// for checksum validation and payload decoding. A rejected candidate costs one
// byte and the search resumes, so a corrupt frame never loses the frames
// around it.
//
// Kind names are the upper snake case message names of the common dialect
// ("HEARTBEAT", "GPS_RAW_INT"); ids the dialect does not know are named
// UNKNOWN_<id>.
package mavlink
