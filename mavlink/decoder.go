package mavlink

import (
	"bytes"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialect"
	"github.com/bluenviron/gomavlib/v3/pkg/frame"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

// Wire framing constants.
const (
	stxV1 = 0xFE
	stxV2 = 0xFD

	headerLenV1    = 6
	headerLenV2    = 10
	checksumLen    = 2
	signatureLen   = 13
	incompatSigned = 0x01

	// MaxFrameLen is the longest possible frame: a signed v2 frame with a
	// 255 byte payload.
	MaxFrameLen = headerLenV2 + 255 + checksumLen + signatureLen
)

// Frame is one validated frame read from a link. Raw holds the exact bytes
// received so the frame can be relayed unchanged.
type Frame struct {
	Raw         []byte
	Version     int
	Sequence    uint8
	SystemID    uint8
	ComponentID ComponentID
	Message     message.Message
	ReceivedAt  time.Time
}

// MessageID returns the numeric id of the carried message.
func (f Frame) MessageID() uint32 {
	if f.Message == nil {
		return 0
	}
	return f.Message.GetID()
}

// Kind returns the kind name of the carried message.
func (f Frame) Kind() string {
	return KindName(f.Message)
}

// DecoderStats counts decoder activity since creation.
type DecoderStats struct {
	Frames    int64
	Discarded int64 // candidate frames rejected (bad checksum, bad payload)
	Skipped   int64 // bytes dropped while searching for a start marker
}

// Decoder splits a byte stream into frames. It is not safe for concurrent
// use; each link reader owns one.
type Decoder struct {
	rw    *dialect.ReadWriter
	buf   []byte
	stats DecoderStats
}

// NewDecoder creates a decoder for the package dialect.
func NewDecoder() (*Decoder, error) {
	rw, err := dialectRW()
	if err != nil {
		return nil, err
	}
	return &Decoder{
		rw:  rw,
		buf: make([]byte, 0, 2*MaxFrameLen),
	}, nil
}

// frameLen returns the full length of the frame starting at b[0], or 0 if
// not enough header bytes are buffered to tell.
func frameLen(b []byte) int {
	switch b[0] {
	case stxV1:
		if len(b) < 2 {
			return 0
		}
		return headerLenV1 + int(b[1]) + checksumLen
	default:
		if len(b) < 3 {
			return 0
		}
		n := headerLenV2 + int(b[1]) + checksumLen
		if b[2]&incompatSigned != 0 {
			n += signatureLen
		}
		return n
	}
}

// nextSTX returns the index of the first start marker at or after from, or -1.
func nextSTX(b []byte, from int) int {
	for i := from; i < len(b); i++ {
		if b[i] == stxV1 || b[i] == stxV2 {
			return i
		}
	}
	return -1
}

// Decode appends p to the internal buffer and returns every complete frame
// now available, stamped with at. A candidate that fails validation costs one
// byte: decoding resumes at the next start marker after its first byte.
func (d *Decoder) Decode(p []byte, at time.Time) []Frame {
	d.buf = append(d.buf, p...)

	var frames []Frame
	off := 0
	for off < len(d.buf) {
		start := nextSTX(d.buf, off)
		if start < 0 {
			d.stats.Skipped += int64(len(d.buf) - off)
			off = len(d.buf)
			break
		}
		d.stats.Skipped += int64(start - off)
		off = start

		n := frameLen(d.buf[off:])
		if n == 0 || len(d.buf)-off < n {
			break
		}

		candidate := d.buf[off : off+n]
		fr, err := d.parse(candidate)
		if err != nil {
			d.stats.Discarded++
			off++
			continue
		}

		raw := make([]byte, n)
		copy(raw, candidate)
		frames = append(frames, Frame{
			Raw:         raw,
			Version:     versionOf(fr),
			Sequence:    fr.GetSequenceNumber(),
			SystemID:    fr.GetSystemID(),
			ComponentID: ComponentID(fr.GetComponentID()),
			Message:     fr.GetMessage(),
			ReceivedAt:  at,
		})
		d.stats.Frames++
		off += n
	}

	d.buf = d.buf[:copy(d.buf, d.buf[off:])]
	return frames
}

func (d *Decoder) parse(candidate []byte) (frame.Frame, error) {
	r := &frame.Reader{
		ByteReader: bytes.NewReader(candidate),
		DialectRW:  d.rw,
	}
	if err := r.Initialize(); err != nil {
		return nil, err
	}
	return r.Read()
}

func versionOf(fr frame.Frame) int {
	if _, ok := fr.(*frame.V1Frame); ok {
		return 1
	}
	return 2
}

// Buffered returns the number of bytes waiting for the rest of a frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Stats returns decoder counters.
func (d *Decoder) Stats() DecoderStats {
	return d.stats
}

// Reset drops buffered bytes.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}
