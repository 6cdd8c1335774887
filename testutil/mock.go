package testutil

import (
	"sync"
)

// WrittenFrame is one call recorded by MockLinkWriter.
type WrittenFrame struct {
	Link  string
	Bytes []byte
}

// MockLinkWriter records frames written to named links. It satisfies
// hub.LinkWriter and the router's write contract.
type MockLinkWriter struct {
	mu sync.Mutex

	// WriteFunc, when set, decides the result of every Write after it is recorded.
	WriteFunc func(link string, frame []byte) (int, error)

	frames []WrittenFrame
}

// NewMockLinkWriter creates a writer that accepts every frame.
func NewMockLinkWriter() *MockLinkWriter {
	return &MockLinkWriter{}
}

// Write records frame against link.
func (w *MockLinkWriter) Write(link string, frame []byte) (int, error) {
	w.mu.Lock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	w.frames = append(w.frames, WrittenFrame{Link: link, Bytes: cp})
	fn := w.WriteFunc
	w.mu.Unlock()

	if fn != nil {
		return fn(link, frame)
	}
	return len(frame), nil
}

// Frames returns a copy of every recorded write.
func (w *MockLinkWriter) Frames() []WrittenFrame {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]WrittenFrame, len(w.frames))
	copy(out, w.frames)
	return out
}

// FramesFor returns the bytes written to one link, in order.
func (w *MockLinkWriter) FramesFor(link string) [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out [][]byte
	for _, f := range w.frames {
		if f.Link == link {
			out = append(out, f.Bytes)
		}
	}
	return out
}

// Reset forgets recorded writes.
func (w *MockLinkWriter) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames = nil
}
