// Package aggregator keeps the latest message of every kind seen from one
// remote identity, with a bounded history of receipt times per kind.
package aggregator

import (
	"sort"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/c360/mavrouter/mavlink"
	"github.com/c360/mavrouter/pkg/buffer"
)

// HistoryCapacity is the number of receipt times kept per message kind.
const HistoryCapacity = 50

// Snapshot is a copy of one message slot.
type Snapshot struct {
	Kind       string          `json:"kind"`
	ID         uint32          `json:"id"`
	Message    message.Message `json:"message"`
	Timestamps []time.Time     `json:"timestamps"` // oldest first
	Updates    int64           `json:"updates"`
}

// LastUpdate returns the newest receipt time.
func (s Snapshot) LastUpdate() time.Time {
	if len(s.Timestamps) == 0 {
		return time.Time{}
	}
	return s.Timestamps[len(s.Timestamps)-1]
}

// Rate returns messages per second over the retained history, or 0 when
// fewer than two receipts are known.
func (s Snapshot) Rate() float64 {
	if len(s.Timestamps) < 2 {
		return 0
	}
	span := s.Timestamps[len(s.Timestamps)-1].Sub(s.Timestamps[0]).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(len(s.Timestamps)-1) / span
}

type slot struct {
	id     uint32
	latest message.Message
	times  buffer.Buffer[time.Time]
}

func (s *slot) snapshot(kind string) Snapshot {
	return Snapshot{
		Kind:       kind,
		ID:         s.id,
		Message:    s.latest,
		Timestamps: s.times.Snapshot(),
		Updates:    s.times.Stats().Pushes,
	}
}

// Aggregator owns the message slots of one identity. Safe for concurrent use.
type Aggregator struct {
	mu    sync.RWMutex
	slots map[string]*slot
	kinds map[uint32]string
}

// New creates an empty aggregator.
func New() *Aggregator {
	return &Aggregator{
		slots: make(map[string]*slot),
		kinds: make(map[uint32]string),
	}
}

// Update stores msg as the latest of its kind and records at in the kind's
// history, evicting the oldest entry once HistoryCapacity is reached. It
// returns the kind name, or "" for a nil message.
func (a *Aggregator) Update(msg message.Message, at time.Time) string {
	if msg == nil {
		return ""
	}
	kind := mavlink.KindName(msg)

	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.slots[kind]
	if !ok {
		s = &slot{
			id:    msg.GetID(),
			times: buffer.NewRing[time.Time](HistoryCapacity, buffer.WithOverflowPolicy[time.Time](buffer.DropOldest)),
		}
		a.slots[kind] = s
		a.kinds[s.id] = kind
	}
	s.latest = msg
	s.times.Push(at)
	return kind
}

// IsStored reports whether a message of the named kind has been seen.
func (a *Aggregator) IsStored(kind string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.slots[kind]
	return ok
}

// IsStoredID reports whether a message with the numeric id has been seen.
func (a *Aggregator) IsStoredID(id uint32) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.kinds[id]
	return ok
}

// Get returns a copy of the slot for kind.
func (a *Aggregator) Get(kind string) (Snapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.slots[kind]
	if !ok {
		return Snapshot{}, false
	}
	return s.snapshot(kind), true
}

// GetAll returns copies of every slot, sorted by kind name.
func (a *Aggregator) GetAll() []Snapshot {
	a.mu.RLock()
	out := make([]Snapshot, 0, len(a.slots))
	for kind, s := range a.slots {
		out = append(out, s.snapshot(kind))
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Kinds returns the stored kind names, sorted.
func (a *Aggregator) Kinds() []string {
	a.mu.RLock()
	out := make([]string, 0, len(a.slots))
	for kind := range a.slots {
		out = append(out, kind)
	}
	a.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Len returns the number of stored kinds.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.slots)
}

// Clear drops every slot.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.slots = make(map[string]*slot)
	a.kinds = make(map[uint32]string)
}
