package hub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/mavrouter/mavlink"
	"github.com/c360/mavrouter/pkg/textenum"
)

// EventType distinguishes hub notifications.
type EventType int

const (
	// EventSystemsChanged carries the full sorted system id list after a new
	// system appeared or the hub was cleared.
	EventSystemsChanged EventType = iota + 1
	// EventComponentsChanged carries the sorted component ids of one system
	// after a new component appeared under an already known system.
	EventComponentsChanged
	// EventMessageUpdated names the identity and kind that was just stored.
	EventMessageUpdated
)

var eventTypes = textenum.New("event type", map[EventType]string{
	EventSystemsChanged:    "identity_list_changed",
	EventComponentsChanged: "component_list_changed",
	EventMessageUpdated:    "message_updated",
})

func (e EventType) String() string {
	return eventTypes.String(e, fmt.Sprintf("EventType(%d)", int(e)))
}

// MarshalText implements encoding.TextMarshaler.
func (e EventType) MarshalText() ([]byte, error) { return eventTypes.Marshal(e) }

// Event is one hub notification. Which fields are set depends on Type.
type Event struct {
	Type         EventType             `json:"type"`
	SystemIDs    []uint8               `json:"system_ids,omitempty"`
	SystemID     uint8                 `json:"system_id,omitempty"`
	ComponentIDs []mavlink.ComponentID `json:"component_ids,omitempty"`
	ComponentID  mavlink.ComponentID   `json:"component_id,omitempty"`
	Kind         string                `json:"kind,omitempty"`
	At           time.Time             `json:"at"`
}

// MarshalJSON writes SystemIDs as a number array rather than base64.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	var ids []int
	if e.SystemIDs != nil {
		ids = make([]int, len(e.SystemIDs))
		for i, id := range e.SystemIDs {
			ids[i] = int(id)
		}
	}
	return json.Marshal(struct {
		plain
		SystemIDs []int `json:"system_ids,omitempty"`
	}{plain: plain(e), SystemIDs: ids})
}

// Identity is a remote protocol participant.
type Identity struct {
	SystemID    uint8               `json:"system_id"`
	ComponentID mavlink.ComponentID `json:"component_id"`
}

func (i Identity) String() string {
	return fmt.Sprintf("%d/%s", i.SystemID, i.ComponentID)
}
