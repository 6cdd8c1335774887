package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mavrouter/errors"
	"github.com/c360/mavrouter/mavlink"
	"github.com/c360/mavrouter/metric"
	mocks "github.com/c360/mavrouter/testutil"
)

func newHub(t *testing.T, deps Deps) *Hub {
	t.Helper()
	h, err := New(deps)
	require.NoError(t, err)
	t.Cleanup(h.Close)
	return h
}

func drain(c <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-c:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func listEvents(events []Event) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type != EventMessageUpdated {
			out = append(out, ev)
		}
	}
	return out
}

func TestHub_HeartbeatScenario(t *testing.T) {
	h := newHub(t, Deps{})

	ok := h.Update(mocks.HeartbeatFrame(t, 1, mavlink.ComponentAutopilot1), time.Now())
	require.True(t, ok)

	snap, found := h.Message(1, mavlink.ComponentAutopilot1, "HEARTBEAT")
	require.True(t, found)
	assert.Equal(t, "HEARTBEAT", snap.Kind)
	assert.Len(t, snap.Timestamps, 1)
	assert.Equal(t, []uint8{1}, h.SystemIDs())
	assert.Equal(t, []mavlink.ComponentID{mavlink.ComponentAutopilot1}, h.ComponentIDs(1))
	assert.True(t, h.IsStored(1, mavlink.ComponentAutopilot1, "HEARTBEAT"))

	_, found = h.Message(1, mavlink.ComponentAutopilot1, "ATTITUDE")
	assert.False(t, found)
	_, found = h.Message(2, mavlink.ComponentAutopilot1, "HEARTBEAT")
	assert.False(t, found)
}

func TestHub_IdentityEvents(t *testing.T) {
	h := newHub(t, Deps{})
	sub := h.Subscribe(64)

	h.Update(mocks.HeartbeatFrame(t, 1, mavlink.ComponentAutopilot1), time.Now())
	h.Update(mocks.AttitudeFrame(t, 1, mavlink.ComponentAutopilot1, 0.1), time.Now())
	h.Update(mocks.HeartbeatFrame(t, 1, mavlink.ComponentGimbal), time.Now())

	events := drain(sub.C)
	lists := listEvents(events)
	require.Len(t, lists, 2)

	assert.Equal(t, EventSystemsChanged, lists[0].Type)
	assert.Equal(t, []uint8{1}, lists[0].SystemIDs)

	assert.Equal(t, EventComponentsChanged, lists[1].Type)
	assert.Equal(t, uint8(1), lists[1].SystemID)
	assert.Equal(t, []mavlink.ComponentID{mavlink.ComponentAutopilot1, mavlink.ComponentGimbal}, lists[1].ComponentIDs)

	assert.Len(t, events, 5, "two list events and three message events")
}

func TestHub_NewSystemOnlyAnnouncesSystems(t *testing.T) {
	h := newHub(t, Deps{})
	sub := h.Subscribe(64)

	h.Update(mocks.HeartbeatFrame(t, 1, mavlink.ComponentAutopilot1), time.Now())
	h.Update(mocks.HeartbeatFrame(t, 2, mavlink.ComponentGimbal), time.Now())

	lists := listEvents(drain(sub.C))
	require.Len(t, lists, 2)
	for _, ev := range lists {
		assert.Equal(t, EventSystemsChanged, ev.Type)
	}
	assert.Equal(t, []uint8{1, 2}, lists[1].SystemIDs)
}

func TestHub_MessageUpdatedEvent(t *testing.T) {
	h := newHub(t, Deps{})
	sub := h.Subscribe(8)
	at := time.Unix(1700000000, 0)

	h.Update(mocks.AttitudeFrame(t, 3, mavlink.ComponentOnboardComputer, 0.5), at)

	var updated []Event
	for _, ev := range drain(sub.C) {
		if ev.Type == EventMessageUpdated {
			updated = append(updated, ev)
		}
	}
	require.Len(t, updated, 1)
	assert.Equal(t, uint8(3), updated[0].SystemID)
	assert.Equal(t, mavlink.ComponentOnboardComputer, updated[0].ComponentID)
	assert.Equal(t, "ATTITUDE", updated[0].Kind)
	assert.Equal(t, at, updated[0].At)
}

func TestHub_RejectsUnattributedFrames(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	h := newHub(t, Deps{MetricsRegistry: registry})

	f := mocks.HeartbeatFrame(t, 1, mavlink.ComponentAutopilot1)
	f.SystemID = 0
	assert.False(t, h.Update(f, time.Now()))

	f = mocks.HeartbeatFrame(t, 1, mavlink.ComponentAutopilot1)
	f.Message = nil
	assert.False(t, h.Update(f, time.Now()))

	assert.Empty(t, h.SystemIDs())
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.framesRejected))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.framesAccepted))
}

func TestHub_ObserveUsesReceiptTime(t *testing.T) {
	h := newHub(t, Deps{})
	at := time.Unix(1700000123, 0)
	f := mocks.Frame(t, mocks.HeartbeatBytes(t, 7, mavlink.ComponentAutopilot1), at)

	h.Observe("gcs", f)

	snap, ok := h.Message(7, mavlink.ComponentAutopilot1, "HEARTBEAT")
	require.True(t, ok)
	assert.Equal(t, at, snap.LastUpdate())
}

func TestHub_ClearAnnouncesEmptyLists(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	h := newHub(t, Deps{MetricsRegistry: registry})
	h.Update(mocks.HeartbeatFrame(t, 1, mavlink.ComponentAutopilot1), time.Now())
	h.Update(mocks.HeartbeatFrame(t, 2, mavlink.ComponentAutopilot1), time.Now())
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.identities))

	sub := h.Subscribe(8)
	h.Clear()

	events := drain(sub.C)
	require.Len(t, events, 2)
	assert.Equal(t, EventSystemsChanged, events[0].Type)
	assert.Empty(t, events[0].SystemIDs)
	assert.Equal(t, EventComponentsChanged, events[1].Type)
	assert.Empty(t, events[1].ComponentIDs)

	assert.Empty(t, h.SystemIDs())
	assert.Empty(t, h.Identities())
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.identities))

	// identities are rediscovered after a clear
	sub2 := h.Subscribe(8)
	h.Update(mocks.HeartbeatFrame(t, 1, mavlink.ComponentAutopilot1), time.Now())
	lists := listEvents(drain(sub2.C))
	require.Len(t, lists, 1)
	assert.Equal(t, EventSystemsChanged, lists[0].Type)
}

func TestHub_Identities(t *testing.T) {
	h := newHub(t, Deps{})
	h.Update(mocks.HeartbeatFrame(t, 2, mavlink.ComponentAutopilot1), time.Now())
	h.Update(mocks.HeartbeatFrame(t, 1, mavlink.ComponentGimbal), time.Now())
	h.Update(mocks.HeartbeatFrame(t, 1, mavlink.ComponentAutopilot1), time.Now())

	assert.Equal(t, []Identity{
		{SystemID: 1, ComponentID: mavlink.ComponentAutopilot1},
		{SystemID: 1, ComponentID: mavlink.ComponentGimbal},
		{SystemID: 2, ComponentID: mavlink.ComponentAutopilot1},
	}, h.Identities())

	msgs, ok := h.Messages(1, mavlink.ComponentGimbal)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, "HEARTBEAT", msgs[0].Kind)

	_, ok = h.Messages(9, mavlink.ComponentGimbal)
	assert.False(t, ok)
}

func TestHub_ToggleArmState(t *testing.T) {
	tests := []struct {
		name   string
		arm    bool
		force  bool
		param1 float32
		param2 float32
	}{
		{"arm", true, false, 1, 0},
		{"disarm", false, false, 0, 0},
		{"force arm", true, true, 1, mavlink.ForceArmMagic},
		{"force disarm", false, true, 0, mavlink.ForceArmMagic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writer := mocks.NewMockLinkWriter()
			h := newHub(t, Deps{Writer: writer})

			ok := h.ToggleArmState("radio", 1, mavlink.ComponentAutopilot1, tt.arm, tt.force)
			require.True(t, ok)

			written := writer.FramesFor("radio")
			require.Len(t, written, 1)

			f := mocks.Frame(t, written[0], time.Now())
			assert.Equal(t, DefaultOperator.SystemID, f.SystemID)
			assert.Equal(t, DefaultOperator.ComponentID, f.ComponentID)

			cmd, isCmd := f.Message.(*common.MessageCommandLong)
			require.True(t, isCmd)
			assert.Equal(t, common.MAV_CMD_COMPONENT_ARM_DISARM, cmd.Command)
			assert.Equal(t, uint8(1), cmd.TargetSystem)
			assert.Equal(t, uint8(mavlink.ComponentAutopilot1), cmd.TargetComponent)
			assert.Equal(t, tt.param1, cmd.Param1)
			assert.Equal(t, tt.param2, cmd.Param2)
		})
	}
}

func TestHub_ToggleArmStateFailures(t *testing.T) {
	h := newHub(t, Deps{})
	assert.False(t, h.ToggleArmState("radio", 1, mavlink.ComponentAutopilot1, true, false), "no writer")

	writer := mocks.NewMockLinkWriter()
	writer.WriteFunc = func(string, []byte) (int, error) {
		return 0, errors.ErrUnknownLink
	}
	h.SetWriter(writer)
	assert.False(t, h.ToggleArmState("missing", 1, mavlink.ComponentAutopilot1, true, false))
	assert.Len(t, writer.Frames(), 1)
}

func TestHub_Operator(t *testing.T) {
	h := newHub(t, Deps{})
	assert.Equal(t, DefaultOperator, h.Operator())

	err := h.SetOperator(Identity{SystemID: 0, ComponentID: mavlink.ComponentMissionPlanner})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.Equal(t, DefaultOperator, h.Operator())

	op := Identity{SystemID: 200, ComponentID: mavlink.ComponentOnboardComputer}
	require.NoError(t, h.SetOperator(op))
	assert.Equal(t, op, h.Operator())

	raw, err := h.Heartbeat()
	require.NoError(t, err)
	f := mocks.Frame(t, raw, time.Now())
	assert.Equal(t, uint8(200), f.SystemID)
	assert.Equal(t, mavlink.ComponentOnboardComputer, f.ComponentID)
	assert.Equal(t, "HEARTBEAT", f.Kind())
}

func TestHub_ConfiguredOperator(t *testing.T) {
	op := Identity{SystemID: 42, ComponentID: mavlink.ComponentMissionPlanner}
	h := newHub(t, Deps{Operator: op})
	assert.Equal(t, op, h.Operator())
}

func TestHub_ConcurrentUpdates(t *testing.T) {
	h := newHub(t, Deps{})
	sub := h.Subscribe(4096)

	var wg sync.WaitGroup
	for sys := uint8(1); sys <= 4; sys++ {
		f := mocks.HeartbeatFrame(t, sys, mavlink.ComponentAutopilot1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				h.Update(f, time.Now())
				h.SystemIDs()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, []uint8{1, 2, 3, 4}, h.SystemIDs())
	lists := listEvents(drain(sub.C))
	assert.Len(t, lists, 4, "each system announced exactly once")
	// list events carry a growing system list
	for i, ev := range lists {
		assert.Len(t, ev.SystemIDs, i+1, fmt.Sprintf("event %d", i))
	}
}

func TestEvent_JSON(t *testing.T) {
	ev := Event{
		Type:      EventSystemsChanged,
		SystemIDs: []uint8{1, 2},
		At:        time.Unix(0, 0).UTC(),
	}
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"identity_list_changed","system_ids":[1,2],"at":"1970-01-01T00:00:00Z"}`, string(raw))

	ev = Event{
		Type:         EventComponentsChanged,
		SystemID:     1,
		ComponentIDs: []mavlink.ComponentID{1, 154},
		At:           time.Unix(0, 0).UTC(),
	}
	raw, err = json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"component_list_changed","system_id":1,"component_ids":[1,154],"at":"1970-01-01T00:00:00Z"}`, string(raw))
}
