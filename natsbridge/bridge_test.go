package natsbridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mavrouter/errors"
	"github.com/c360/mavrouter/hub"
	"github.com/c360/mavrouter/mavlink"
	"github.com/c360/mavrouter/metric"
	mocks "github.com/c360/mavrouter/testutil"
)

func startBridge(t *testing.T, cfg Config, registry *metric.MetricsRegistry) (*Bridge, *hub.Hub, *mocks.MockNATSClient, *mocks.MockLinkWriter) {
	t.Helper()
	writer := mocks.NewMockLinkWriter()
	h, err := hub.New(hub.Deps{Writer: writer})
	require.NoError(t, err)
	t.Cleanup(h.Close)

	client := mocks.NewMockNATSClient()
	b, err := New(Deps{Config: cfg, Source: h, Client: client, MetricsRegistry: registry})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("bridge did not stop")
		}
	})

	// Run subscribes asynchronously; a probe message confirms it is listening.
	probe := b.MessageSubject(250, mavlink.ComponentAutopilot1, "HEARTBEAT")
	require.Eventually(t, func() bool {
		h.Update(mocks.HeartbeatFrame(t, 250, mavlink.ComponentAutopilot1), time.Now())
		return client.GetMessageCount(probe) > 0
	}, 2*time.Second, 10*time.Millisecond)
	h.Clear()
	require.Eventually(t, func() bool {
		return client.GetMessageCount(b.ComponentsSubject(0)) > 0
	}, 2*time.Second, 10*time.Millisecond)
	client.ClearAll()

	return b, h, client, writer
}

// wireEvent mirrors the JSON form of hub.Event.
type wireEvent struct {
	Type         string `json:"type"`
	SystemIDs    []int  `json:"system_ids"`
	SystemID     int    `json:"system_id"`
	ComponentIDs []int  `json:"component_ids"`
	ComponentID  int    `json:"component_id"`
	Kind         string `json:"kind"`
}

type wireEnvelope struct {
	Source string    `json:"source"`
	Event  wireEvent `json:"event"`
}

func decode(t *testing.T, data []byte) wireEnvelope {
	t.Helper()
	var env wireEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestNew_Validation(t *testing.T) {
	h, err := hub.New(hub.Deps{})
	require.NoError(t, err)
	defer h.Close()

	_, err = New(Deps{Source: h})
	assert.True(t, errors.IsInvalid(err))

	_, err = New(Deps{Source: h, Client: mocks.NewMockNATSClient(), Config: Config{Prefix: "bad.>"}})
	assert.True(t, errors.IsInvalid(err))

	b, err := New(Deps{Source: h, Client: mocks.NewMockNATSClient()})
	require.NoError(t, err)
	assert.Equal(t, "mavrouter.identity.systems", b.SystemsSubject())
	assert.Equal(t, "mavrouter.identity.7.components", b.ComponentsSubject(7))
	assert.Equal(t, "mavrouter.message.1.154.HEARTBEAT", b.MessageSubject(1, 154, "HEARTBEAT"))
	assert.Equal(t, "mavrouter.command.arm", b.CommandSubject())
	assert.NotEmpty(t, b.ID())
}

func TestBridge_PublishesIdentityEvents(t *testing.T) {
	b, h, client, _ := startBridge(t, Config{Prefix: "fleet"}, nil)

	h.Update(mocks.HeartbeatFrame(t, 1, mavlink.ComponentAutopilot1), time.Now())
	h.Update(mocks.HeartbeatFrame(t, 1, mavlink.ComponentID(154)), time.Now())

	mocks.WaitForMessageCount(t, client, "fleet.message.1.154.HEARTBEAT", 1, 2*time.Second)

	systems := client.GetMessages("fleet.identity.systems")
	require.Len(t, systems, 1)
	env := decode(t, systems[0])
	assert.Equal(t, b.ID(), env.Source)
	assert.Equal(t, "identity_list_changed", env.Event.Type)
	assert.Equal(t, []int{1}, env.Event.SystemIDs)

	comps := client.GetMessages("fleet.identity.1.components")
	require.Len(t, comps, 1)
	env = decode(t, comps[0])
	assert.Equal(t, "component_list_changed", env.Event.Type)
	assert.Equal(t, 1, env.Event.SystemID)
	assert.Equal(t, []int{1, 154}, env.Event.ComponentIDs)

	require.Len(t, client.GetMessages("fleet.message.1.1.HEARTBEAT"), 1)
	env = decode(t, client.GetMessages("fleet.message.1.154.HEARTBEAT")[0])
	assert.Equal(t, "message_updated", env.Event.Type)
	assert.Equal(t, 154, env.Event.ComponentID)
	assert.Equal(t, "HEARTBEAT", env.Event.Kind)
}

func TestBridge_IncludePayload(t *testing.T) {
	_, h, client, _ := startBridge(t, Config{IncludePayload: true}, nil)

	h.Update(mocks.AttitudeFrame(t, 3, mavlink.ComponentAutopilot1, 0.5), time.Now())
	subject := "mavrouter.message.3.1.ATTITUDE"
	mocks.WaitForMessageCount(t, client, subject, 1, 2*time.Second)

	var env struct {
		Message struct {
			Kind       string         `json:"kind"`
			Message    map[string]any `json:"message"`
			Timestamps []time.Time    `json:"timestamps"`
		} `json:"message"`
	}
	require.NoError(t, json.Unmarshal(client.GetMessages(subject)[0], &env))
	assert.Equal(t, "ATTITUDE", env.Message.Kind)
	assert.InDelta(t, 0.5, env.Message.Message["Roll"], 1e-6)
	assert.Len(t, env.Message.Timestamps, 1)
}

func TestBridge_PublishFailureCounted(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	b, h, client, _ := startBridge(t, Config{}, registry)

	client.FailPublish(errors.ErrNotFound)
	h.Update(mocks.HeartbeatFrame(t, 9, mavlink.ComponentAutopilot1), time.Now())

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(b.published.WithLabelValues("message_updated", "error")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(b.published.WithLabelValues("identity_list_changed", "error")))
	assert.Empty(t, client.Subjects())
}

func TestBridge_ArmCommand(t *testing.T) {
	b, _, client, writer := startBridge(t, Config{AcceptCommands: true}, nil)

	body, err := json.Marshal(ArmCommand{Link: "radio", SystemID: 1, ComponentID: 1, Arm: true, Force: true})
	require.NoError(t, err)
	require.NoError(t, client.Publish(context.Background(), b.CommandSubject(), body))

	frames := writer.FramesFor("radio")
	require.Len(t, frames, 1)
	fr := mocks.Frame(t, frames[0], time.Now())
	assert.Equal(t, "COMMAND_LONG", mavlink.KindName(fr.Message))

	require.NoError(t, client.Publish(context.Background(), b.CommandSubject(), []byte("{not json")))
	require.NoError(t, client.Publish(context.Background(), b.CommandSubject(), []byte(`{"link":"radio"}`)))
	assert.Len(t, writer.FramesFor("radio"), 1)
}
