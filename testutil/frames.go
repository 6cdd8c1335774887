package testutil

import (
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/stretchr/testify/require"

	"github.com/c360/mavrouter/mavlink"
)

// Encode returns the wire bytes of msg sent from (sysID, compID).
func Encode(t *testing.T, sysID uint8, compID mavlink.ComponentID, msg message.Message) []byte {
	t.Helper()
	enc, err := mavlink.NewEncoder(sysID, compID)
	require.NoError(t, err)
	raw, err := enc.Encode(msg)
	require.NoError(t, err)
	return raw
}

// HeartbeatBytes returns an encoded GCS heartbeat from (sysID, compID).
func HeartbeatBytes(t *testing.T, sysID uint8, compID mavlink.ComponentID) []byte {
	t.Helper()
	enc, err := mavlink.NewEncoder(sysID, compID)
	require.NoError(t, err)
	raw, err := enc.Heartbeat()
	require.NoError(t, err)
	return raw
}

// Frame decodes raw, which must hold exactly one frame, and stamps it with at.
func Frame(t *testing.T, raw []byte, at time.Time) mavlink.Frame {
	t.Helper()
	dec, err := mavlink.NewDecoder()
	require.NoError(t, err)
	frames := dec.Decode(raw, at)
	require.Len(t, frames, 1)
	return frames[0]
}

// HeartbeatFrame returns a decoded heartbeat from (sysID, compID).
func HeartbeatFrame(t *testing.T, sysID uint8, compID mavlink.ComponentID) mavlink.Frame {
	t.Helper()
	return Frame(t, HeartbeatBytes(t, sysID, compID), time.Now())
}

// AttitudeFrame returns a decoded ATTITUDE message from (sysID, compID).
func AttitudeFrame(t *testing.T, sysID uint8, compID mavlink.ComponentID, roll float32) mavlink.Frame {
	t.Helper()
	raw := Encode(t, sysID, compID, &common.MessageAttitude{TimeBootMs: 1000, Roll: roll})
	return Frame(t, raw, time.Now())
}
