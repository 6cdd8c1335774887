package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mavrouter/errors"
)

func startUDP(t *testing.T, cfg Config) *UDP {
	t.Helper()
	tr, err := New(cfg)
	require.NoError(t, err)
	u, ok := tr.(*UDP)
	require.True(t, ok)
	require.NoError(t, u.Start(context.Background()))
	t.Cleanup(func() { _ = u.Stop() })
	return u
}

// readWithin polls ReadBytes until data arrives or the deadline passes.
func readWithin(t *testing.T, tr Transport, d time.Duration) []byte {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		data, err := tr.ReadBytes()
		require.NoError(t, err)
		if len(data) > 0 {
			return data
		}
	}
	t.Fatalf("no data within %v", d)
	return nil
}

func TestUDP_ServerRepliesToLastSender(t *testing.T) {
	server := startUDP(t, Config{Kind: KindUDP, UDP: &UDPConfig{LocalAddress: "127.0.0.1"}})
	serverAddr := server.LocalAddr()
	require.NotNil(t, serverAddr)

	client := startUDP(t, Config{Kind: KindUDP, UDP: &UDPConfig{
		LocalAddress: "127.0.0.1",
		HostAddress:  "127.0.0.1",
		HostPort:     serverAddr.Port,
	}})

	_, err := server.WriteBytes([]byte{0x01})
	assert.ErrorIs(t, err, errors.ErrNoPeer)
	assert.True(t, errors.IsTransient(err))

	n, err := client.WriteBytes([]byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("ping"), readWithin(t, server, time.Second))
	assert.Equal(t, client.LocalAddr().Port, server.Peer().Port)

	_, err = server.WriteBytes([]byte("pong"))
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), readWithin(t, client, time.Second))
}

func TestUDP_ReadTimesOutEmpty(t *testing.T) {
	u := startUDP(t, Config{Kind: KindUDP, UDP: &UDPConfig{LocalAddress: "127.0.0.1"}})

	start := time.Now()
	data, err := u.ReadBytes()
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestUDP_StartStopIdempotent(t *testing.T) {
	u := startUDP(t, Config{Kind: KindUDP, UDP: &UDPConfig{LocalAddress: "127.0.0.1"}})
	addr := u.LocalAddr()

	require.NoError(t, u.Start(context.Background()))
	assert.Equal(t, addr, u.LocalAddr())

	require.NoError(t, u.Stop())
	require.NoError(t, u.Stop())
	assert.Nil(t, u.LocalAddr())

	_, err := u.ReadBytes()
	assert.ErrorIs(t, err, errors.ErrNotOpen)
	_, err = u.WriteBytes([]byte{1})
	assert.ErrorIs(t, err, errors.ErrNotOpen)
}

func TestUDP_BindConflict(t *testing.T) {
	taken, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer taken.Close()

	tr, err := New(Config{Kind: KindUDP, UDP: &UDPConfig{
		LocalAddress: "127.0.0.1",
		LocalPort:    taken.LocalAddr().(*net.UDPAddr).Port,
	}})
	require.NoError(t, err)

	err = tr.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBindFailed)

	_, err = tr.ReadBytes()
	assert.ErrorIs(t, err, errors.ErrNotOpen)
}

func TestUDP_ConfigRoundTrip(t *testing.T) {
	cfg := Config{Kind: KindUDP, UDP: &UDPConfig{LocalAddress: "127.0.0.1", LocalPort: 14550}}
	tr, err := New(cfg)
	require.NoError(t, err)

	assert.Equal(t, KindUDP, tr.Kind())
	assert.Equal(t, cfg, tr.Config())
}
