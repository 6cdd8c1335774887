package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360/mavrouter/health"
)

func TestNATSHealth_FollowsCallbacks(t *testing.T) {
	state := &natsLiveness{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	status := "disconnected"
	check := natsHealth(state, func() string { return status })

	got := check()
	assert.Equal(t, "nats", got.Component)
	assert.False(t, got.Healthy)

	status = "connected"
	state.set(true)
	got = check()
	assert.True(t, got.Healthy)
	assert.Equal(t, health.LevelHealthy, got.Status)
	assert.Equal(t, "connected", got.Message)

	// repeated callbacks keep the state
	state.set(true)
	assert.True(t, check().Healthy)

	status = "reconnecting"
	state.set(false)
	got = check()
	assert.False(t, got.Healthy)
	assert.Equal(t, "reconnecting", got.Message)
}
