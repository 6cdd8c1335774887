package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/c360/mavrouter/link"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		status  Status
		level   string
		healthy bool
	}{
		{status: NewHealthy("nats", "connected"), level: LevelHealthy, healthy: true},
		{status: NewDegraded("nats", "reconnecting"), level: LevelDegraded},
		{status: NewUnhealthy("nats", "closed"), level: LevelUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, "nats", tt.status.Component)
			assert.Equal(t, tt.level, tt.status.Status)
			assert.Equal(t, tt.healthy, tt.status.Healthy)
			assert.False(t, tt.status.Timestamp.IsZero())
		})
	}
}

func TestAggregate(t *testing.T) {
	assert.True(t, Aggregate("mavrouter", nil).IsHealthy())

	healthy := NewHealthy("a", "")
	degraded := NewDegraded("b", "")
	unhealthy := NewUnhealthy("c", "")

	assert.True(t, Aggregate("mavrouter", []Status{healthy, healthy}).IsHealthy())
	assert.True(t, Aggregate("mavrouter", []Status{healthy, degraded}).IsDegraded())

	agg := Aggregate("mavrouter", []Status{degraded, unhealthy, healthy})
	assert.True(t, agg.IsUnhealthy())
	assert.Len(t, agg.SubStatuses, 3)

	subs := []Status{healthy}
	agg = Aggregate("mavrouter", subs)
	subs[0] = unhealthy
	assert.True(t, agg.SubStatuses[0].IsHealthy(), "sub-statuses are copied")
}

func TestFromLink(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		stats link.Stats
		stale time.Duration
		want  string
	}{
		{name: "open and quiet", stats: link.Stats{State: link.StateOpen}, stale: time.Second, want: LevelHealthy},
		{name: "open and recent", stats: link.Stats{State: link.StateOpen, LastActivity: now}, stale: time.Minute, want: LevelHealthy},
		{name: "open and stale", stats: link.Stats{State: link.StateOpen, LastActivity: now.Add(-time.Hour)}, stale: time.Minute, want: LevelDegraded},
		{name: "stale check off", stats: link.Stats{State: link.StateOpen, LastActivity: now.Add(-time.Hour)}, want: LevelHealthy},
		{name: "closed", stats: link.Stats{State: link.StateClosed}, want: LevelDegraded},
		{name: "failed", stats: link.Stats{State: link.StateFailed}, want: LevelUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := FromLink("GCS", tt.stats, tt.stale)
			assert.Equal(t, "link:GCS", s.Component)
			assert.Equal(t, tt.want, s.Status)
		})
	}
}
