package pubsub

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mavrouter/metric"
)

func TestBus_FanOut(t *testing.T) {
	bus := New[int]()
	a := bus.Subscribe(4)
	b := bus.Subscribe(4)
	defer a.Close()
	defer b.Close()

	bus.Publish(1)
	bus.Publish(2)

	assert.Equal(t, 1, <-a.C)
	assert.Equal(t, 2, <-a.C)
	assert.Equal(t, 1, <-b.C)
	assert.Equal(t, 2, <-b.C)
	assert.Equal(t, 2, bus.Len())
}

func TestBus_SlowSubscriberDrops(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	bus := New[int](WithMetrics[int](registry, "test_bus"))
	slow := bus.Subscribe(1)
	fast := bus.Subscribe(10)

	for i := 0; i < 5; i++ {
		bus.Publish(i)
	}

	assert.Equal(t, int64(4), slow.Dropped())
	assert.Equal(t, int64(0), fast.Dropped())
	assert.Equal(t, 0, <-slow.C)
	assert.Len(t, fast.C, 5)

	assert.Equal(t, float64(5), testutil.ToFloat64(bus.published))
	assert.Equal(t, float64(4), testutil.ToFloat64(bus.dropped))
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	bus := New[string]()
	s := bus.Subscribe(0)

	s.Close()
	s.Close()

	_, ok := <-s.C
	assert.False(t, ok)
	assert.Equal(t, 0, bus.Len())

	// publishing after unsubscribe does not panic
	bus.Publish("late")
}

func TestBus_Close(t *testing.T) {
	bus := New[int]()
	s := bus.Subscribe(1)

	bus.Close()
	bus.Close()
	bus.Publish(1)

	_, ok := <-s.C
	assert.False(t, ok)

	after := bus.Subscribe(1)
	_, ok = <-after.C
	assert.False(t, ok, "subscribing to a closed bus yields a closed channel")
	after.Close()
	s.Close()
}

func TestBus_ConcurrentPublishSubscribe(t *testing.T) {
	bus := New[int]()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				bus.Publish(j)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s := bus.Subscribe(8)
				s.Close()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 0, bus.Len())
}
