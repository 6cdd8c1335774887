package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mavrouter/metric"
)

func TestNewPool(t *testing.T) {
	noop := func(context.Context, int) error { return nil }

	p, err := NewPool("test", 5, 100, noop)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stats().Workers)
	assert.Equal(t, 100, p.Stats().QueueSize)

	p, err = NewPool("test", 0, 0, noop)
	require.NoError(t, err)
	assert.Equal(t, defaultWorkers, p.Stats().Workers)
	assert.Equal(t, defaultQueueSize, p.Stats().QueueSize)

	_, err = NewPool[int]("test", 1, 1, nil)
	assert.ErrorIs(t, err, ErrNilProcessor)
}

func TestPool_Lifecycle(t *testing.T) {
	var processed atomic.Int64
	p, err := NewPool("test", 2, 10, func(context.Context, int) error {
		processed.Add(1)
		return nil
	})
	require.NoError(t, err)

	assert.ErrorIs(t, p.Submit(1), ErrPoolNotStarted)

	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrPoolAlreadyStarted)

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(i))
	}
	require.NoError(t, p.Stop(time.Second))
	assert.Equal(t, int64(5), processed.Load(), "Stop drains accepted items")

	assert.ErrorIs(t, p.Submit(6), ErrPoolStopped)
	assert.NoError(t, p.Stop(time.Second), "second Stop is a no-op")
}

func TestPool_SingleWorkerKeepsOrder(t *testing.T) {
	var mu sync.Mutex
	var got []int
	p, err := NewPool("ordered", 1, 100, func(_ context.Context, v int) error {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	want := make([]int, 50)
	for i := range want {
		want[i] = i
		require.NoError(t, p.Submit(i))
	}
	require.NoError(t, p.Stop(time.Second))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got)
}

func TestPool_QueueFull(t *testing.T) {
	release := make(chan struct{})
	p, err := NewPool("full", 1, 1, func(context.Context, int) error {
		<-release
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	require.NoError(t, p.Submit(1))
	// wait until the worker holds item 1 so the queue slot is free again
	require.Eventually(t, func() bool { return p.Stats().QueueDepth == 0 }, time.Second, time.Millisecond)
	require.NoError(t, p.Submit(2))
	assert.ErrorIs(t, p.Submit(3), ErrQueueFull)
	assert.Equal(t, int64(1), p.Stats().Dropped)

	close(release)
	require.NoError(t, p.Stop(time.Second))
	assert.Equal(t, int64(2), p.Stats().Processed)
}

func TestPool_Failures(t *testing.T) {
	boom := errors.New("boom")
	registry := metric.NewMetricsRegistry()
	p, err := NewPool("failing", 1, 10, func(_ context.Context, v int) error {
		if v%2 == 0 {
			return boom
		}
		return nil
	}, WithMetrics[int](registry))
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	for i := 0; i < 4; i++ {
		require.NoError(t, p.Submit(i))
	}
	require.NoError(t, p.Stop(time.Second))

	stats := p.Stats()
	assert.Equal(t, int64(4), stats.Submitted)
	assert.Equal(t, int64(4), stats.Processed)
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, float64(4), testutil.ToFloat64(p.metrics.submitted))
	assert.Equal(t, float64(2), testutil.ToFloat64(p.metrics.failed))
}

func TestPool_StopTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	p, err := NewPool("stuck", 1, 1, func(context.Context, int) error {
		<-release
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Submit(1))

	assert.ErrorIs(t, p.Stop(20*time.Millisecond), ErrStopTimeout)
}

func TestPool_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p, err := NewPool("cancel", 2, 10, func(context.Context, int) error { return nil })
	require.NoError(t, err)
	require.NoError(t, p.Start(ctx))

	cancel()
	assert.NoError(t, p.Stop(time.Second))
}
