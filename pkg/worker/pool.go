// Package worker provides a bounded generic worker pool.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/mavrouter/metric"
)

const (
	defaultWorkers   = 1
	defaultQueueSize = 1024
)

// Pool runs a fixed number of goroutines that feed queued items to a
// processor. Submit never blocks; a full queue drops the item.
type Pool[T any] struct {
	name      string
	workers   int
	queueSize int
	processor func(context.Context, T) error

	work    chan T
	wg      sync.WaitGroup
	metrics *poolMetrics

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

type poolMetrics struct {
	queueDepth prometheus.Gauge
	submitted  prometheus.Counter
	failed     prometheus.Counter
	dropped    prometheus.Counter
	duration   prometheus.Histogram
}

// Option configures a pool.
type Option[T any] func(*Pool[T])

// WithMetrics registers pool metrics labelled with the pool name. A nil
// registry is ignored.
func WithMetrics[T any](registry *metric.MetricsRegistry) Option[T] {
	return func(p *Pool[T]) {
		if registry == nil {
			return
		}
		labels := prometheus.Labels{"pool": p.name}
		m := &poolMetrics{
			queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "mavrouter", Subsystem: "worker", Name: "queue_depth",
				Help: "Items waiting in the pool queue", ConstLabels: labels,
			}),
			submitted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "mavrouter", Subsystem: "worker", Name: "submitted_total",
				Help: "Items accepted by the pool", ConstLabels: labels,
			}),
			failed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "mavrouter", Subsystem: "worker", Name: "failed_total",
				Help: "Items whose processor returned an error", ConstLabels: labels,
			}),
			dropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "mavrouter", Subsystem: "worker", Name: "dropped_total",
				Help: "Items dropped because the queue was full", ConstLabels: labels,
			}),
			duration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "mavrouter", Subsystem: "worker", Name: "processing_seconds",
				Help:        "Time spent processing one item",
				Buckets:     []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
				ConstLabels: labels,
			}),
		}
		owner := "worker_" + p.name
		registry.RegisterGauge(owner, "queue_depth", m.queueDepth)
		registry.RegisterCounter(owner, "submitted", m.submitted)
		registry.RegisterCounter(owner, "failed", m.failed)
		registry.RegisterCounter(owner, "dropped", m.dropped)
		registry.RegisterHistogram(owner, "processing_seconds", m.duration)
		p.metrics = m
	}
}

// NewPool creates a stopped pool. Non-positive workers or queueSize fall
// back to 1 worker and a 1024-item queue.
func NewPool[T any](name string, workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) (*Pool[T], error) {
	if processor == nil {
		return nil, ErrNilProcessor
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	p := &Pool[T]{
		name:      name,
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		work:      make(chan T, queueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Submit queues an item. It returns ErrQueueFull instead of blocking.
func (p *Pool[T]) Submit(item T) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.work <- item:
		p.submitted.Add(1)
		if p.metrics != nil {
			p.metrics.submitted.Inc()
			p.metrics.queueDepth.Set(float64(len(p.work)))
		}
		return nil
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.dropped.Inc()
		}
		return ErrQueueFull
	}
}

// Start launches the workers. They exit when ctx ends or Stop is called.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
	p.started = true
	return nil
}

// Stop closes the queue and waits up to timeout for queued items to finish.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	if !p.started || p.stopped {
		p.lifecycleMu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.work)
	p.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

// Stats returns the current counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.work),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

func (p *Pool[T]) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-p.work:
			if !ok {
				return
			}
			start := time.Now()
			err := p.processor(ctx, item)

			p.processed.Add(1)
			if err != nil {
				p.failed.Add(1)
			}
			if p.metrics != nil {
				p.metrics.duration.Observe(time.Since(start).Seconds())
				p.metrics.queueDepth.Set(float64(len(p.work)))
				if err != nil {
					p.metrics.failed.Inc()
				}
			}
		}
	}
}
