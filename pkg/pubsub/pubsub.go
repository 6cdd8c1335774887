// Package pubsub provides an in-process typed publish/subscribe bus.
package pubsub

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/mavrouter/metric"
)

// DefaultBuffer is the subscription channel size used when Subscribe is given
// a non-positive size.
const DefaultBuffer = 256

// Bus fans published values out to every current subscriber. Publishing never
// blocks: a subscriber whose channel is full misses the value and its drop
// counter is incremented.
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription[T]
	nextID uint64
	closed bool

	published prometheus.Counter
	dropped   prometheus.Counter
}

// Subscription is one consumer's view of a Bus.
type Subscription[T any] struct {
	C <-chan T

	id      uint64
	ch      chan T
	bus     *Bus[T]
	dropped atomic.Int64
	once    sync.Once
}

// Option configures a Bus.
type Option[T any] func(*Bus[T])

// WithMetrics exports publish and drop counters under the given owner name.
// A nil registry is ignored.
func WithMetrics[T any](registry *metric.MetricsRegistry, owner string) Option[T] {
	return func(b *Bus[T]) {
		if registry == nil || owner == "" {
			return
		}
		published := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mavrouter",
			Subsystem:   "events",
			Name:        "published_total",
			ConstLabels: prometheus.Labels{"bus": owner},
			Help:        "Events published on the bus",
		})
		dropped := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mavrouter",
			Subsystem:   "events",
			Name:        "dropped_total",
			ConstLabels: prometheus.Labels{"bus": owner},
			Help:        "Events dropped because a subscriber was full",
		})
		// registration failures leave the bus without metrics, never without events
		if registry.RegisterCounter(owner, "events_published", published) == nil {
			b.published = published
		}
		if registry.RegisterCounter(owner, "events_dropped", dropped) == nil {
			b.dropped = dropped
		}
	}
}

// New creates an empty bus.
func New[T any](opts ...Option[T]) *Bus[T] {
	b := &Bus[T]{subs: make(map[uint64]*Subscription[T])}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new subscriber. On a closed bus the returned
// subscription's channel is already closed.
func (b *Bus[T]) Subscribe(size int) *Subscription[T] {
	if size <= 0 {
		size = DefaultBuffer
	}
	ch := make(chan T, size)
	s := &Subscription[T]{C: ch, ch: ch, bus: b}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		s.once.Do(func() { close(ch) })
		return s
	}
	b.nextID++
	s.id = b.nextID
	b.subs[s.id] = s
	return s
}

// Publish delivers v to every subscriber without blocking.
func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	if b.published != nil {
		b.published.Inc()
	}
	for _, s := range b.subs {
		select {
		case s.ch <- v:
		default:
			s.dropped.Add(1)
			if b.dropped != nil {
				b.dropped.Inc()
			}
		}
	}
}

// Len returns the number of active subscribers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later Publish calls are no-ops.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		s.once.Do(func() { close(s.ch) })
	}
}

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()

	s.once.Do(func() { close(s.ch) })
}

// Dropped returns how many values this subscriber missed.
func (s *Subscription[T]) Dropped() int64 {
	return s.dropped.Load()
}
