package router

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/mavrouter/metric"
)

// Metrics holds Prometheus metrics for the router
type Metrics struct {
	links           prometheus.Gauge
	routedFrames    *prometheus.CounterVec
	routedErrors    *prometheus.CounterVec
	heartbeatsSent  prometheus.Counter
	heartbeatErrors prometheus.Counter
}

// newMetrics creates and registers router metrics. Nil registry = nil metrics.
func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		links: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mavrouter",
			Subsystem: "router",
			Name:      "links",
			Help:      "Registered links",
		}),
		routedFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mavrouter",
			Subsystem: "router",
			Name:      "routed_frames_total",
			Help:      "Frames relayed from one link to another",
		}, []string{"src", "dst"}),
		routedErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mavrouter",
			Subsystem: "router",
			Name:      "routed_errors_total",
			Help:      "Relay writes that failed",
		}, []string{"src", "dst"}),
		heartbeatsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrouter",
			Subsystem: "router",
			Name:      "heartbeats_total",
			Help:      "Heartbeat frames written",
		}),
		heartbeatErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrouter",
			Subsystem: "router",
			Name:      "heartbeat_errors_total",
			Help:      "Heartbeat writes that failed",
		}),
	}

	registry.RegisterGauge("router", "links", m.links)
	registry.RegisterCounterVec("router", "routed_frames", m.routedFrames)
	registry.RegisterCounterVec("router", "routed_errors", m.routedErrors)
	registry.RegisterCounter("router", "heartbeats", m.heartbeatsSent)
	registry.RegisterCounter("router", "heartbeat_errors", m.heartbeatErrors)
	return m
}

func (m *Metrics) setLinks(n int) {
	if m != nil {
		m.links.Set(float64(n))
	}
}

func (m *Metrics) routed(src, dst string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.routedErrors.WithLabelValues(src, dst).Inc()
		return
	}
	m.routedFrames.WithLabelValues(src, dst).Inc()
}

func (m *Metrics) heartbeat(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.heartbeatErrors.Inc()
		return
	}
	m.heartbeatsSent.Inc()
}

// forget drops the per-route series of a removed link.
func (m *Metrics) forget(name string) {
	if m == nil {
		return
	}
	m.routedFrames.DeletePartialMatch(prometheus.Labels{"src": name})
	m.routedFrames.DeletePartialMatch(prometheus.Labels{"dst": name})
	m.routedErrors.DeletePartialMatch(prometheus.Labels{"src": name})
	m.routedErrors.DeletePartialMatch(prometheus.Labels{"dst": name})
}
