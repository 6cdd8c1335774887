package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mavrouter"

// Link open states as exported by the link_state gauge.
const (
	LinkStateClosed = 0
	LinkStateOpen   = 1
	LinkStateFailed = 2
)

// Metrics contains the per-link metrics shared by readers and the router.
// Every vector is labelled by link name.
type Metrics struct {
	LinkState      *prometheus.GaugeVec
	BytesReceived  *prometheus.CounterVec
	BytesSent      *prometheus.CounterVec
	FramesDecoded  *prometheus.CounterVec
	DecodeErrors   *prometheus.CounterVec
	ReadErrors     *prometheus.CounterVec
	WriteErrors    *prometheus.CounterVec
	ReaderCycleDur *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	linkLabel := []string{"link"}

	return &Metrics{
		LinkState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "state",
			Help:      "Link state (0=closed, 1=open, 2=failed)",
		}, linkLabel),
		BytesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "received_bytes_total",
			Help:      "Total bytes read from the link transport",
		}, linkLabel),
		BytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "sent_bytes_total",
			Help:      "Total bytes written to the link transport",
		}, linkLabel),
		FramesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "frames_decoded_total",
			Help:      "Total frames decoded with a valid checksum",
		}, linkLabel),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "decode_errors_total",
			Help:      "Candidate frames discarded by the decoder",
		}, linkLabel),
		ReadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "read_errors_total",
			Help:      "Transport read errors absorbed by the reader",
		}, linkLabel),
		WriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "write_errors_total",
			Help:      "Transport write errors returned to callers",
		}, linkLabel),
		ReaderCycleDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "reader_cycle_seconds",
			Help:      "Time spent draining and decoding per reader cycle",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, linkLabel),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.LinkState,
		m.BytesReceived,
		m.BytesSent,
		m.FramesDecoded,
		m.DecodeErrors,
		m.ReadErrors,
		m.WriteErrors,
		m.ReaderCycleDur,
	}
}

func (m *Metrics) mustRegister(reg *prometheus.Registry) {
	reg.MustRegister(m.collectors()...)
}

// SetLinkState records the open state of a link. Nil-safe.
func (m *Metrics) SetLinkState(link string, state int) {
	if m == nil {
		return
	}
	m.LinkState.WithLabelValues(link).Set(float64(state))
}

// ForgetLink drops every series labelled with link so removed links do not
// linger on the metrics endpoint. Nil-safe.
func (m *Metrics) ForgetLink(link string) {
	if m == nil {
		return
	}
	m.LinkState.DeleteLabelValues(link)
	m.BytesReceived.DeleteLabelValues(link)
	m.BytesSent.DeleteLabelValues(link)
	m.FramesDecoded.DeleteLabelValues(link)
	m.DecodeErrors.DeleteLabelValues(link)
	m.ReadErrors.DeleteLabelValues(link)
	m.WriteErrors.DeleteLabelValues(link)
	m.ReaderCycleDur.DeleteLabelValues(link)
}
