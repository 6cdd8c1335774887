package link

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/c360/mavrouter/errors"
	"github.com/c360/mavrouter/mavlink"
	"github.com/c360/mavrouter/metric"
	"github.com/c360/mavrouter/transport"
)

// maxReadsPerCycle bounds how long one poll cycle can hold the goroutine
// when a transport keeps returning data.
const maxReadsPerCycle = 64

// FrameHandler receives every frame decoded on a link, in arrival order, on
// the reader goroutine. The next frame is not decoded until it returns.
type FrameHandler func(linkName string, frame mavlink.Frame)

// Stats is a point-in-time snapshot of link activity.
type Stats struct {
	State         State     `json:"state"`
	BytesIn       int64     `json:"bytes_in"`
	BytesOut      int64     `json:"bytes_out"`
	FramesDecoded int64     `json:"frames_decoded"`
	DecodeErrors  int64     `json:"decode_errors"`
	ReadErrors    int64     `json:"read_errors"`
	WriteErrors   int64     `json:"write_errors"`
	LastActivity  time.Time `json:"last_activity"`
}

type readerMetrics struct {
	bytesIn       prometheus.Counter
	bytesOut      prometheus.Counter
	framesDecoded prometheus.Counter
	decodeErrors  prometheus.Counter
	readErrors    prometheus.Counter
	writeErrors   prometheus.Counter
	cycle         prometheus.Observer
	core          *metric.Metrics
}

// newReaderMetrics binds the core per-link vectors to one link name.
// Nil registry = nil metrics.
func newReaderMetrics(registry *metric.MetricsRegistry, name string) *readerMetrics {
	core := registry.CoreMetrics()
	if core == nil {
		return nil
	}
	return &readerMetrics{
		bytesIn:       core.BytesReceived.WithLabelValues(name),
		bytesOut:      core.BytesSent.WithLabelValues(name),
		framesDecoded: core.FramesDecoded.WithLabelValues(name),
		decodeErrors:  core.DecodeErrors.WithLabelValues(name),
		readErrors:    core.ReadErrors.WithLabelValues(name),
		writeErrors:   core.WriteErrors.WithLabelValues(name),
		cycle:         core.ReaderCycleDur.WithLabelValues(name),
		core:          core,
	}
}

// ReaderDeps holds runtime dependencies for a link reader
type ReaderDeps struct {
	Name            string
	Transport       transport.Transport
	Config          ReaderConfig
	OnFrame         FrameHandler
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional
}

// Reader polls one transport, decodes frames, and hands them to OnFrame.
// It also accounts for writes made on the link so Stats covers both directions.
type Reader struct {
	name      string
	transport transport.Transport
	cfg       ReaderConfig
	onFrame   FrameHandler
	decoder   *mavlink.Decoder
	logger    *slog.Logger
	metrics   *readerMetrics
	errLog    *rate.Limiter

	mu       sync.Mutex
	running  bool
	shutdown chan struct{}
	done     chan struct{}

	state        atomic.Int32
	bytesIn      atomic.Int64
	bytesOut     atomic.Int64
	frames       atomic.Int64
	decodeErrors atomic.Int64
	readErrors   atomic.Int64
	writeErrors  atomic.Int64
	lastActivity atomic.Int64 // unix nanos
}

// NewReader creates a stopped reader.
func NewReader(deps ReaderDeps) (*Reader, error) {
	if deps.Transport == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: nil transport", errors.ErrInvalidConfig),
			"Reader", "NewReader", "dependency check")
	}
	dec, err := mavlink.NewDecoder()
	if err != nil {
		return nil, errors.Wrap(err, "Reader", "NewReader", "decoder setup")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "link-reader", "link", deps.Name)
	}
	onFrame := deps.OnFrame
	if onFrame == nil {
		onFrame = func(string, mavlink.Frame) {}
	}

	return &Reader{
		name:      deps.Name,
		transport: deps.Transport,
		cfg:       deps.Config.WithDefaults(),
		onFrame:   onFrame,
		decoder:   dec,
		logger:    logger,
		metrics:   newReaderMetrics(deps.MetricsRegistry, deps.Name),
		errLog:    rate.NewLimiter(rate.Every(5*time.Second), 1),
	}, nil
}

// Name returns the link name.
func (r *Reader) Name() string { return r.name }

// Config returns the reader configuration with defaults applied.
func (r *Reader) Config() ReaderConfig { return r.cfg }

// Start launches the poll goroutine. The transport must already be started.
// The goroutine runs until Stop is called or ctx ends.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	r.running = true
	r.shutdown = make(chan struct{})
	r.done = make(chan struct{})
	r.setState(StateOpen)

	go r.run(ctx, r.shutdown, r.done)
	r.logger.Debug("Link reader started", "rate_hz", r.cfg.RateHz, "priority", r.cfg.Priority.String())
	return nil
}

// Stop signals the goroutine to exit at its next poll boundary and waits up
// to timeout. Calling Stop from inside OnFrame times out.
func (r *Reader) Stop(timeout time.Duration) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	close(r.shutdown)
	done := r.done
	r.mu.Unlock()

	defer r.setState(StateClosed)

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"Reader", "Stop", "graceful shutdown")
	}
}

func (r *Reader) run(ctx context.Context, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	if r.cfg.Priority.dedicatedThread() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	ticker := time.NewTicker(r.cfg.Interval())
	defer ticker.Stop()

	for {
		r.cycle(shutdown)

		select {
		case <-ctx.Done():
			return
		case <-shutdown:
			return
		case <-ticker.C:
		}
	}
}

// cycle drains the transport until it has nothing more to give.
func (r *Reader) cycle(shutdown <-chan struct{}) {
	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.cycle.Observe(time.Since(start).Seconds())
		}
	}()

	for i := 0; i < maxReadsPerCycle; i++ {
		select {
		case <-shutdown:
			return
		default:
		}

		data, err := r.transport.ReadBytes()
		if err != nil {
			r.readFailed(err)
			return
		}
		if r.State() == StateFailed {
			r.setState(StateOpen)
			r.logger.Info("Link recovered")
		}
		if len(data) == 0 {
			return
		}
		r.received(data)
	}
}

func (r *Reader) received(data []byte) {
	now := time.Now()
	r.bytesIn.Add(int64(len(data)))
	r.lastActivity.Store(now.UnixNano())

	before := r.decoder.Stats()
	frames := r.decoder.Decode(data, now)
	after := r.decoder.Stats()

	discarded := after.Discarded - before.Discarded
	r.frames.Add(int64(len(frames)))
	r.decodeErrors.Add(discarded)
	if r.metrics != nil {
		r.metrics.bytesIn.Add(float64(len(data)))
		r.metrics.framesDecoded.Add(float64(len(frames)))
		r.metrics.decodeErrors.Add(float64(discarded))
	}

	for _, fr := range frames {
		r.onFrame(r.name, fr)
	}
}

func (r *Reader) readFailed(err error) {
	r.readErrors.Add(1)
	if r.metrics != nil {
		r.metrics.readErrors.Inc()
	}
	if r.State() != StateFailed {
		r.setState(StateFailed)
	}
	if r.errLog.Allow() {
		r.logger.Warn("Link read failed", "error", err, "read_errors", r.readErrors.Load())
	}
}

// Write sends p on the link's transport. Errors are returned to the caller
// and counted; they do not change the link state.
func (r *Reader) Write(p []byte) (int, error) {
	n, err := r.transport.WriteBytes(p)
	if n > 0 {
		r.bytesOut.Add(int64(n))
		if r.metrics != nil {
			r.metrics.bytesOut.Add(float64(n))
		}
	}
	if err != nil {
		r.writeErrors.Add(1)
		if r.metrics != nil {
			r.metrics.writeErrors.Inc()
		}
		return n, err
	}
	return n, nil
}

// State returns the current link state.
func (r *Reader) State() State {
	return State(r.state.Load())
}

func (r *Reader) setState(s State) {
	r.state.Store(int32(s))
	if r.metrics != nil {
		r.metrics.core.SetLinkState(r.name, s.gauge())
	}
}

// Stats returns a snapshot of the link counters.
func (r *Reader) Stats() Stats {
	var last time.Time
	if ns := r.lastActivity.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}
	return Stats{
		State:         r.State(),
		BytesIn:       r.bytesIn.Load(),
		BytesOut:      r.bytesOut.Load(),
		FramesDecoded: r.frames.Load(),
		DecodeErrors:  r.decodeErrors.Load(),
		ReadErrors:    r.readErrors.Load(),
		WriteErrors:   r.writeErrors.Load(),
		LastActivity:  last,
	}
}
