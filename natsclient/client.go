package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/mavrouter/errors"
	"github.com/c360/mavrouter/metric"
	"github.com/c360/mavrouter/pkg/retry"
	"github.com/c360/mavrouter/pkg/textenum"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int32

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

var statuses = textenum.New("connection status", map[ConnectionStatus]string{
	StatusDisconnected: "disconnected",
	StatusConnecting:   "connecting",
	StatusConnected:    "connected",
	StatusReconnecting: "reconnecting",
})

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string { return statuses.String(s, "unknown") }

// MarshalText implements encoding.TextMarshaler.
func (s ConnectionStatus) MarshalText() ([]byte, error) { return statuses.Marshal(s) }

// Error messages
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrClosed       = stderrors.New("client is closed")
)

// Status holds runtime status information for the client
type Status struct {
	Status     ConnectionStatus `json:"status"`
	URL        string           `json:"url"`
	Reconnects int64            `json:"reconnects"`
	RTT        time.Duration    `json:"rtt"`
}

type clientMetrics struct {
	connected     prometheus.Gauge
	reconnects    prometheus.Counter
	publishErrors prometheus.Counter
}

// newClientMetrics registers client metrics. Nil registry = nil metrics.
func newClientMetrics(registry *metric.MetricsRegistry) *clientMetrics {
	if registry == nil {
		return nil
	}
	m := &clientMetrics{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mavrouter",
			Subsystem: "nats",
			Name:      "connected",
			Help:      "1 while the NATS connection is up",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrouter",
			Subsystem: "nats",
			Name:      "reconnects_total",
			Help:      "NATS reconnections",
		}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrouter",
			Subsystem: "nats",
			Name:      "publish_errors_total",
			Help:      "Failed NATS publishes",
		}),
	}
	registry.RegisterGauge("nats", "connected", m.connected)
	registry.RegisterCounter("nats", "reconnects", m.reconnects)
	registry.RegisterCounter("nats", "publish_errors", m.publishErrors)
	return m
}

// Client owns one NATS connection and its JetStream context.
type Client struct {
	url     string
	logger  *slog.Logger
	metrics *clientMetrics

	status     atomic.Int32
	reconnects atomic.Int64
	closed     atomic.Bool

	// connection options
	name           string
	maxReconnects  int
	reconnectWait  time.Duration
	pingInterval   time.Duration
	timeout        time.Duration
	drainTimeout   time.Duration
	connectRetry   retry.Config
	username       string
	password       string
	token          string
	onHealthChange func(bool)

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream
	subs []*nats.Subscription
}

// NewClient creates a disconnected client for url.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: empty NATS url", errors.ErrInvalidConfig),
			"Client", "NewClient", "url check")
	}
	c := &Client{
		url:           url,
		logger:        slog.Default().With("component", "natsclient"),
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		pingInterval:  30 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  10 * time.Second,
		connectRetry:  retry.Once(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	c.setStatus(StatusDisconnected)
	return c, nil
}

// URL returns the NATS server URL
func (c *Client) URL() string { return c.url }

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	return ConnectionStatus(c.status.Load())
}

// IsHealthy returns true if the connection is up
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

func (c *Client) setStatus(s ConnectionStatus) {
	c.status.Store(int32(s))
	if c.metrics != nil {
		if s == StatusConnected {
			c.metrics.connected.Set(1)
		} else {
			c.metrics.connected.Set(0)
		}
	}
}

// GetStatus returns current status information
func (c *Client) GetStatus() Status {
	st := Status{Status: c.Status(), URL: c.url, Reconnects: c.reconnects.Load()}
	if rtt, err := c.RTT(); err == nil {
		st.RTT = rtt
	}
	return st
}

func (c *Client) connectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}
	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.name != "" {
		opts = append(opts, nats.Name(c.name))
	}
	return opts
}

// Connect establishes the connection and its JetStream context, retrying
// according to WithConnectRetry.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.WrapInvalid(ErrClosed, "Client", "Connect", "state check")
	}
	c.setStatus(StatusConnecting)
	c.logger.Info("Connecting to NATS", "url", c.url)

	conn, err := retry.DoWithResult(ctx, c.connectRetry, func() (*nats.Conn, error) {
		return c.dial(ctx)
	})
	if err != nil {
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "establish connection")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "jetstream setup")
	}

	c.mu.Lock()
	c.conn = conn
	c.js = js
	onHealthChange := c.onHealthChange
	c.mu.Unlock()

	c.setStatus(StatusConnected)
	c.logger.Info("Connected to NATS", "url", c.url)
	if onHealthChange != nil {
		onHealthChange(true)
	}
	return nil
}

// dial runs nats.Connect, giving up when ctx ends first.
func (c *Client) dial(ctx context.Context) (*nats.Conn, error) {
	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(c.url, c.connectionOptions()...)
		done <- result{conn, err}
	}()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, retry.NonRetryable(ctx.Err())
	}
}

// WaitForConnection blocks until the client is connected or ctx ends.
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if c.IsHealthy() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("connection timeout: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close unsubscribes, drains and closes the connection. Safe to call more
// than once.
func (c *Client) Close(ctx context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe"))
		}
	}
	c.subs = nil

	if c.conn != nil {
		timeout := c.drainTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 && remaining < timeout {
				timeout = remaining
			}
		}

		drained := make(chan error, 1)
		conn := c.conn
		go func() { drained <- conn.Drain() }()

		select {
		case err := <-drained:
			if err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
				errs = append(errs, errors.Wrap(err, "Client", "Close", "drain connection"))
			}
		case <-time.After(timeout):
			errs = append(errs, errors.WrapTransient(fmt.Errorf("drain timeout after %v", timeout),
				"Client", "Close", "drain connection"))
		case <-ctx.Done():
			errs = append(errs, errors.Wrap(ctx.Err(), "Client", "Close", "drain connection"))
		}
		conn.Close()
		c.conn = nil
		c.js = nil
	}

	c.username, c.password, c.token = "", "", ""
	c.setStatus(StatusDisconnected)
	return stderrors.Join(errs...)
}

// RTT returns the round-trip time to the server.
func (c *Client) RTT() (time.Duration, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return 0, ErrNotConnected
	}
	return conn.RTT()
}

// Subscribe calls handler for every message on subject until the client is
// closed. Each call gets a context derived from ctx with a 30 second timeout.
func (c *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return ErrNotConnected
	}
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		handler(msgCtx, msg.Data)
	})
	if err != nil {
		return errors.WrapTransient(err, "Client", "Subscribe", "subscribe "+subject)
	}
	c.subs = append(c.subs, sub)
	return nil
}

// Publish sends data on subject.
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		c.publishFailed()
		return ErrNotConnected
	}
	if err := conn.Publish(subject, data); err != nil {
		c.publishFailed()
		return errors.WrapTransient(err, "Client", "Publish", "publish "+subject)
	}
	return nil
}

func (c *Client) publishFailed() {
	if c.metrics != nil {
		c.metrics.publishErrors.Inc()
	}
}

// JetStream returns the JetStream context.
func (c *Client) JetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.js == nil {
		return nil, errors.WrapTransient(ErrNotConnected, "Client", "JetStream", "get JetStream context")
	}
	return c.js, nil
}

// CreateKeyValueBucket returns the named bucket, creating it with cfg when it
// does not exist yet.
func (c *Client) CreateKeyValueBucket(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}

	if bucket, err := js.KeyValue(ctx, cfg.Bucket); err == nil {
		c.logger.Debug("Using existing KV bucket", "bucket", cfg.Bucket)
		return bucket, nil
	}

	bucket, err := js.CreateKeyValue(ctx, cfg)
	if err != nil {
		if !isAlreadyExistsError(err) {
			return nil, errors.WrapTransient(err, "Client", "CreateKeyValueBucket", "create bucket "+cfg.Bucket)
		}
		// lost a creation race
		bucket, err = js.KeyValue(ctx, cfg.Bucket)
		if err != nil {
			return nil, errors.WrapTransient(err, "Client", "CreateKeyValueBucket", "access bucket "+cfg.Bucket)
		}
		return bucket, nil
	}

	c.logger.Info("Created KV bucket", "bucket", cfg.Bucket)
	return bucket, nil
}

// GetKeyValueBucket returns an existing bucket.
func (c *Client) GetKeyValueBucket(ctx context.Context, name string) (jetstream.KeyValue, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}
	bucket, err := js.KeyValue(ctx, name)
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "GetKeyValueBucket", "access bucket "+name)
	}
	return bucket, nil
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	if c.closed.Load() {
		return
	}
	c.setStatus(StatusReconnecting)
	c.logger.Warn("NATS disconnected", "error", err)
	c.notifyHealth(false)
}

func (c *Client) handleReconnect(_ *nats.Conn) {
	c.setStatus(StatusConnected)
	c.reconnects.Add(1)
	if c.metrics != nil {
		c.metrics.reconnects.Inc()
	}
	c.logger.Info("NATS reconnected", "url", c.url)
	c.notifyHealth(true)
}

func (c *Client) handleClosed(_ *nats.Conn) {
	c.setStatus(StatusDisconnected)
	c.notifyHealth(false)
}

func (c *Client) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	c.logger.Error("NATS error", "error", err)
}

func (c *Client) notifyHealth(healthy bool) {
	c.mu.RLock()
	fn := c.onHealthChange
	c.mu.RUnlock()
	if fn != nil {
		go fn(healthy)
	}
}

// isAlreadyExistsError checks if an error indicates a KV bucket already exists
func isAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jetstream.ErrBucketExists) || stderrors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "already in use") || strings.Contains(msg, "already exists")
}
