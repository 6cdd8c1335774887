package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/mavrouter/errors"
	"github.com/c360/mavrouter/pkg/retry"
)

const (
	// readChunk is the largest single read returned by ReadBytes.
	readChunk = 65536

	serialReadTimeout = 5 * time.Millisecond
	udpReadTimeout    = 5 * time.Millisecond
	udpWriteTimeout   = 100 * time.Millisecond

	// socketBufferSize is the OS receive buffer requested for UDP sockets.
	socketBufferSize = 2 * 1024 * 1024
)

// Transport is a byte stream endpoint owned by a single link.
//
// ReadBytes is called from one reader goroutine only. WriteBytes may be
// called concurrently with ReadBytes and with itself.
type Transport interface {
	// Start opens the underlying device or socket. Starting an open
	// transport is a no-op.
	Start(ctx context.Context) error

	// Stop closes the transport. Idempotent.
	Stop() error

	// ReadBytes returns the bytes available within a short timeout. An empty
	// result with a nil error means nothing arrived.
	ReadBytes() ([]byte, error)

	// WriteBytes writes p, returning the number of bytes accepted.
	WriteBytes(p []byte) (int, error)

	Kind() Kind

	// Config returns a copy of the configuration the transport was built from.
	Config() Config
}

// Factory builds a transport from its configuration.
type Factory func(cfg Config, opts ...Option) (Transport, error)

// Option configures a transport.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger. The default is slog.Default with a component attribute.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New validates cfg and builds the matching transport. The transport is
// returned closed.
func New(cfg Config, opts ...Option) (Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "transport", "New", "config validation")
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	cfg = cfg.Clone()
	switch cfg.Kind {
	case KindSerial:
		logger := o.logger
		if logger == nil {
			logger = slog.Default().With("component", "serial-transport", "device", cfg.Serial.Device)
		}
		return newSerial(cfg, logger), nil
	default:
		logger := o.logger
		if logger == nil {
			logger = slog.Default().With("component", "udp-transport", "port", cfg.UDP.LocalPort)
		}
		return newUDP(cfg, logger), nil
	}
}

// openRetry maps the configured attempt count to a retry policy.
func openRetry(attempts int) retry.Config {
	if attempts <= 1 {
		return retry.Once()
	}
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = attempts
	return cfg
}
