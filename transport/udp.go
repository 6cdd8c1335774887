package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/mavrouter/errors"
	"github.com/c360/mavrouter/pkg/retry"
)

// UDP is a datagram transport. With a configured host every write goes
// there; otherwise writes go to whoever sent the most recent datagram.
type UDP struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.RWMutex
	conn *net.UDPConn
	host *net.UDPAddr

	peer atomic.Pointer[net.UDPAddr]
	buf  []byte
}

var _ Transport = (*UDP)(nil)

func newUDP(cfg Config, logger *slog.Logger) *UDP {
	return &UDP{
		cfg:    cfg,
		logger: logger,
		buf:    make([]byte, readChunk),
	}
}

// Start binds the local socket and resolves the fixed peer if one is configured.
func (u *UDP) Start(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn != nil {
		return nil
	}

	uc := u.cfg.UDP
	if err := retry.Do(ctx, openRetry(u.cfg.OpenAttempts), u.bindSocket); err != nil {
		u.cleanupUnlocked()
		return errors.WrapTransient(fmt.Errorf("%w: %s:%d: %w", errors.ErrBindFailed, uc.LocalAddress, uc.LocalPort, err),
			"UDPTransport", "Start", "socket binding")
	}

	if uc.HasHost() {
		host, err := net.ResolveUDPAddr("udp", net.JoinHostPort(uc.HostAddress, strconv.Itoa(uc.HostPort)))
		if err != nil {
			u.cleanupUnlocked()
			return errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrBindFailed, err),
				"UDPTransport", "Start", "host address resolution")
		}
		u.host = host
	}

	u.logger.Debug("UDP socket bound", "local", u.conn.LocalAddr().String(), "host", u.host)
	return nil
}

// bindSocket creates and binds the UDP socket
func (u *UDP) bindSocket() error {
	uc := u.cfg.UDP
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(uc.LocalAddress, strconv.Itoa(uc.LocalPort)))
	if err != nil {
		return retry.NonRetryable(fmt.Errorf("failed to resolve UDP address %s:%d: %w", uc.LocalAddress, uc.LocalPort, err))
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP port %d: %w", uc.LocalPort, err)
	}

	if err := conn.SetReadBuffer(socketBufferSize); err != nil {
		// some systems cap the buffer size
		u.logger.Warn("Could not set UDP buffer size",
			"buffer_size", socketBufferSize,
			"port", uc.LocalPort,
			"error", err)
	}

	u.conn = conn
	return nil
}

// Stop closes the socket and forgets the last peer.
func (u *UDP) Stop() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn == nil {
		return nil
	}
	err := u.conn.Close()
	u.cleanupUnlocked()
	if err != nil {
		return errors.Wrap(err, "UDPTransport", "Stop", "socket close")
	}
	return nil
}

func (u *UDP) cleanupUnlocked() {
	if u.conn != nil {
		_ = u.conn.Close()
		u.conn = nil
	}
	u.host = nil
	u.peer.Store(nil)
}

// LocalAddr returns the bound address, or nil when closed.
func (u *UDP) LocalAddr() *net.UDPAddr {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.conn == nil {
		return nil
	}
	addr, _ := u.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

// ReadBytes returns one datagram, or nothing if none arrives within the read timeout.
func (u *UDP) ReadBytes() ([]byte, error) {
	u.mu.RLock()
	conn := u.conn
	u.mu.RUnlock()
	if conn == nil {
		return nil, errors.ErrNotOpen
	}

	_ = conn.SetReadDeadline(time.Now().Add(udpReadTimeout))
	n, from, err := conn.ReadFromUDP(u.buf)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, nil
		}
		return nil, errors.Wrap(err, "UDPTransport", "ReadBytes", "datagram read")
	}
	if from != nil {
		u.peer.Store(from)
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	copy(out, u.buf[:n])
	return out, nil
}

// WriteBytes sends p as one datagram to the fixed host or the last sender.
func (u *UDP) WriteBytes(p []byte) (int, error) {
	u.mu.RLock()
	conn := u.conn
	dst := u.host
	u.mu.RUnlock()
	if conn == nil {
		return 0, errors.ErrNotOpen
	}
	if dst == nil {
		dst = u.peer.Load()
	}
	if dst == nil {
		return 0, errors.ErrNoPeer
	}

	_ = conn.SetWriteDeadline(time.Now().Add(udpWriteTimeout))
	n, err := conn.WriteToUDP(p, dst)
	if err != nil {
		return n, errors.WrapTransient(err, "UDPTransport", "WriteBytes", "datagram write")
	}
	return n, nil
}

// Peer returns the current write destination, or nil when none is known.
func (u *UDP) Peer() *net.UDPAddr {
	u.mu.RLock()
	host := u.host
	u.mu.RUnlock()
	if host != nil {
		return host
	}
	return u.peer.Load()
}

// Kind returns KindUDP.
func (u *UDP) Kind() Kind { return KindUDP }

// Config returns a copy of the UDP configuration.
func (u *UDP) Config() Config { return u.cfg.Clone() }
