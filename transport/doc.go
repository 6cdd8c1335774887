// Package transport provides the byte-stream endpoints that links are built on.
//
// # Overview
//
// A Transport is opened with Start, polled with ReadBytes from exactly one
// reader goroutine, written with WriteBytes from any goroutine, and closed with
// Stop. Two implementations exist:
//
//   - Serial: a local serial device opened through go.bug.st/serial with a
//     5ms read timeout. Parity, stop bits and flow control are mapped from
//     static tables. The driver does no flow control handshaking: hardware
//     mode only asserts RTS and DTR at open, and both modes log a warning.
//   - UDP: a bound datagram socket. With a configured host every write goes to
//     that peer; without one the transport behaves like a server and replies
//     to the sender of the most recent datagram.
//
// # Quick Start
//
//	cfg := transport.UDPDefaults(14550)
//	tr, err := transport.New(cfg)
//	if err != nil {
//	    return err
//	}
//	if err := tr.Start(ctx); err != nil {
//	    return err // wraps errors.ErrBindFailed
//	}
//	defer tr.Stop()
//
// # Configuration
//
// Config is serialisable to JSON and YAML. Enum fields (kind, parity,
// stop_bits, flow_control) are written as their display names:
//
//	kind: serial
//	serial:
//	  device: /dev/ttyUSB0
//	  baud: 57600
//	  data_bits: 8
//	  parity: none
//	  stop_bits: "1"
//	  flow_control: hardware
//	open_attempts: 3
//
// OpenAttempts above one retries Start with exponential backoff.
//
// # Errors
//
// Start failures wrap errors.ErrDeviceUnavailable (serial) or
// errors.ErrBindFailed (UDP). Reads and writes on a closed transport return
// errors.ErrNotOpen. A UDP write with no known peer returns errors.ErrNoPeer,
// which is classified transient.
package transport
