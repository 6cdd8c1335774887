package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/c360/mavrouter/errors"
	"github.com/c360/mavrouter/pkg/retry"
)

var serialParity = map[Parity]serial.Parity{
	ParityNone:  serial.NoParity,
	ParityOdd:   serial.OddParity,
	ParityEven:  serial.EvenParity,
	ParityMark:  serial.MarkParity,
	ParitySpace: serial.SpaceParity,
}

var serialStopBits = map[StopBits]serial.StopBits{
	StopBitsOne:        serial.OneStopBit,
	StopBitsOneAndHalf: serial.OnePointFiveStopBits,
	StopBitsTwo:        serial.TwoStopBits,
}

// openPort is swapped in tests.
var openPort = serial.Open

// Serial is a transport over a local serial device.
type Serial struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	port serial.Port

	buf []byte
}

var _ Transport = (*Serial)(nil)

func newSerial(cfg Config, logger *slog.Logger) *Serial {
	return &Serial{
		cfg:    cfg,
		logger: logger,
		buf:    make([]byte, readChunk),
	}
}

func (s *Serial) mode() *serial.Mode {
	sc := s.cfg.Serial
	mode := &serial.Mode{
		BaudRate: sc.Baud,
		DataBits: sc.DataBits,
		Parity:   serialParity[sc.Parity],
		StopBits: serialStopBits[sc.StopBits],
	}
	if sc.FlowControl == FlowControlHardware {
		mode.InitialStatusBits = &serial.ModemOutputBits{RTS: true, DTR: true}
	} else {
		mode.InitialStatusBits = &serial.ModemOutputBits{RTS: false, DTR: true}
	}
	return mode
}

// flowControlWarning describes what the serial driver cannot do for fc, or
// returns "" when fc needs nothing from it. The driver has no RTS/CTS or
// XON/XOFF handshaking; hardware mode only raises RTS and DTR at open.
func flowControlWarning(fc FlowControl) string {
	switch fc {
	case FlowControlSoftware:
		return "Software flow control is not supported by the serial driver, running without it"
	case FlowControlHardware:
		return "RTS/CTS handshaking is not supported by the serial driver, RTS and DTR are raised at open only"
	}
	return ""
}

// Start opens the device.
func (s *Serial) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port != nil {
		return nil
	}

	device := s.cfg.Serial.Device
	port, err := retry.DoWithResult(ctx, openRetry(s.cfg.OpenAttempts), func() (serial.Port, error) {
		p, err := openPort(device, s.mode())
		if err != nil {
			return nil, err
		}
		if err := p.SetReadTimeout(serialReadTimeout); err != nil {
			_ = p.Close()
			return nil, retry.NonRetryable(err)
		}
		return p, nil
	})
	if err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %s: %w", errors.ErrDeviceUnavailable, device, err),
			"SerialTransport", "Start", "device open")
	}

	s.port = port
	if msg := flowControlWarning(s.cfg.Serial.FlowControl); msg != "" {
		s.logger.Warn(msg, "device", device, "flow_control", s.cfg.Serial.FlowControl.String())
	}
	s.logger.Debug("Serial device opened",
		"baud", s.cfg.Serial.Baud,
		"parity", s.cfg.Serial.Parity.String(),
		"stop_bits", s.cfg.Serial.StopBits.String(),
		"flow_control", s.cfg.Serial.FlowControl.String())
	return nil
}

// Stop closes the device.
func (s *Serial) Stop() error {
	s.mu.Lock()
	port := s.port
	s.port = nil
	s.mu.Unlock()

	if port == nil {
		return nil
	}
	if err := port.Close(); err != nil {
		return errors.Wrap(err, "SerialTransport", "Stop", "device close")
	}
	return nil
}

func (s *Serial) current() serial.Port {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// ReadBytes reads what arrives within the device read timeout.
func (s *Serial) ReadBytes() ([]byte, error) {
	port := s.current()
	if port == nil {
		return nil, errors.ErrNotOpen
	}

	n, err := port.Read(s.buf)
	if err != nil {
		return nil, errors.Wrap(err, "SerialTransport", "ReadBytes", "device read")
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	copy(out, s.buf[:n])
	return out, nil
}

// WriteBytes writes p to the device.
func (s *Serial) WriteBytes(p []byte) (int, error) {
	port := s.current()
	if port == nil {
		return 0, errors.ErrNotOpen
	}
	n, err := port.Write(p)
	if err != nil {
		return n, errors.WrapTransient(err, "SerialTransport", "WriteBytes", "device write")
	}
	return n, nil
}

// Kind returns KindSerial.
func (s *Serial) Kind() Kind { return KindSerial }

// Config returns a copy of the serial configuration.
func (s *Serial) Config() Config { return s.cfg.Clone() }

// PortInfo describes a serial device found on the host.
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
}

// AvailableSerialPorts lists serial devices present on the host.
func AvailableSerialPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "transport", "AvailableSerialPorts", "port enumeration")
	}
	out := make([]PortInfo, 0, len(details))
	for _, d := range details {
		out = append(out, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
		})
	}
	return out, nil
}
