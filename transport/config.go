package transport

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/c360/mavrouter/errors"
	"github.com/c360/mavrouter/pkg/textenum"
)

// Kind identifies the transport implementation behind a link.
type Kind int

const (
	KindSerial Kind = iota
	KindUDP
)

var kinds = textenum.New("transport kind", map[Kind]string{
	KindSerial: "serial",
	KindUDP:    "udp",
})

func (k Kind) String() string { return kinds.String(k, fmt.Sprintf("Kind(%d)", int(k))) }

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return kinds.Marshal(k) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	v, err := kinds.Parse(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Parity of a serial line.
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

var parities = textenum.New("parity", map[Parity]string{
	ParityNone:  "none",
	ParityOdd:   "odd",
	ParityEven:  "even",
	ParityMark:  "mark",
	ParitySpace: "space",
})

func (p Parity) String() string { return parities.String(p, fmt.Sprintf("Parity(%d)", int(p))) }

// MarshalText implements encoding.TextMarshaler.
func (p Parity) MarshalText() ([]byte, error) { return parities.Marshal(p) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Parity) UnmarshalText(text []byte) error {
	v, err := parities.Parse(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// StopBits of a serial line.
type StopBits int

const (
	StopBitsOne StopBits = iota
	StopBitsOneAndHalf
	StopBitsTwo
)

var stopBits = textenum.New("stop bits", map[StopBits]string{
	StopBitsOne:        "1",
	StopBitsOneAndHalf: "1.5",
	StopBitsTwo:        "2",
})

func (s StopBits) String() string { return stopBits.String(s, fmt.Sprintf("StopBits(%d)", int(s))) }

// MarshalText implements encoding.TextMarshaler.
func (s StopBits) MarshalText() ([]byte, error) { return stopBits.Marshal(s) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *StopBits) UnmarshalText(text []byte) error {
	v, err := stopBits.Parse(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// FlowControl of a serial line.
type FlowControl int

const (
	FlowControlNone FlowControl = iota
	FlowControlHardware
	FlowControlSoftware
)

var flowControls = textenum.New("flow control", map[FlowControl]string{
	FlowControlNone:     "none",
	FlowControlHardware: "hardware",
	FlowControlSoftware: "software",
})

func (f FlowControl) String() string {
	return flowControls.String(f, fmt.Sprintf("FlowControl(%d)", int(f)))
}

// MarshalText implements encoding.TextMarshaler.
func (f FlowControl) MarshalText() ([]byte, error) { return flowControls.Marshal(f) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *FlowControl) UnmarshalText(text []byte) error {
	v, err := flowControls.Parse(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Config is the persisted configuration of one transport. Exactly one of
// Serial and UDP is set, matching Kind.
type Config struct {
	Kind         Kind          `json:"kind" yaml:"kind"`
	Serial       *SerialConfig `json:"serial,omitempty" yaml:"serial,omitempty"`
	UDP          *UDPConfig    `json:"udp,omitempty" yaml:"udp,omitempty"`
	OpenAttempts int           `json:"open_attempts,omitempty" yaml:"open_attempts,omitempty" validate:"gte=0,lte=20"`
}

// SerialConfig holds serial line settings.
type SerialConfig struct {
	Device      string      `json:"device" yaml:"device" validate:"required"`
	Baud        int         `json:"baud" yaml:"baud" validate:"gt=0"`
	DataBits    int         `json:"data_bits" yaml:"data_bits" validate:"oneof=5 6 7 8"`
	Parity      Parity      `json:"parity" yaml:"parity"`
	StopBits    StopBits    `json:"stop_bits" yaml:"stop_bits"`
	FlowControl FlowControl `json:"flow_control" yaml:"flow_control"`
}

// UDPConfig holds the local bind address and the optional fixed peer.
// A zero HostPort means no fixed peer: replies go to the last sender.
type UDPConfig struct {
	LocalAddress string `json:"local_address" yaml:"local_address" validate:"omitempty,ip|hostname"`
	LocalPort    int    `json:"local_port" yaml:"local_port" validate:"gte=0,lte=65535"`
	HostAddress  string `json:"host_address,omitempty" yaml:"host_address,omitempty" validate:"omitempty,ip|hostname"`
	HostPort     int    `json:"host_port,omitempty" yaml:"host_port,omitempty" validate:"gte=0,lte=65535"`
}

// HasHost reports whether a fixed peer is configured.
func (c UDPConfig) HasHost() bool {
	return c.HostAddress != "" && c.HostPort > 0
}

// SerialDefaults returns 8N1 settings without flow control at the given device and baud.
func SerialDefaults(device string, baud int) Config {
	return Config{
		Kind: KindSerial,
		Serial: &SerialConfig{
			Device:   device,
			Baud:     baud,
			DataBits: 8,
		},
	}
}

// UDPDefaults returns a server-style UDP config listening on all interfaces.
func UDPDefaults(localPort int) Config {
	return Config{
		Kind: KindUDP,
		UDP: &UDPConfig{
			LocalAddress: "0.0.0.0",
			LocalPort:    localPort,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and that the settings block matches Kind.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
			"Config", "Validate", "transport config validation")
	}

	switch c.Kind {
	case KindSerial:
		if c.Serial == nil || c.UDP != nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "serial settings check")
		}
	case KindUDP:
		if c.UDP == nil || c.Serial != nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "udp settings check")
		}
		if (c.UDP.HostAddress == "") != (c.UDP.HostPort == 0) {
			return errors.WrapInvalid(fmt.Errorf("%w: host address and port must be set together", errors.ErrInvalidConfig),
				"Config", "Validate", "udp peer check")
		}
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: unknown kind %d", errors.ErrInvalidConfig, int(c.Kind)),
			"Config", "Validate", "kind check")
	}
	return nil
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := c
	if c.Serial != nil {
		s := *c.Serial
		out.Serial = &s
	}
	if c.UDP != nil {
		u := *c.UDP
		out.UDP = &u
	}
	return out
}
