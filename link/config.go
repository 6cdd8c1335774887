package link

import (
	"fmt"
	"time"

	"github.com/c360/mavrouter/metric"
	"github.com/c360/mavrouter/pkg/textenum"
)

// State is the open state of a link.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateFailed
)

var states = textenum.New("link state", map[State]string{
	StateClosed: "closed",
	StateOpen:   "open",
	StateFailed: "failed",
})

func (s State) String() string { return states.String(s, fmt.Sprintf("State(%d)", int(s))) }

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return states.Marshal(s) }

func (s State) gauge() int {
	switch s {
	case StateOpen:
		return metric.LinkStateOpen
	case StateFailed:
		return metric.LinkStateFailed
	default:
		return metric.LinkStateClosed
	}
}

// Priority is the scheduling class requested for a reader goroutine. The
// zero value means unset and resolves to PriorityNormal.
type Priority int

const (
	PriorityIdle Priority = iota + 1
	PriorityLowest
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityHighest
	PriorityTimeCritical
	PriorityInherit
)

var priorities = textenum.New("priority", map[Priority]string{
	PriorityIdle:         "idle",
	PriorityLowest:       "lowest",
	PriorityLow:          "low",
	PriorityNormal:       "normal",
	PriorityHigh:         "high",
	PriorityHighest:      "highest",
	PriorityTimeCritical: "time_critical",
	PriorityInherit:      "inherit",
})

func (p Priority) String() string { return priorities.String(p, fmt.Sprintf("Priority(%d)", int(p))) }

// MarshalText implements encoding.TextMarshaler. Unset encodes as "normal".
func (p Priority) MarshalText() ([]byte, error) {
	if p == 0 {
		p = PriorityNormal
	}
	return priorities.Marshal(p)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(text []byte) error {
	v, err := priorities.Parse(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// dedicatedThread reports whether the reader should own an OS thread.
// The Go scheduler has no finer priority control than that.
func (p Priority) dedicatedThread() bool {
	return p >= PriorityHigh && p <= PriorityTimeCritical
}

// DefaultRateHz is the poll rate used when ReaderConfig.RateHz is zero.
const DefaultRateHz = 100

// ReaderConfig controls how often a link is polled and at what priority.
type ReaderConfig struct {
	RateHz   int      `json:"rate_hz" yaml:"rate_hz" validate:"gte=0,lte=10000"`
	Priority Priority `json:"priority" yaml:"priority"`
}

// DefaultReaderConfig polls at 100 Hz with normal priority.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{RateHz: DefaultRateHz, Priority: PriorityNormal}
}

// WithDefaults fills zero fields.
func (c ReaderConfig) WithDefaults() ReaderConfig {
	if c.RateHz <= 0 {
		c.RateHz = DefaultRateHz
	}
	if c.Priority == 0 {
		c.Priority = PriorityNormal
	}
	return c
}

// Interval returns the poll period.
func (c ReaderConfig) Interval() time.Duration {
	return time.Second / time.Duration(c.WithDefaults().RateHz)
}
