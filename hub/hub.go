package hub

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/mavrouter/aggregator"
	"github.com/c360/mavrouter/errors"
	"github.com/c360/mavrouter/mavlink"
	"github.com/c360/mavrouter/metric"
	"github.com/c360/mavrouter/pkg/pubsub"
)

// DefaultOperator is the identity used for outbound commands when none is
// configured: system 255, mission planner component.
var DefaultOperator = Identity{SystemID: 255, ComponentID: mavlink.ComponentMissionPlanner}

// LinkWriter sends encoded frames on a named link.
type LinkWriter interface {
	Write(name string, frame []byte) (int, error)
}

// Metrics holds Prometheus metrics for the hub
type Metrics struct {
	framesAccepted prometheus.Counter
	framesRejected prometheus.Counter
	identities     prometheus.Gauge
	commandsSent   *prometheus.CounterVec
}

// newMetrics creates and registers hub metrics. Nil registry = nil metrics.
func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		framesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrouter",
			Subsystem: "hub",
			Name:      "frames_accepted_total",
			Help:      "Frames attributed to an identity and stored",
		}),
		framesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrouter",
			Subsystem: "hub",
			Name:      "frames_rejected_total",
			Help:      "Frames that could not be attributed to an identity",
		}),
		identities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mavrouter",
			Subsystem: "hub",
			Name:      "identities",
			Help:      "Known (system, component) identities",
		}),
		commandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mavrouter",
			Subsystem: "hub",
			Name:      "commands_total",
			Help:      "Outbound commands by result",
		}, []string{"command", "result"}),
	}

	registry.RegisterCounter("hub", "frames_accepted", m.framesAccepted)
	registry.RegisterCounter("hub", "frames_rejected", m.framesRejected)
	registry.RegisterGauge("hub", "identities", m.identities)
	registry.RegisterCounterVec("hub", "commands", m.commandsSent)
	return m
}

// Deps holds runtime dependencies for the hub
type Deps struct {
	Operator        Identity                // zero value uses DefaultOperator
	Writer          LinkWriter              // optional, may be set later with SetWriter
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional
}

// Hub owns one aggregator per identity and publishes identity and message
// events. Safe for concurrent use.
type Hub struct {
	logger  *slog.Logger
	metrics *Metrics
	events  *pubsub.Bus[Event]

	mu          sync.RWMutex
	aggregators map[Identity]*aggregator.Aggregator
	operator    Identity
	encoder     *mavlink.Encoder
	writer      LinkWriter
}

// New creates an empty hub.
func New(deps Deps) (*Hub, error) {
	operator := deps.Operator
	if operator.SystemID == 0 {
		operator = DefaultOperator
	}
	enc, err := mavlink.NewEncoder(operator.SystemID, operator.ComponentID)
	if err != nil {
		return nil, errors.Wrap(err, "Hub", "New", "operator encoder setup")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "hub")
	}

	return &Hub{
		logger:      logger,
		metrics:     newMetrics(deps.MetricsRegistry),
		events:      pubsub.New[Event](pubsub.WithMetrics[Event](deps.MetricsRegistry, "hub_events")),
		aggregators: make(map[Identity]*aggregator.Aggregator),
		operator:    operator,
		encoder:     enc,
		writer:      deps.Writer,
	}, nil
}

// SetWriter sets the link writer used for outbound commands.
func (h *Hub) SetWriter(w LinkWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writer = w
}

// Subscribe returns a subscription to hub events. A subscriber that falls
// more than size events behind misses events; the hub never blocks on it.
func (h *Hub) Subscribe(size int) *pubsub.Subscription[Event] {
	return h.events.Subscribe(size)
}

// Observe stores a frame decoded on a link. It matches link.FrameHandler.
func (h *Hub) Observe(_ string, frame mavlink.Frame) {
	h.Update(frame, frame.ReceivedAt)
}

// Update attributes frame to its identity and stores its message. It returns
// false when the frame carries no message or comes from system id 0.
func (h *Hub) Update(frame mavlink.Frame, at time.Time) bool {
	if frame.Message == nil || frame.SystemID == 0 {
		if h.metrics != nil {
			h.metrics.framesRejected.Inc()
		}
		return false
	}
	if at.IsZero() {
		at = time.Now()
	}

	id := Identity{SystemID: frame.SystemID, ComponentID: frame.ComponentID}
	agg := h.aggregator(id, at)

	kind := agg.Update(frame.Message, at)
	if h.metrics != nil {
		h.metrics.framesAccepted.Inc()
	}
	h.events.Publish(Event{
		Type:        EventMessageUpdated,
		SystemID:    id.SystemID,
		ComponentID: id.ComponentID,
		Kind:        kind,
		At:          at,
	})
	return true
}

// aggregator returns the aggregator for id, creating it and announcing the
// new identity on first sighting.
func (h *Hub) aggregator(id Identity, at time.Time) *aggregator.Aggregator {
	h.mu.RLock()
	agg, ok := h.aggregators[id]
	h.mu.RUnlock()
	if ok {
		return agg
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if agg, ok := h.aggregators[id]; ok {
		return agg
	}

	knownSystem := false
	for known := range h.aggregators {
		if known.SystemID == id.SystemID {
			knownSystem = true
			break
		}
	}

	agg = aggregator.New()
	h.aggregators[id] = agg
	if h.metrics != nil {
		h.metrics.identities.Set(float64(len(h.aggregators)))
	}

	// published under the lock so list events reach subscribers in mutation order
	if knownSystem {
		h.events.Publish(Event{
			Type:         EventComponentsChanged,
			SystemID:     id.SystemID,
			ComponentIDs: h.componentIDsLocked(id.SystemID),
			At:           at,
		})
	} else {
		h.events.Publish(Event{
			Type:      EventSystemsChanged,
			SystemIDs: h.systemIDsLocked(),
			At:        at,
		})
	}
	h.logger.Debug("New identity", "system_id", id.SystemID, "component", id.ComponentID.String())
	return agg
}

// Message returns the latest message of kind from an identity.
func (h *Hub) Message(sysID uint8, compID mavlink.ComponentID, kind string) (aggregator.Snapshot, bool) {
	agg, ok := h.lookup(sysID, compID)
	if !ok {
		return aggregator.Snapshot{}, false
	}
	return agg.Get(kind)
}

// Messages returns every stored message of an identity, sorted by kind.
func (h *Hub) Messages(sysID uint8, compID mavlink.ComponentID) ([]aggregator.Snapshot, bool) {
	agg, ok := h.lookup(sysID, compID)
	if !ok {
		return nil, false
	}
	return agg.GetAll(), true
}

// IsStored reports whether an identity has sent a message of kind.
func (h *Hub) IsStored(sysID uint8, compID mavlink.ComponentID, kind string) bool {
	agg, ok := h.lookup(sysID, compID)
	return ok && agg.IsStored(kind)
}

func (h *Hub) lookup(sysID uint8, compID mavlink.ComponentID) (*aggregator.Aggregator, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	agg, ok := h.aggregators[Identity{SystemID: sysID, ComponentID: compID}]
	return agg, ok
}

// SystemIDs returns the known system ids, sorted.
func (h *Hub) SystemIDs() []uint8 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.systemIDsLocked()
}

func (h *Hub) systemIDsLocked() []uint8 {
	seen := make(map[uint8]struct{})
	out := make([]uint8, 0, len(h.aggregators))
	for id := range h.aggregators {
		if _, dup := seen[id.SystemID]; dup {
			continue
		}
		seen[id.SystemID] = struct{}{}
		out = append(out, id.SystemID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ComponentIDs returns the known components of a system, sorted.
func (h *Hub) ComponentIDs(sysID uint8) []mavlink.ComponentID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.componentIDsLocked(sysID)
}

func (h *Hub) componentIDsLocked(sysID uint8) []mavlink.ComponentID {
	out := make([]mavlink.ComponentID, 0)
	for id := range h.aggregators {
		if id.SystemID == sysID {
			out = append(out, id.ComponentID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Identities returns every known identity, ordered by system then component.
func (h *Hub) Identities() []Identity {
	h.mu.RLock()
	out := make([]Identity, 0, len(h.aggregators))
	for id := range h.aggregators {
		out = append(out, id)
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SystemID != out[j].SystemID {
			return out[i].SystemID < out[j].SystemID
		}
		return out[i].ComponentID < out[j].ComponentID
	})
	return out
}

// Clear forgets every identity and announces the empty system list.
func (h *Hub) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, agg := range h.aggregators {
		agg.Clear()
	}
	h.aggregators = make(map[Identity]*aggregator.Aggregator)
	if h.metrics != nil {
		h.metrics.identities.Set(0)
	}
	now := time.Now()
	h.events.Publish(Event{Type: EventSystemsChanged, SystemIDs: []uint8{}, At: now})
	h.events.Publish(Event{Type: EventComponentsChanged, ComponentIDs: []mavlink.ComponentID{}, At: now})
}

// Operator returns the identity stamped on outbound frames.
func (h *Hub) Operator() Identity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.operator
}

// SetOperator changes the identity stamped on outbound frames.
func (h *Hub) SetOperator(id Identity) error {
	if id.SystemID == 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: operator system id 0", errors.ErrInvalidConfig),
			"Hub", "SetOperator", "identity check")
	}
	enc, err := mavlink.NewEncoder(id.SystemID, id.ComponentID)
	if err != nil {
		return errors.Wrap(err, "Hub", "SetOperator", "encoder setup")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.operator = id
	h.encoder = enc
	return nil
}

func (h *Hub) currentEncoder() *mavlink.Encoder {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.encoder
}

// Heartbeat encodes a ground station heartbeat from the operator identity.
func (h *Hub) Heartbeat() ([]byte, error) {
	return h.currentEncoder().Heartbeat()
}

// ToggleArmState sends an arm or disarm command to (sysID, compID) on the
// named link. force asks the autopilot to skip its safety checks. It returns
// false if no writer is set or the write fails.
func (h *Hub) ToggleArmState(linkName string, sysID uint8, compID mavlink.ComponentID, arm, force bool) bool {
	h.mu.RLock()
	writer := h.writer
	enc := h.encoder
	h.mu.RUnlock()

	result := "ok"
	defer func() {
		if h.metrics != nil {
			h.metrics.commandsSent.WithLabelValues("arm_disarm", result).Inc()
		}
	}()

	if writer == nil {
		result = "no_writer"
		return false
	}

	raw, err := enc.Encode(mavlink.ArmDisarm(sysID, compID, arm, force))
	if err != nil {
		result = "encode_error"
		h.logger.Error("Failed to encode arm command", "error", err)
		return false
	}

	if _, err := writer.Write(linkName, raw); err != nil {
		result = "write_error"
		h.logger.Warn("Failed to send arm command",
			"link", linkName, "system_id", sysID, "component", compID.String(), "error", err)
		return false
	}

	h.logger.Info("Arm command sent",
		"link", linkName, "system_id", sysID, "component", compID.String(), "arm", arm, "force", force)
	return true
}

// Close ends every event subscription.
func (h *Hub) Close() {
	h.events.Close()
}
