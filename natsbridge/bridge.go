package natsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/mavrouter/aggregator"
	"github.com/c360/mavrouter/errors"
	"github.com/c360/mavrouter/hub"
	"github.com/c360/mavrouter/mavlink"
	"github.com/c360/mavrouter/metric"
	"github.com/c360/mavrouter/pkg/pubsub"
	"github.com/c360/mavrouter/pkg/worker"
)

const (
	// DefaultPrefix is the first subject token.
	DefaultPrefix = "mavrouter"

	defaultQueueSize = 1024
	stopTimeout      = 5 * time.Second
)

// Publisher sends data on a subject. natsclient.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Subscriber receives data on a subject. natsclient.Client implements it.
type Subscriber interface {
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error
}

// Source is the hub surface the bridge reads from.
type Source interface {
	Subscribe(size int) *pubsub.Subscription[hub.Event]
	Message(sysID uint8, compID mavlink.ComponentID, kind string) (aggregator.Snapshot, bool)
	ToggleArmState(linkName string, sysID uint8, compID mavlink.ComponentID, arm, force bool) bool
}

// Config controls subjects and queueing.
type Config struct {
	Prefix    string
	QueueSize int
	// IncludePayload attaches the stored message to message_updated envelopes.
	IncludePayload bool
	// AcceptCommands subscribes to <prefix>.command.arm when the client can subscribe.
	AcceptCommands bool
}

// Deps holds runtime dependencies for the bridge
type Deps struct {
	Config          Config
	Source          Source
	Client          Publisher
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional
}

// Envelope is the JSON body of every published message.
type Envelope struct {
	Source  string               `json:"source"`
	Event   hub.Event            `json:"event"`
	Message *aggregator.Snapshot `json:"message,omitempty"`
}

// ArmCommand is the JSON body accepted on <prefix>.command.arm.
type ArmCommand struct {
	Link        string              `json:"link"`
	SystemID    uint8               `json:"system_id"`
	ComponentID mavlink.ComponentID `json:"component_id"`
	Arm         bool                `json:"arm"`
	Force       bool                `json:"force"`
}

type outbound struct {
	kind    hub.EventType
	subject string
	data    []byte
}

// Bridge republishes hub events as NATS messages.
type Bridge struct {
	id       string
	cfg      Config
	source   Source
	client   Publisher
	registry *metric.MetricsRegistry
	logger   *slog.Logger

	published *prometheus.CounterVec
}

// New validates deps and creates a bridge.
func New(deps Deps) (*Bridge, error) {
	if deps.Source == nil || deps.Client == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: source and client are required", errors.ErrInvalidConfig),
			"Bridge", "New", "dependency check")
	}
	cfg := deps.Config
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if strings.ContainsAny(cfg.Prefix, " *>") {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: subject prefix %q", errors.ErrInvalidConfig, cfg.Prefix),
			"Bridge", "New", "prefix check")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "natsbridge")
	}

	b := &Bridge{
		id:       uuid.NewString(),
		cfg:      cfg,
		source:   deps.Source,
		client:   deps.Client,
		registry: deps.MetricsRegistry,
		logger:   logger,
	}
	if deps.MetricsRegistry != nil {
		b.published = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mavrouter",
			Subsystem: "natsbridge",
			Name:      "published_total",
			Help:      "Hub events published to NATS",
		}, []string{"type", "result"})
		deps.MetricsRegistry.RegisterCounterVec("natsbridge", "published", b.published)
	}
	return b, nil
}

// ID returns the instance id stamped on every envelope.
func (b *Bridge) ID() string { return b.id }

// SystemsSubject carries identity_list_changed events.
func (b *Bridge) SystemsSubject() string {
	return b.cfg.Prefix + ".identity.systems"
}

// ComponentsSubject carries component_list_changed events for one system.
func (b *Bridge) ComponentsSubject(sysID uint8) string {
	return fmt.Sprintf("%s.identity.%d.components", b.cfg.Prefix, sysID)
}

// MessageSubject carries message_updated events for one identity and kind.
func (b *Bridge) MessageSubject(sysID uint8, compID mavlink.ComponentID, kind string) string {
	return fmt.Sprintf("%s.message.%d.%d.%s", b.cfg.Prefix, sysID, uint8(compID), kind)
}

// CommandSubject accepts ArmCommand bodies.
func (b *Bridge) CommandSubject() string {
	return b.cfg.Prefix + ".command.arm"
}

// Run forwards hub events until ctx ends. Events are published in order by a
// single worker; when NATS falls behind the queue drops the newest events.
func (b *Bridge) Run(ctx context.Context) error {
	pool, err := worker.NewPool("natsbridge", 1, b.cfg.QueueSize, b.publish,
		worker.WithMetrics[outbound](b.registry))
	if err != nil {
		return errors.Wrap(err, "Bridge", "Run", "worker pool setup")
	}
	if err := pool.Start(ctx); err != nil {
		return errors.Wrap(err, "Bridge", "Run", "worker pool start")
	}
	defer func() {
		if err := pool.Stop(stopTimeout); err != nil {
			b.logger.Warn("Bridge queue did not drain", "error", err)
		}
	}()

	if b.cfg.AcceptCommands {
		if err := b.subscribeCommands(ctx); err != nil {
			return err
		}
	}

	sub := b.source.Subscribe(b.cfg.QueueSize)
	defer sub.Close()

	b.logger.Info("NATS bridge started", "prefix", b.cfg.Prefix, "instance", b.id)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			out, err := b.envelope(ev)
			if err != nil {
				b.logger.Warn("Failed to encode hub event", "type", ev.Type.String(), "error", err)
				continue
			}
			if err := pool.Submit(out); err != nil {
				b.count(ev.Type, "dropped")
				if !errors.Is(err, worker.ErrQueueFull) {
					b.logger.Debug("Event not queued", "type", ev.Type.String(), "error", err)
				}
			}
		}
	}
}

func (b *Bridge) envelope(ev hub.Event) (outbound, error) {
	env := Envelope{Source: b.id, Event: ev}

	var subject string
	switch ev.Type {
	case hub.EventSystemsChanged:
		subject = b.SystemsSubject()
	case hub.EventComponentsChanged:
		subject = b.ComponentsSubject(ev.SystemID)
	case hub.EventMessageUpdated:
		subject = b.MessageSubject(ev.SystemID, ev.ComponentID, ev.Kind)
		if b.cfg.IncludePayload {
			if snap, ok := b.source.Message(ev.SystemID, ev.ComponentID, ev.Kind); ok {
				env.Message = &snap
			}
		}
	default:
		return outbound{}, fmt.Errorf("unknown event type %d", int(ev.Type))
	}

	data, err := json.Marshal(env)
	if err != nil {
		return outbound{}, err
	}
	return outbound{kind: ev.Type, subject: subject, data: data}, nil
}

func (b *Bridge) publish(ctx context.Context, out outbound) error {
	if err := b.client.Publish(ctx, out.subject, out.data); err != nil {
		b.count(out.kind, "error")
		b.logger.Debug("Publish failed", "subject", out.subject, "error", err)
		return err
	}
	b.count(out.kind, "ok")
	return nil
}

func (b *Bridge) subscribeCommands(ctx context.Context) error {
	sub, ok := b.client.(Subscriber)
	if !ok {
		b.logger.Warn("NATS client cannot subscribe, arm commands disabled")
		return nil
	}
	err := sub.Subscribe(ctx, b.CommandSubject(), func(_ context.Context, data []byte) {
		var cmd ArmCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			b.logger.Warn("Malformed arm command", "error", err)
			return
		}
		if cmd.Link == "" || cmd.SystemID == 0 {
			b.logger.Warn("Arm command without link or system id")
			return
		}
		sent := b.source.ToggleArmState(cmd.Link, cmd.SystemID, cmd.ComponentID, cmd.Arm, cmd.Force)
		b.logger.Info("Arm command", "link", cmd.Link, "system", cmd.SystemID,
			"component", cmd.ComponentID.String(), "arm", cmd.Arm, "force", cmd.Force, "sent", sent)
	})
	if err != nil {
		return errors.WrapTransient(err, "Bridge", "Run", "command subscribe")
	}
	return nil
}

func (b *Bridge) count(t hub.EventType, result string) {
	if b.published != nil {
		b.published.WithLabelValues(t.String(), result).Inc()
	}
}
