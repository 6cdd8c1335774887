package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/mavrouter/errors"
	"github.com/c360/mavrouter/link"
	"github.com/c360/mavrouter/mavlink"
	"github.com/c360/mavrouter/metric"
	"github.com/c360/mavrouter/store"
	"github.com/c360/mavrouter/transport"
)

const (
	// DefaultHeartbeatInterval is the heartbeat tick period.
	DefaultHeartbeatInterval = time.Second
	// DefaultStopTimeout bounds how long Remove waits for a reader to exit.
	DefaultStopTimeout = 2 * time.Second

	storeTimeout = 5 * time.Second
)

// HeartbeatSource composes the heartbeat frame written to links that have
// heartbeat emission switched on.
type HeartbeatSource interface {
	Heartbeat() ([]byte, error)
}

// LinkInfo is a snapshot of one registered link.
type LinkInfo struct {
	Name          string            `json:"name"`
	Kind          transport.Kind    `json:"kind"`
	Transport     transport.Config  `json:"transport"`
	Reader        link.ReaderConfig `json:"reader"`
	EmitHeartbeat bool              `json:"emit_heartbeat"`
	Routes        []string          `json:"routes"`
	Stats         link.Stats        `json:"stats"`
}

// Deps holds runtime dependencies for the router
type Deps struct {
	Factory           transport.Factory       // defaults to transport.New
	OnFrame           link.FrameHandler       // receives every decoded frame, e.g. hub.Observe
	Heartbeat         HeartbeatSource         // required for heartbeat emission
	Store             store.Store             // optional settings persistence
	HeartbeatInterval time.Duration           // defaults to DefaultHeartbeatInterval
	StopTimeout       time.Duration           // defaults to DefaultStopTimeout
	MetricsRegistry   *metric.MetricsRegistry // optional
	Logger            *slog.Logger            // optional
}

type entry struct {
	name          string
	transport     transport.Transport
	reader        *link.Reader
	emitHeartbeat bool
}

// Router is the link registry. One mutex guards the link set, routing table
// and heartbeat flags together; I/O happens outside it.
type Router struct {
	factory     transport.Factory
	onFrame     link.FrameHandler
	heartbeat   HeartbeatSource
	store       store.Store
	interval    time.Duration
	stopTimeout time.Duration
	registry    *metric.MetricsRegistry
	metrics     *Metrics
	logger      *slog.Logger
	relayLog    *rate.Limiter

	// readers outlive the context of the Add call that started them
	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	links   map[string]*entry
	pending map[string]struct{}   // names reserved by an Add in progress
	known   map[string]struct{}   // every name ever registered
	routing map[string][]string   // src -> dsts, slices are replaced, never mutated
}

// New creates an empty router.
func New(deps Deps) *Router {
	factory := deps.Factory
	if factory == nil {
		factory = transport.New
	}
	onFrame := deps.OnFrame
	if onFrame == nil {
		onFrame = func(string, mavlink.Frame) {}
	}
	interval := deps.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	stopTimeout := deps.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "router")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		factory:     factory,
		onFrame:     onFrame,
		heartbeat:   deps.Heartbeat,
		store:       deps.Store,
		interval:    interval,
		stopTimeout: stopTimeout,
		registry:    deps.MetricsRegistry,
		metrics:     newMetrics(deps.MetricsRegistry),
		logger:      logger,
		relayLog:    rate.NewLimiter(rate.Every(5*time.Second), 1),
		baseCtx:     ctx,
		cancel:      cancel,
		links:       make(map[string]*entry),
		pending:     make(map[string]struct{}),
		known:       make(map[string]struct{}),
		routing:     make(map[string][]string),
	}
}

// IsUnique reports whether name is free.
func (r *Router) IsUnique(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isUniqueLocked(name)
}

func (r *Router) isUniqueLocked(name string) bool {
	_, taken := r.links[name]
	_, reserved := r.pending[name]
	return !taken && !reserved
}

// Add opens a transport for cfg, registers it as name and starts its reader.
// It fails with ErrDuplicateName before touching any resource when the name
// is taken, and with ErrOpenFailed when the transport cannot be built or
// started. ctx bounds only the open.
func (r *Router) Add(ctx context.Context, name string, cfg transport.Config, rc link.ReaderConfig) error {
	if name == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: empty link name", errors.ErrInvalidConfig),
			"Router", "Add", "name check")
	}

	r.mu.Lock()
	if !r.isUniqueLocked(name) {
		r.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrDuplicateName, name),
			"Router", "Add", "name check")
	}
	r.pending[name] = struct{}{}
	r.mu.Unlock()

	e, err := r.open(ctx, name, cfg, rc)

	r.mu.Lock()
	delete(r.pending, name)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	// the reader starts before the link is visible, so a concurrent Remove
	// always finds it running and stops it
	if err := e.reader.Start(r.baseCtx); err != nil {
		r.mu.Unlock()
		_ = e.transport.Stop()
		return errors.Wrap(err, "Router", "Add", "reader start")
	}
	r.links[name] = e
	r.known[name] = struct{}{}
	r.metrics.setLinks(len(r.links))
	r.mu.Unlock()

	r.logger.Info("Link added", "link", name, "kind", cfg.Kind.String(),
		"rate_hz", e.reader.Config().RateHz, "priority", e.reader.Config().Priority.String())
	return nil
}

// open builds and starts the transport and creates the reader. Nothing is
// left open when it fails.
func (r *Router) open(ctx context.Context, name string, cfg transport.Config, rc link.ReaderConfig) (*entry, error) {
	t, err := r.factory(cfg, transport.WithLogger(r.logger.With("link", name)))
	if err != nil {
		return nil, errors.Wrap(fmt.Errorf("%w: %q: %w", errors.ErrOpenFailed, name, err),
			"Router", "Add", "transport setup")
	}
	if err := t.Start(ctx); err != nil {
		_ = t.Stop()
		return nil, errors.Wrap(fmt.Errorf("%w: %q: %w", errors.ErrOpenFailed, name, err),
			"Router", "Add", "transport start")
	}

	reader, err := link.NewReader(link.ReaderDeps{
		Name:      name,
		Transport: t,
		Config:    rc,
		OnFrame: func(src string, frame mavlink.Frame) {
			r.onFrame(src, frame)
			r.relay(src, frame.Raw)
		},
		MetricsRegistry: r.registry,
		Logger:          r.logger.With("link", name),
	})
	if err != nil {
		_ = t.Stop()
		return nil, errors.Wrap(err, "Router", "Add", "reader setup")
	}
	return &entry{name: name, transport: t, reader: reader}, nil
}

// relay writes raw to every destination of src. It runs on the source
// reader goroutine, so fan-out finishes before the next frame is decoded.
func (r *Router) relay(src string, raw []byte) {
	r.mu.Lock()
	dsts := r.routing[src]
	if len(dsts) == 0 {
		r.mu.Unlock()
		return
	}
	targets := make([]*entry, 0, len(dsts))
	for _, dst := range dsts {
		// destinations that are not currently open are skipped
		if e, ok := r.links[dst]; ok {
			targets = append(targets, e)
		}
	}
	r.mu.Unlock()

	for _, e := range targets {
		_, err := e.reader.Write(raw)
		r.metrics.routed(src, e.name, err)
		if err != nil && r.relayLog.Allow() {
			r.logger.Warn("Relay write failed", "src", src, "dst", e.name, "error", err)
		}
	}
}

// Remove stops and forgets the link. Routes from it are dropped and it is
// removed from every destination set. With purgeSettings its persisted
// record is deleted too. Returns false if name is unknown.
func (r *Router) Remove(name string, purgeSettings bool) bool {
	r.mu.Lock()
	e, ok := r.links[name]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.links, name)
	delete(r.routing, name)
	for src, dsts := range r.routing {
		if pruned := without(dsts, name); len(pruned) != len(dsts) {
			if len(pruned) == 0 {
				delete(r.routing, src)
			} else {
				r.routing[src] = pruned
			}
		}
	}
	r.metrics.setLinks(len(r.links))
	r.mu.Unlock()

	r.close(e)

	if purgeSettings && r.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := r.store.DeleteLink(ctx, name); err != nil {
			r.logger.Warn("Failed to purge link settings", "link", name, "error", err)
		}
	}

	r.logger.Info("Link removed", "link", name, "purged", purgeSettings)
	return true
}

func (r *Router) close(e *entry) {
	if err := e.reader.Stop(r.stopTimeout); err != nil {
		r.logger.Warn("Link reader did not stop in time", "link", e.name, "error", err)
	}
	if err := e.transport.Stop(); err != nil {
		r.logger.Warn("Failed to close transport", "link", e.name, "error", err)
	}
	r.registry.CoreMetrics().ForgetLink(e.name)
	r.metrics.forget(e.name)
}

// RemoveAll removes every link.
func (r *Router) RemoveAll(purgeSettings bool) {
	for _, name := range r.Names() {
		r.Remove(name, purgeSettings)
	}
}

// Close removes every link without purging settings and ends reader contexts.
func (r *Router) Close() {
	r.RemoveAll(false)
	r.cancel()
}

// Names returns the registered link names, sorted.
func (r *Router) Names() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.links))
	for name := range r.links {
		names = append(names, name)
	}
	r.mu.Unlock()

	sort.Strings(names)
	return names
}

// Get returns a snapshot of the named link.
func (r *Router) Get(name string) (LinkInfo, bool) {
	r.mu.Lock()
	e, ok := r.links[name]
	if !ok {
		r.mu.Unlock()
		return LinkInfo{}, false
	}
	emit := e.emitHeartbeat
	routes := append([]string{}, r.routing[name]...)
	r.mu.Unlock()

	cfg := e.transport.Config()
	return LinkInfo{
		Name:          name,
		Kind:          cfg.Kind,
		Transport:     cfg,
		Reader:        e.reader.Config(),
		EmitHeartbeat: emit,
		Routes:        routes,
		Stats:         e.reader.Stats(),
	}, true
}

// SwitchEmitHeartbeat turns heartbeat emission on or off for name. Returns
// false if name is unknown.
func (r *Router) SwitchEmitHeartbeat(name string, on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.links[name]
	if !ok {
		return false
	}
	e.emitHeartbeat = on
	return true
}

// IsHeartbeatEmitted reports whether name has heartbeat emission on.
func (r *Router) IsHeartbeatEmitted(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.links[name]
	return ok && e.emitHeartbeat
}

// Write sends an encoded frame on the named link.
func (r *Router) Write(name string, frame []byte) (int, error) {
	r.mu.Lock()
	e, ok := r.links[name]
	r.mu.Unlock()
	if !ok {
		return 0, errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrUnknownLink, name),
			"Router", "Write", "link lookup")
	}
	n, err := e.reader.Write(frame)
	if err != nil {
		return n, errors.Wrap(err, "Router", "Write", "write to "+name)
	}
	return n, nil
}

// UpdateRouting replaces the destination set of src. Duplicate destinations
// collapse. It fails when src is not registered, a destination was never
// registered, or the routing graph would contain a cycle (a self-route is
// a cycle). An empty dsts clears the routes of src.
func (r *Router) UpdateRouting(src string, dsts []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.links[src]; !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: source %q", errors.ErrUnknownLink, src),
			"Router", "UpdateRouting", "source lookup")
	}

	seen := make(map[string]struct{}, len(dsts))
	unique := make([]string, 0, len(dsts))
	for _, dst := range dsts {
		if _, dup := seen[dst]; dup {
			continue
		}
		seen[dst] = struct{}{}
		if _, ok := r.known[dst]; !ok {
			return errors.WrapInvalid(fmt.Errorf("%w: destination %q", errors.ErrUnknownLink, dst),
				"Router", "UpdateRouting", "destination lookup")
		}
		if dst == src || r.reachesLocked(dst, src) {
			return errors.WrapInvalid(fmt.Errorf("%w: %s -> %s", errors.ErrRoutingCycle, src, dst),
				"Router", "UpdateRouting", "cycle check")
		}
		unique = append(unique, dst)
	}

	if len(unique) == 0 {
		delete(r.routing, src)
	} else {
		r.routing[src] = unique
	}
	r.logger.Debug("Routing updated", "src", src, "dsts", unique)
	return nil
}

// reachesLocked reports whether target can be reached from start by
// following the current routing table.
func (r *Router) reachesLocked(start, target string) bool {
	visited := map[string]struct{}{start: {}}
	stack := []string{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true
		}
		for _, next := range r.routing[cur] {
			if _, seen := visited[next]; !seen {
				visited[next] = struct{}{}
				stack = append(stack, next)
			}
		}
	}
	return false
}

// Routing returns the destinations of src.
func (r *Router) Routing(src string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.routing[src]...)
}

// RoutingTable returns a copy of the whole routing table.
func (r *Router) RoutingTable() map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]string, len(r.routing))
	for src, dsts := range r.routing {
		out[src] = append([]string(nil), dsts...)
	}
	return out
}

// Run emits heartbeats every interval until ctx ends.
func (r *Router) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.EmitHeartbeats()
		}
	}
}

// EmitHeartbeats writes one heartbeat to every link with emission on and
// returns how many writes succeeded.
func (r *Router) EmitHeartbeats() int {
	r.mu.Lock()
	var targets []*entry
	for _, e := range r.links {
		if e.emitHeartbeat {
			targets = append(targets, e)
		}
	}
	r.mu.Unlock()

	if len(targets) == 0 || r.heartbeat == nil {
		return 0
	}

	frame, err := r.heartbeat.Heartbeat()
	if err != nil {
		r.logger.Error("Failed to compose heartbeat", "error", err)
		return 0
	}

	sent := 0
	for _, e := range targets {
		_, err := e.reader.Write(frame)
		r.metrics.heartbeat(err)
		if err != nil {
			r.logger.Debug("Heartbeat write failed", "link", e.name, "error", err)
			continue
		}
		sent++
	}
	return sent
}

func without(list []string, name string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != name {
			out = append(out, v)
		}
	}
	return out
}
