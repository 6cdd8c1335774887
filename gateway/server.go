package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/mavrouter/aggregator"
	"github.com/c360/mavrouter/errors"
	"github.com/c360/mavrouter/health"
	"github.com/c360/mavrouter/hub"
	"github.com/c360/mavrouter/link"
	"github.com/c360/mavrouter/mavlink"
	"github.com/c360/mavrouter/metric"
	"github.com/c360/mavrouter/pkg/pubsub"
	"github.com/c360/mavrouter/router"
	"github.com/c360/mavrouter/transport"
)

const (
	// DefaultMaxRequestSize bounds request bodies.
	DefaultMaxRequestSize = 64 << 10

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Links is the link registry the gateway drives. *router.Router implements it.
type Links interface {
	Names() []string
	Get(name string) (router.LinkInfo, bool)
	Add(ctx context.Context, name string, cfg transport.Config, rc link.ReaderConfig) error
	Remove(name string, purgeSettings bool) bool
	SwitchEmitHeartbeat(name string, on bool) bool
	UpdateRouting(src string, dsts []string) error
	Routing(src string) []string
	RoutingTable() map[string][]string
	SaveSettings(ctx context.Context) error
}

// Identities is the hub surface the gateway reads and commands. *hub.Hub
// implements it.
type Identities interface {
	Identities() []hub.Identity
	SystemIDs() []uint8
	ComponentIDs(sysID uint8) []mavlink.ComponentID
	Messages(sysID uint8, compID mavlink.ComponentID) ([]aggregator.Snapshot, bool)
	Message(sysID uint8, compID mavlink.ComponentID, kind string) (aggregator.Snapshot, bool)
	ToggleArmState(linkName string, sysID uint8, compID mavlink.ComponentID, arm, force bool) bool
	Clear()
	Operator() hub.Identity
	SetOperator(id hub.Identity) error
	Subscribe(size int) *pubsub.Subscription[hub.Event]
}

// Config controls the listener and request handling.
type Config struct {
	Addr           string
	MaxRequestSize int64
	// CORSOrigins lists allowed origins; "*" allows any. Empty disables CORS.
	CORSOrigins []string
	// AutoSave persists link settings after every successful link mutation.
	AutoSave bool
	// DefaultReader is used for links added without reader settings.
	DefaultReader link.ReaderConfig
	// StaleAfter marks an open link degraded in /healthz after this much
	// silence. Zero disables the check.
	StaleAfter time.Duration
}

// HealthCheck reports the health of something other than a link, such as
// the NATS connection.
type HealthCheck func() health.Status

// Deps holds runtime dependencies for the gateway
type Deps struct {
	Config          Config
	Links           Links
	Hub             Identities
	SerialPorts     func() ([]transport.PortInfo, error) // optional, defaults to transport.AvailableSerialPorts
	Checks          []HealthCheck                        // optional
	MetricsRegistry *metric.MetricsRegistry              // optional
	Logger          *slog.Logger                         // optional
}

// Server serves the REST API, the websocket event stream and the metrics
// endpoint.
type Server struct {
	cfg         Config
	links       Links
	hub         Identities
	serialPorts func() ([]transport.PortInfo, error)
	checks      []HealthCheck
	registry    *metric.MetricsRegistry
	logger      *slog.Logger

	router   *mux.Router
	upgrader websocket.Upgrader

	closing   chan struct{}
	closeOnce sync.Once

	metrics *serverMetrics
}

// New validates deps and builds the route table.
func New(deps Deps) (*Server, error) {
	if deps.Links == nil || deps.Hub == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: links and hub are required", errors.ErrInvalidConfig),
			"Server", "New", "dependency check")
	}
	cfg := deps.Config
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = DefaultMaxRequestSize
	}
	if cfg.DefaultReader == (link.ReaderConfig{}) {
		cfg.DefaultReader = link.DefaultReaderConfig()
	}
	serialPorts := deps.SerialPorts
	if serialPorts == nil {
		serialPorts = transport.AvailableSerialPorts
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "gateway")
	}

	s := &Server{
		cfg:         cfg,
		links:       deps.Links,
		hub:         deps.Hub,
		serialPorts: serialPorts,
		checks:      deps.Checks,
		registry:    deps.MetricsRegistry,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		closing: make(chan struct{}),
		metrics: newServerMetrics(deps.MetricsRegistry, logger),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.withRequestID, s.withCORS, s.instrument)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/links", s.listLinks).Methods(http.MethodGet)
	api.HandleFunc("/links", s.addLink).Methods(http.MethodPost)
	api.HandleFunc("/links/{name}", s.getLink).Methods(http.MethodGet)
	api.HandleFunc("/links/{name}", s.removeLink).Methods(http.MethodDelete)
	api.HandleFunc("/links/{name}/heartbeat", s.setHeartbeat).Methods(http.MethodPut)
	api.HandleFunc("/links/{name}/routes", s.getRoutes).Methods(http.MethodGet)
	api.HandleFunc("/links/{name}/routes", s.putRoutes).Methods(http.MethodPut)
	api.HandleFunc("/routing", s.routingTable).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.saveSettings).Methods(http.MethodPost)
	api.HandleFunc("/serial-ports", s.listSerialPorts).Methods(http.MethodGet)

	api.HandleFunc("/identities", s.listIdentities).Methods(http.MethodGet)
	api.HandleFunc("/identities", s.clearIdentities).Methods(http.MethodDelete)
	api.HandleFunc("/operator", s.getOperator).Methods(http.MethodGet)
	api.HandleFunc("/operator", s.putOperator).Methods(http.MethodPut)
	api.HandleFunc("/systems", s.listSystems).Methods(http.MethodGet)
	api.HandleFunc("/systems/{system}/components", s.listComponents).Methods(http.MethodGet)
	api.HandleFunc("/systems/{system}/components/{component}/messages", s.listMessages).Methods(http.MethodGet)
	api.HandleFunc("/systems/{system}/components/{component}/messages/{kind}", s.getMessage).Methods(http.MethodGet)
	api.HandleFunc("/systems/{system}/components/{component}/arm", s.armDisarm).Methods(http.MethodPost)

	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry.PrometheusRegistry(), promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		})).Methods(http.MethodGet)
	}

	// Preflight requests for any path.
	r.MatcherFunc(func(req *http.Request, _ *mux.RouteMatch) bool {
		return req.Method == http.MethodOptions
	}).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on Config.Addr and serves until ctx is cancelled. Open event
// streams are closed before the listener shuts down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.WrapFatal(err, "Server", "Run", "listen on "+s.cfg.Addr)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("Gateway listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.WrapTransient(err, "Server", "Serve", "http serve")
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "Server", "Serve", "shutdown")
	}
	return nil
}

// Close ends every open event stream. Safe to call more than once.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range s.cfg.CORSOrigins {
			if allowed != "*" && allowed != origin {
				continue
			}
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			} else {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "3600")
			break
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) instrument(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.metrics.observe(route, r.Method, rec.status, time.Since(start))
	})
}

type serverMetrics struct {
	requests      *prometheus.CounterVec
	latency       prometheus.Histogram
	streamClients prometheus.Gauge
	streamEvents  *prometheus.CounterVec
}

func newServerMetrics(registry *metric.MetricsRegistry, logger *slog.Logger) *serverMetrics {
	if registry == nil {
		return nil
	}
	m := &serverMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mavrouter",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mavrouter",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mavrouter",
			Subsystem: "gateway",
			Name:      "event_stream_clients",
			Help:      "Connected websocket event clients",
		}),
		streamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mavrouter",
			Subsystem: "gateway",
			Name:      "event_stream_messages_total",
			Help:      "Events written to websocket clients",
		}, []string{"result"}),
	}
	for name, err := range map[string]error{
		"requests":       registry.RegisterCounterVec("gateway", "requests", m.requests),
		"latency":        registry.RegisterHistogram("gateway", "latency", m.latency),
		"stream_clients": registry.RegisterGauge("gateway", "stream_clients", m.streamClients),
		"stream_events":  registry.RegisterCounterVec("gateway", "stream_events", m.streamEvents),
	} {
		if err != nil {
			logger.Warn("Failed to register gateway metric", "metric", name, "error", err)
		}
	}
	return m
}

func (m *serverMetrics) observe(route, method string, status int, d time.Duration) {
	m.requests.WithLabelValues(route, method, fmt.Sprint(status)).Inc()
	m.latency.Observe(d.Seconds())
}

func (m *serverMetrics) clientDelta(n float64) {
	if m != nil {
		m.streamClients.Add(n)
	}
}

func (m *serverMetrics) streamed(result string) {
	if m != nil {
		m.streamEvents.WithLabelValues(result).Inc()
	}
}
