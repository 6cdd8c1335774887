package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mavrouter/errors"
	"github.com/c360/mavrouter/health"
	"github.com/c360/mavrouter/hub"
	"github.com/c360/mavrouter/link"
	"github.com/c360/mavrouter/mavlink"
	"github.com/c360/mavrouter/metric"
	"github.com/c360/mavrouter/router"
	"github.com/c360/mavrouter/store"
	mocks "github.com/c360/mavrouter/testutil"
	"github.com/c360/mavrouter/transport"
)

type fixture struct {
	gw      *Server
	srv     *httptest.Server
	router  *router.Router
	hub     *hub.Hub
	factory *mocks.MockFactory
}

type fixtureOpts struct {
	cfg      Config
	store    store.Store
	registry *metric.MetricsRegistry
	ports    func() ([]transport.PortInfo, error)
	checks   []HealthCheck
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()
	h, err := hub.New(hub.Deps{})
	require.NoError(t, err)
	t.Cleanup(h.Close)

	factory := mocks.NewMockFactory()
	r := router.New(router.Deps{
		Factory:   factory.New,
		OnFrame:   h.Observe,
		Heartbeat: h,
		Store:     opts.store,
	})
	t.Cleanup(r.Close)
	h.SetWriter(r)

	if opts.cfg.DefaultReader == (link.ReaderConfig{}) {
		opts.cfg.DefaultReader = link.ReaderConfig{RateHz: 1000}
	}
	gw, err := New(Deps{
		Config:          opts.cfg,
		Links:           r,
		Hub:             h,
		SerialPorts:     opts.ports,
		Checks:          opts.checks,
		MetricsRegistry: opts.registry,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(func() {
		gw.Close()
		srv.Close()
	})
	return &fixture{gw: gw, srv: srv, router: r, hub: h, factory: factory}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

type linkView struct {
	Name          string   `json:"name"`
	EmitHeartbeat bool     `json:"emit_heartbeat"`
	Routes        []string `json:"routes"`
}

type errorBody struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func addRequest(name string, port int) AddLinkRequest {
	return AddLinkRequest{Name: name, Transport: mocks.UDPConfig(port)}
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestLinks_CRUD(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	on := true
	req := addRequest("GCS", 14551)
	req.EmitHeartbeat = &on
	resp := f.do(t, http.MethodPost, "/api/links", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "/api/links/GCS", resp.Header.Get("Location"))
	var created linkView
	decodeBody(t, resp, &created)
	assert.Equal(t, "GCS", created.Name)
	assert.True(t, created.EmitHeartbeat)
	require.NotNil(t, f.factory.Get("udp:14551"))

	resp = f.do(t, http.MethodPost, "/api/links", addRequest("GCS", 14552))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var eb errorBody
	decodeBody(t, resp, &eb)
	assert.Equal(t, "link name already in use", eb.Error)
	assert.Equal(t, http.StatusConflict, eb.Status)

	resp = f.do(t, http.MethodGet, "/api/links", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []linkView
	decodeBody(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "GCS", list[0].Name)

	resp = f.do(t, http.MethodGet, "/api/links/GCS", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/api/links/GCS", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.False(t, f.factory.Get("udp:14551").IsOpen())

	resp = f.do(t, http.MethodGet, "/api/links/GCS", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = f.do(t, http.MethodDelete, "/api/links/GCS", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLinks_AddRejectsBadRequests(t *testing.T) {
	f := newFixture(t, fixtureOpts{cfg: Config{MaxRequestSize: 512}})

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{name: "missing name", body: addRequest("", 14551), status: http.StatusBadRequest},
		{name: "no transport settings", body: AddLinkRequest{Name: "x", Transport: transport.Config{Kind: transport.KindUDP}}, status: http.StatusBadRequest},
		{name: "reader rate out of range", body: AddLinkRequest{
			Name: "x", Transport: mocks.UDPConfig(14551), Reader: &link.ReaderConfig{RateHz: 99999},
		}, status: http.StatusBadRequest},
		{name: "oversized body", body: AddLinkRequest{Name: strings.Repeat("a", 1024), Transport: mocks.UDPConfig(14551)},
			status: http.StatusRequestEntityTooLarge},
		{name: "not json", body: "just a string", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/api/links", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
	assert.Empty(t, f.router.Names())
}

func TestLinks_OpenFailure(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.factory.FailStart("udp:14551", fmt.Errorf("address in use"))

	resp := f.do(t, http.MethodPost, "/api/links", addRequest("GCS", 14551))
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var eb errorBody
	decodeBody(t, resp, &eb)
	assert.Equal(t, "transport could not be opened", eb.Error)
	assert.NotContains(t, eb.Error, "address in use")
	assert.Empty(t, f.router.Names())
}

func TestLinks_HeartbeatAndRoutes(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	for name, port := range map[string]int{"A": 14601, "B": 14602, "C": 14603} {
		require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/links", addRequest(name, port)).StatusCode)
	}

	resp := f.do(t, http.MethodPut, "/api/links/A/heartbeat", HeartbeatRequest{Enabled: true})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, f.router.IsHeartbeatEmitted("A"))
	resp = f.do(t, http.MethodPut, "/api/links/missing/heartbeat", HeartbeatRequest{Enabled: true})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodPut, "/api/links/A/routes", RoutesRequest{Destinations: []string{"B", "C", "B"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var routes RoutesRequest
	decodeBody(t, resp, &routes)
	assert.ElementsMatch(t, []string{"B", "C"}, routes.Destinations)

	resp = f.do(t, http.MethodPut, "/api/links/B/routes", RoutesRequest{Destinations: []string{"A"}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "B to A would close a cycle")

	resp = f.do(t, http.MethodPut, "/api/links/A/routes", RoutesRequest{Destinations: []string{"nowhere"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/links/C/routes", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &routes)
	assert.Empty(t, routes.Destinations)
	assert.NotNil(t, routes.Destinations)

	resp = f.do(t, http.MethodGet, "/api/routing", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var table map[string][]string
	decodeBody(t, resp, &table)
	assert.ElementsMatch(t, []string{"B", "C"}, table["A"])
	assert.NotContains(t, table, "B")
}

func TestLinks_AddWithRoutes(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/links", addRequest("A", 14611)).StatusCode)

	req := addRequest("B", 14612)
	req.Routes = []string{"A"}
	resp := f.do(t, http.MethodPost, "/api/links", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created linkView
	decodeBody(t, resp, &created)
	assert.Equal(t, []string{"A"}, created.Routes)

	tests := []struct {
		name   string
		port   int
		routes []string
		status int
		msg    string
	}{
		{name: "unknown destination", port: 14613, routes: []string{"nowhere"}, status: http.StatusNotFound, msg: "unknown link"},
		{name: "self route", port: 14614, routes: []string{"C"}, status: http.StatusConflict, msg: "routing would create a cycle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := addRequest("C", tt.port)
			req.Routes = tt.routes
			resp := f.do(t, http.MethodPost, "/api/links", req)
			assert.Equal(t, tt.status, resp.StatusCode)
			var eb errorBody
			decodeBody(t, resp, &eb)
			assert.Equal(t, tt.msg, eb.Error)

			_, ok := f.router.Get("C")
			assert.False(t, ok, "a rejected request leaves no link behind")
			assert.False(t, f.factory.Get(fmt.Sprintf("udp:%d", tt.port)).IsOpen())
		})
	}
	assert.Equal(t, []string{"A", "B"}, f.router.Names())
}

func TestLinks_AutoSaveAndPurge(t *testing.T) {
	fs := store.NewFileStore(filepath.Join(t.TempDir(), "links.yaml"), nil)
	f := newFixture(t, fixtureOpts{cfg: Config{AutoSave: true}, store: fs})
	ctx := context.Background()

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/links", addRequest("GCS", 14551)).StatusCode)
	saved, err := fs.Load(ctx)
	require.NoError(t, err)
	_, ok := saved.Link("GCS")
	assert.True(t, ok)

	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/links/GCS?purge=true", nil).StatusCode)
	saved, err = fs.Load(ctx)
	require.NoError(t, err)
	_, ok = saved.Link("GCS")
	assert.False(t, ok)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodDelete, "/api/links/GCS?purge=maybe", nil).StatusCode)

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/links", addRequest("radio", 14552)).StatusCode)
	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/links/radio", nil).StatusCode)
	saved, err = fs.Load(ctx)
	require.NoError(t, err)
	_, ok = saved.Link("radio")
	assert.True(t, ok, "removal without purge keeps the saved link")
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/api/settings", nil).StatusCode)
}

func TestSettings_WithoutStore(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	resp := f.do(t, http.MethodPost, "/api/settings", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSerialPorts(t *testing.T) {
	f := newFixture(t, fixtureOpts{ports: func() ([]transport.PortInfo, error) {
		return []transport.PortInfo{{Name: "/dev/ttyACM0", IsUSB: true, VID: "1209", PID: "5741"}}, nil
	}})
	resp := f.do(t, http.MethodGet, "/api/serial-ports", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ports []transport.PortInfo
	decodeBody(t, resp, &ports)
	require.Len(t, ports, 1)
	assert.Equal(t, "/dev/ttyACM0", ports[0].Name)

	failing := newFixture(t, fixtureOpts{ports: func() ([]transport.PortInfo, error) {
		return nil, fmt.Errorf("enumeration failed")
	}})
	resp = failing.do(t, http.MethodGet, "/api/serial-ports", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestIdentities(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.hub.Update(mocks.HeartbeatFrame(t, 1, mavlink.ComponentAutopilot1), time.Now())
	f.hub.Update(mocks.AttitudeFrame(t, 1, mavlink.ComponentAutopilot1, 0.25), time.Now())
	f.hub.Update(mocks.HeartbeatFrame(t, 1, mavlink.ComponentGimbal), time.Now())

	resp := f.do(t, http.MethodGet, "/api/identities", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ids []struct {
		SystemID    int `json:"system_id"`
		ComponentID int `json:"component_id"`
	}
	decodeBody(t, resp, &ids)
	assert.Len(t, ids, 2)

	resp = f.do(t, http.MethodGet, "/api/systems", nil)
	var systems systemsResponse
	decodeBody(t, resp, &systems)
	assert.Equal(t, []int{1}, systems.SystemIDs)

	resp = f.do(t, http.MethodGet, "/api/systems/1/components", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var comps struct {
		ComponentIDs []int `json:"component_ids"`
	}
	decodeBody(t, resp, &comps)
	assert.Equal(t, []int{int(mavlink.ComponentAutopilot1), int(mavlink.ComponentGimbal)}, comps.ComponentIDs)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/systems/9/components", nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/systems/300/components", nil).StatusCode)

	path := fmt.Sprintf("/api/systems/1/components/%d/messages", mavlink.ComponentAutopilot1)
	resp = f.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snaps []struct {
		Kind    string `json:"kind"`
		Updates int64  `json:"updates"`
	}
	decodeBody(t, resp, &snaps)
	require.Len(t, snaps, 2)
	assert.Equal(t, "ATTITUDE", snaps[0].Kind)
	assert.Equal(t, "HEARTBEAT", snaps[1].Kind)

	resp = f.do(t, http.MethodGet, path+"/attitude", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap struct {
		Kind    string `json:"kind"`
		Message struct {
			Roll float32 `json:"Roll"`
		} `json:"message"`
	}
	decodeBody(t, resp, &snap)
	assert.Equal(t, "ATTITUDE", snap.Kind)
	assert.InDelta(t, 0.25, snap.Message.Roll, 1e-6)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, path+"/GPS_RAW_INT", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/systems/2/components/1/messages", nil).StatusCode)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/identities", nil).StatusCode)
	assert.Empty(t, f.hub.Identities())
}

func TestOperator(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	resp := f.do(t, http.MethodGet, "/api/operator", nil)
	var op struct {
		SystemID    int `json:"system_id"`
		ComponentID int `json:"component_id"`
	}
	decodeBody(t, resp, &op)
	assert.Equal(t, int(hub.DefaultOperator.SystemID), op.SystemID)

	resp = f.do(t, http.MethodPut, "/api/operator", OperatorRequest{SystemID: 200, ComponentID: 191})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, hub.Identity{SystemID: 200, ComponentID: 191}, f.hub.Operator())

	resp = f.do(t, http.MethodPut, "/api/operator", OperatorRequest{SystemID: 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestArmDisarm(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/links", addRequest("vehicle", 14600)).StatusCode)
	mt := f.factory.Get("udp:14600")
	require.NotNil(t, mt)

	resp := f.do(t, http.MethodPost, "/api/systems/1/components/1/arm", ArmRequest{Link: "vehicle", Arm: true})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, mt.WriteCount())

	resp = f.do(t, http.MethodPost, "/api/systems/1/components/1/arm", ArmRequest{Link: "radio", Arm: true})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/api/systems/1/components/1/arm", ArmRequest{Arm: true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	mt.FailWrites(fmt.Errorf("link down"))
	resp = f.do(t, http.MethodPost, "/api/systems/1/components/1/arm", ArmRequest{Link: "vehicle"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestRequestIDAndCORS(t *testing.T) {
	f := newFixture(t, fixtureOpts{cfg: Config{CORSOrigins: []string{"http://ui.local"}}})

	resp := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/links", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc123")
	req.Header.Set("Origin", "http://ui.local")
	resp, err = f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "abc123", resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "http://ui.local", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	f := newFixture(t, fixtureOpts{registry: registry})

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/links", nil).StatusCode)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(f.gw.metrics.requests.WithLabelValues("/api/links", "GET", "200")) == 1
	}, time.Second, 10*time.Millisecond)

	resp := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "mavrouter_gateway_requests_total")

	bare := newFixture(t, fixtureOpts{})
	assert.Equal(t, http.StatusNotFound, bare.do(t, http.MethodGet, "/metrics", nil).StatusCode)
}

func dialEvents(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	var hello welcome
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "welcome", hello.Type)
	assert.NotEmpty(t, hello.ClientID)
	return conn
}

func TestEvents_StreamsHubEvents(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	conn := dialEvents(t, f)

	f.hub.Update(mocks.HeartbeatFrame(t, 7, mavlink.ComponentAutopilot1), time.Now())

	var got []map[string]any
	for len(got) < 2 {
		var ev map[string]any
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&ev))
		got = append(got, ev)
	}

	types := make([]string, len(got))
	for i, ev := range got {
		types[i] = ev["type"].(string)
	}
	// A new system is announced once; its first component does not add a
	// component list event.
	assert.ElementsMatch(t, []string{"identity_list_changed", "message_updated"}, types)
	for _, ev := range got {
		if ev["type"] == "identity_list_changed" {
			assert.Equal(t, []any{float64(7)}, ev["system_ids"])
		}
		if ev["type"] == "message_updated" {
			assert.Equal(t, "HEARTBEAT", ev["kind"])
		}
	}
}

func TestEvents_ClosedOnShutdown(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	conn := dialEvents(t, f)

	f.gw.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestHealthz(t *testing.T) {
	nats := health.NewHealthy("nats", "connected")
	f := newFixture(t, fixtureOpts{checks: []HealthCheck{func() health.Status { return nats }}})
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/links", addRequest("GCS", 14551)).StatusCode)

	resp := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status health.Status
	decodeBody(t, resp, &status)
	assert.True(t, status.IsHealthy())
	require.Len(t, status.SubStatuses, 2)
	assert.Equal(t, "link:GCS", status.SubStatuses[0].Component)
	assert.Equal(t, "nats", status.SubStatuses[1].Component)

	nats = health.NewUnhealthy("nats", "disconnected")
	resp = f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "unknown link", err: errors.WrapInvalid(errors.ErrUnknownLink, "Router", "Write", "lookup"), want: http.StatusNotFound},
		{name: "duplicate", err: errors.WrapInvalid(errors.ErrDuplicateName, "Router", "Add", "name check"), want: http.StatusConflict},
		{name: "cycle", err: errors.WrapInvalid(errors.ErrRoutingCycle, "Router", "UpdateRouting", "cycle check"), want: http.StatusConflict},
		{name: "open failed", err: errors.Wrap(errors.ErrOpenFailed, "Router", "Add", "transport start"), want: http.StatusBadGateway},
		{name: "invalid", err: errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "check"), want: http.StatusBadRequest},
		{name: "transient", err: errors.WrapTransient(fmt.Errorf("busy"), "Store", "Save", "write"), want: http.StatusServiceUnavailable},
		{name: "plain", err: fmt.Errorf("boom"), want: http.StatusInternalServerError},
		{name: "nil", err: nil, want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
			assert.NotEmpty(t, sanitizeError(tt.err))
		})
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	f := newFixture(t, fixtureOpts{cfg: Config{Addr: "127.0.0.1:0"}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.gw.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
