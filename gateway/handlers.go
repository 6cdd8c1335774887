package gateway

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/c360/mavrouter/errors"
	"github.com/c360/mavrouter/health"
	"github.com/c360/mavrouter/hub"
	"github.com/c360/mavrouter/link"
	"github.com/c360/mavrouter/mavlink"
	"github.com/c360/mavrouter/router"
	"github.com/c360/mavrouter/transport"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// AddLinkRequest is the body of POST /api/links.
type AddLinkRequest struct {
	Name          string             `json:"name" validate:"required,max=64,printascii"`
	Transport     transport.Config   `json:"transport"`
	Reader        *link.ReaderConfig `json:"reader,omitempty"`
	EmitHeartbeat *bool              `json:"emit_heartbeat,omitempty"`
	Routes        []string           `json:"routes,omitempty"`
}

// HeartbeatRequest is the body of PUT /api/links/{name}/heartbeat.
type HeartbeatRequest struct {
	Enabled bool `json:"enabled"`
}

// RoutesRequest is the body of PUT /api/links/{name}/routes.
type RoutesRequest struct {
	Destinations []string `json:"destinations"`
}

// ArmRequest is the body of POST /api/systems/{system}/components/{component}/arm.
type ArmRequest struct {
	Link  string `json:"link" validate:"required"`
	Arm   bool   `json:"arm"`
	Force bool   `json:"force"`
}

// OperatorRequest is the body of PUT /api/operator.
type OperatorRequest struct {
	SystemID    uint8 `json:"system_id" validate:"gte=1"`
	ComponentID uint8 `json:"component_id"`
}

func (s *Server) listLinks(w http.ResponseWriter, _ *http.Request) {
	names := s.links.Names()
	out := make([]router.LinkInfo, 0, len(names))
	for _, name := range names {
		if info, ok := s.links.Get(name); ok {
			out = append(out, info)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getLink(w http.ResponseWriter, r *http.Request) {
	info, ok := s.links.Get(mux.Vars(r)["name"])
	if !ok {
		writeError(w, http.StatusNotFound, "link not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) addLink(w http.ResponseWriter, r *http.Request) {
	var req AddLinkRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := req.Transport.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid transport: "+err.Error())
		return
	}
	rc := s.cfg.DefaultReader
	if req.Reader != nil {
		if err := validate.Struct(req.Reader); err != nil {
			writeError(w, http.StatusBadRequest, "invalid reader: "+err.Error())
			return
		}
		rc = *req.Reader
	}

	if err := s.links.Add(r.Context(), req.Name, req.Transport, rc); err != nil {
		s.fail(w, r, err)
		return
	}
	if len(req.Routes) > 0 {
		if err := s.links.UpdateRouting(req.Name, req.Routes); err != nil {
			// the request is all or nothing: a link with rejected routes is closed again
			s.links.Remove(req.Name, false)
			s.fail(w, r, err)
			return
		}
	}
	if req.EmitHeartbeat != nil {
		s.links.SwitchEmitHeartbeat(req.Name, *req.EmitHeartbeat)
	}
	s.autoSave(r)

	info, _ := s.links.Get(req.Name)
	w.Header().Set("Location", "/api/links/"+req.Name)
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) removeLink(w http.ResponseWriter, r *http.Request) {
	purge := false
	if raw := r.URL.Query().Get("purge"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "purge must be a boolean")
			return
		}
		purge = v
	}
	if !s.links.Remove(mux.Vars(r)["name"], purge) {
		writeError(w, http.StatusNotFound, "link not found")
		return
	}
	if !purge {
		s.autoSave(r)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req HeartbeatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !s.links.SwitchEmitHeartbeat(mux.Vars(r)["name"], req.Enabled) {
		writeError(w, http.StatusNotFound, "link not found")
		return
	}
	s.autoSave(r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getRoutes(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, ok := s.links.Get(name); !ok {
		writeError(w, http.StatusNotFound, "link not found")
		return
	}
	dsts := s.links.Routing(name)
	if dsts == nil {
		dsts = []string{}
	}
	writeJSON(w, http.StatusOK, RoutesRequest{Destinations: dsts})
}

func (s *Server) putRoutes(w http.ResponseWriter, r *http.Request) {
	var req RoutesRequest
	if !s.decode(w, r, &req) {
		return
	}
	name := mux.Vars(r)["name"]
	if err := s.links.UpdateRouting(name, req.Destinations); err != nil {
		s.fail(w, r, err)
		return
	}
	s.autoSave(r)
	dsts := s.links.Routing(name)
	if dsts == nil {
		dsts = []string{}
	}
	writeJSON(w, http.StatusOK, RoutesRequest{Destinations: dsts})
}

func (s *Server) routingTable(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.links.RoutingTable())
}

func (s *Server) saveSettings(w http.ResponseWriter, r *http.Request) {
	if err := s.links.SaveSettings(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listSerialPorts(w http.ResponseWriter, r *http.Request) {
	ports, err := s.serialPorts()
	if err != nil {
		s.fail(w, r, errors.WrapTransient(err, "Server", "listSerialPorts", "port enumeration"))
		return
	}
	if ports == nil {
		ports = []transport.PortInfo{}
	}
	writeJSON(w, http.StatusOK, ports)
}

func (s *Server) listIdentities(w http.ResponseWriter, _ *http.Request) {
	ids := s.hub.Identities()
	if ids == nil {
		ids = []hub.Identity{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) clearIdentities(w http.ResponseWriter, _ *http.Request) {
	s.hub.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getOperator(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Operator())
}

func (s *Server) putOperator(w http.ResponseWriter, r *http.Request) {
	var req OperatorRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := hub.Identity{SystemID: req.SystemID, ComponentID: mavlink.ComponentID(req.ComponentID)}
	if err := s.hub.SetOperator(id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

// systemsResponse keeps ids numeric; a bare []uint8 would encode as base64.
type systemsResponse struct {
	SystemIDs []int `json:"system_ids"`
}

func (s *Server) listSystems(w http.ResponseWriter, _ *http.Request) {
	ids := s.hub.SystemIDs()
	out := systemsResponse{SystemIDs: make([]int, len(ids))}
	for i, id := range ids {
		out.SystemIDs[i] = int(id)
	}
	writeJSON(w, http.StatusOK, out)
}

type componentsResponse struct {
	SystemID     int                   `json:"system_id"`
	ComponentIDs []mavlink.ComponentID `json:"component_ids"`
}

func (s *Server) listComponents(w http.ResponseWriter, r *http.Request) {
	sysID, ok := systemVar(w, r)
	if !ok {
		return
	}
	comps := s.hub.ComponentIDs(sysID)
	if len(comps) == 0 {
		writeError(w, http.StatusNotFound, "system not found")
		return
	}
	writeJSON(w, http.StatusOK, componentsResponse{SystemID: int(sysID), ComponentIDs: comps})
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	sysID, compID, ok := identityVars(w, r)
	if !ok {
		return
	}
	snaps, found := s.hub.Messages(sysID, compID)
	if !found {
		writeError(w, http.StatusNotFound, "identity not found")
		return
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Kind < snaps[j].Kind })
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) getMessage(w http.ResponseWriter, r *http.Request) {
	sysID, compID, ok := identityVars(w, r)
	if !ok {
		return
	}
	kind := strings.ToUpper(mux.Vars(r)["kind"])
	snap, found := s.hub.Message(sysID, compID, kind)
	if !found {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) armDisarm(w http.ResponseWriter, r *http.Request) {
	sysID, compID, ok := identityVars(w, r)
	if !ok {
		return
	}
	var req ArmRequest
	if !s.decode(w, r, &req) {
		return
	}
	if _, exists := s.links.Get(req.Link); !exists {
		writeError(w, http.StatusNotFound, "link not found")
		return
	}
	if !s.hub.ToggleArmState(req.Link, sysID, compID, req.Arm, req.Force) {
		writeError(w, http.StatusBadGateway, "command not sent")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"sent": true})
}

// healthz aggregates link health and the extra checks. Degraded still
// answers 200; only unhealthy answers 503.
func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	var subs []health.Status
	for _, name := range s.links.Names() {
		if info, ok := s.links.Get(name); ok {
			subs = append(subs, health.FromLink(name, info.Stats, s.cfg.StaleAfter))
		}
	}
	for _, check := range s.checks {
		subs = append(subs, check())
	}
	status := health.Aggregate("mavrouter", subs)
	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// autoSave persists link settings when configured. Failures are logged; the
// mutation itself already succeeded.
func (s *Server) autoSave(r *http.Request) {
	if !s.cfg.AutoSave {
		return
	}
	if err := s.links.SaveSettings(r.Context()); err != nil {
		s.logger.Warn("Failed to save link settings", "error", err)
	}
}

// decode reads a JSON body of at most MaxRequestSize bytes into v and
// validates it. It writes the error response and returns false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxRequestSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if int64(len(body)) > s.cfg.MaxRequestSize {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds maximum size of %d bytes", s.cfg.MaxRequestSize))
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// fail logs err with the request id and writes a sanitized error response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", w.Header().Get("X-Request-ID"), "error", err)
	} else {
		s.logger.Debug("Request rejected", "method", r.Method, "path", r.URL.Path,
			"request_id", w.Header().Get("X-Request-ID"), "error", err)
	}
	writeError(w, status, sanitizeError(err))
}

func systemVar(w http.ResponseWriter, r *http.Request) (uint8, bool) {
	n, err := strconv.ParseUint(mux.Vars(r)["system"], 10, 8)
	if err != nil {
		writeError(w, http.StatusBadRequest, "system must be a number from 0 to 255")
		return 0, false
	}
	return uint8(n), true
}

func identityVars(w http.ResponseWriter, r *http.Request) (uint8, mavlink.ComponentID, bool) {
	sysID, ok := systemVar(w, r)
	if !ok {
		return 0, 0, false
	}
	compID, err := mavlink.ParseComponentID(mux.Vars(r)["component"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown component")
		return 0, 0, false
	}
	return sysID, compID, true
}

// statusFor maps errors to HTTP status codes. Sentinels are checked before
// classification: a duplicate name is also invalid but reports 409.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusInternalServerError
	case errors.Is(err, errors.ErrUnknownLink), errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrDuplicateName), errors.Is(err, errors.ErrRoutingCycle):
		return http.StatusConflict
	case errors.Is(err, errors.ErrOpenFailed):
		return http.StatusBadGateway
	case errors.IsInvalid(err):
		return http.StatusBadRequest
	case errors.IsTransient(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// sanitizeError returns a message safe to show clients. Device paths and
// socket errors stay in the log.
func sanitizeError(err error) string {
	switch {
	case err == nil:
		return "internal server error"
	case errors.Is(err, errors.ErrUnknownLink):
		return "unknown link"
	case errors.Is(err, errors.ErrNotFound):
		return "not found"
	case errors.Is(err, errors.ErrDuplicateName):
		return "link name already in use"
	case errors.Is(err, errors.ErrRoutingCycle):
		return "routing would create a cycle"
	case errors.Is(err, errors.ErrOpenFailed):
		return "transport could not be opened"
	case errors.IsInvalid(err):
		return "invalid request"
	case errors.IsTransient(err):
		return "service temporarily unavailable"
	}
	return "internal server error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	data, _ := json.Marshal(map[string]any{
		"error":  message,
		"status": status,
	})
	_, _ = w.Write(data)
}

// statusRecorder captures the response code. It passes Hijack through so
// websocket upgrades work behind instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
