package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/mavrouter/hub"
	"github.com/c360/mavrouter/pkg/pubsub"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxClientFrame = 512
	eventBuffer    = 256
)

// welcome is the first message on every event stream.
type welcome struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id"`
}

// handleEvents upgrades to a websocket and streams hub events as JSON until
// either side closes. Client messages are read only for pongs and
// disconnect detection.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	clientID := uuid.NewString()
	sub := s.hub.Subscribe(eventBuffer)
	s.metrics.clientDelta(1)
	s.logger.Info("Event client connected", "client_id", clientID, "remote", r.RemoteAddr)

	defer func() {
		sub.Close()
		conn.Close()
		s.metrics.clientDelta(-1)
		s.logger.Info("Event client disconnected", "client_id", clientID, "dropped", sub.Dropped())
	}()

	gone := make(chan struct{})
	go s.readClient(conn, gone)

	if err := s.send(conn, welcome{Type: "welcome", ClientID: clientID}); err != nil {
		return
	}
	s.streamEvents(conn, sub, gone)
}

func (s *Server) readClient(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) streamEvents(conn *websocket.Conn, sub *pubsub.Subscription[hub.Event], gone <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				s.closeStream(conn, websocket.CloseGoingAway, "event source closed")
				return
			}
			if err := s.send(conn, ev); err != nil {
				s.metrics.streamed("error")
				return
			}
			s.metrics.streamed("ok")
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		case <-s.closing:
			s.closeStream(conn, websocket.CloseGoingAway, "server shutting down")
			return
		}
	}
}

func (s *Server) send(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) closeStream(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
