package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bft-labs/beacons/pkg/log"
)

const (
	eventBuffer = 64
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = pongWait * 9 / 10
)

// handleEvents streams beacon events as JSON text frames until the client
// goes away. Events are dropped for a client that falls behind.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", log.Err(err))
		return
	}
	defer conn.Close()

	events, cancel := s.ctrl.Subscribe(eventBuffer)
	defer cancel()

	// Reader: handles pongs and notices the close.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	s.logger.Debug("event stream opened", log.String("remote", r.RemoteAddr))
	for {
		select {
		case <-closed:
			s.logger.Debug("event stream closed", log.String("remote", r.RemoteAddr))
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				s.logger.Debug("event write failed", log.Err(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
