package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"milkrun/internal/events"
)

var heartbeatInterval = 15 * time.Second

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type heartbeat struct {
	DriverID string `json:"driverId"`
	TS       string `json:"ts"`
}

func newHeartbeat(driverID string) heartbeat {
	return heartbeat{DriverID: driverID, TS: time.Now().UTC().Format(time.RFC3339)}
}

// driverEventsSSE streams a driver's events as text/event-stream until the client leaves.
func (s *Server) driverEventsSSE(w http.ResponseWriter, r *http.Request, driverID string) {
	if s.Broker == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Event streams disabled", "", r.URL.Path)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	ch, cancel, err := s.Broker.Subscribe(r.Context(), driverID)
	if err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Subscribe failed", err.Error(), r.URL.Path)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(typ string, v any) {
		b, _ := json.Marshal(v)
		fmt.Fprintf(w, "event: %s\n", typ)
		fmt.Fprintf(w, "data: %s\n\n", b)
		flusher.Flush()
	}
	send("heartbeat", newHeartbeat(driverID))

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			send(evt.Type, evt)
		case <-ticker.C:
			send("heartbeat", newHeartbeat(driverID))
		}
	}
}

// wsMessage is the frame written to driver websocket clients.
type wsMessage struct {
	Type    string        `json:"type"`
	Event   *events.Event `json:"event,omitempty"`
	Payload any           `json:"payload,omitempty"`
}

// driverEventsWS pushes a driver's events over a websocket. Client frames are only read
// for pongs and close.
func (s *Server) driverEventsWS(w http.ResponseWriter, r *http.Request, driverID string) {
	if s.Broker == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Event streams disabled", "", r.URL.Path)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	ctx := r.Context()
	ch, cancel, err := s.Broker.Subscribe(ctx, driverID)
	if err != nil {
		_ = conn.WriteJSON(wsMessage{Type: "error", Payload: map[string]string{"message": err.Error()}})
		return
	}
	defer cancel()

	// Read loop: detects close and keeps the deadline moving on pongs
	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(60 * time.Second)) })
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(wsMessage{Type: "connection_ack", Payload: newHeartbeat(driverID)}); err != nil {
		return
	}
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(wsMessage{Type: "event", Event: &evt}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
